package discount

import (
	"net/http"

	"ticketing-commerce/pkg/authz"
	"ticketing-commerce/pkg/httpapi"
	"ticketing-commerce/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func RegisterRoutes(v1 httpapi.V1, h *Handler, enforcer authz.Enforcer) {
	v1.POST("/reps/:rep_id/discounts", middleware.Authorize(enforcer, authz.ObjDiscounts, authz.ActWrite), h.Issue)
	v1.GET("/discounts/:code", middleware.Authorize(enforcer, authz.ObjDiscounts, authz.ActRead), h.Resolve)
}

func (h *Handler) Issue(c *gin.Context) {
	var req IssueDiscountRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(err)
			return
		}
	}

	d, err := h.svc.IssueRepDiscount(c.Request.Context(), middleware.PrincipalFrom(c).OrgID, c.Param("rep_id"), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *Handler) Resolve(c *gin.Context) {
	d, err := h.svc.Resolve(c.Request.Context(), middleware.PrincipalFrom(c).OrgID, c.Param("code"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, d)
}
