package ledger

import (
	"net/http"

	"ticketing-commerce/pkg/authz"
	"ticketing-commerce/pkg/db/pagination"
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
	v1.POST("/reps/:rep_id/points", middleware.Authorize(enforcer, authz.ObjPoints, authz.ActWrite), h.Award)
	v1.GET("/reps/:rep_id/points", middleware.Authorize(enforcer, authz.ObjPoints, authz.ActRead), h.History)
}

func (h *Handler) Award(c *gin.Context) {
	var req AwardPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}

	p := middleware.PrincipalFrom(c)
	balance, err := h.svc.Award(c.Request.Context(), AwardRequest{
		RepID:       c.Param("rep_id"),
		OrgID:       p.OrgID,
		Points:      req.Points,
		SourceType:  SourceManual,
		Description: req.Description,
		CreatedBy:   Ref(p.UserID),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"new_balance": balance})
}

func (h *Handler) History(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(err)
		return
	}

	entries, info, err := h.svc.History(c.Request.Context(), middleware.PrincipalFrom(c).OrgID, c.Param("rep_id"), page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "page_info": info})
}
