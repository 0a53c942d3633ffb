package rep

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
	v1.POST("/reps", middleware.Authorize(enforcer, authz.ObjReps, authz.ActWrite), h.Create)
	v1.GET("/reps/:rep_id", middleware.Authorize(enforcer, authz.ObjReps, authz.ActRead), h.Get)
	v1.PUT("/reps/:rep_id/status", middleware.Authorize(enforcer, authz.ObjReps, authz.ActWrite), h.SetStatus)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateRepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}

	r, err := h.svc.Create(c.Request.Context(), middleware.PrincipalFrom(c).OrgID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *Handler) Get(c *gin.Context) {
	r, err := h.svc.Get(c.Request.Context(), middleware.PrincipalFrom(c).OrgID, c.Param("rep_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) SetStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}

	r, err := h.svc.SetStatus(c.Request.Context(), middleware.PrincipalFrom(c).OrgID, c.Param("rep_id"), req.Status)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, r)
}
