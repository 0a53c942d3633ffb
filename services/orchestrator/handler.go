package orchestrator

import (
	"errors"
	"io"
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
	v1.POST("/orders/:order_id/complete", middleware.Authorize(enforcer, authz.ObjOrders, authz.ActWrite), h.Complete)
	v1.POST("/orders/:order_id/refund", middleware.Authorize(enforcer, authz.ObjOrders, authz.ActWrite), h.Refund)
}

func (h *Handler) Complete(c *gin.Context) {
	res, err := h.svc.Complete(c.Request.Context(), middleware.PrincipalFrom(c).OrgID, c.Param("order_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Refund(c *gin.Context) {
	var req RefundRequest
	// The body is optional.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		_ = c.Error(err)
		return
	}

	res, err := h.svc.Refund(c.Request.Context(), middleware.PrincipalFrom(c).OrgID, c.Param("order_id"), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}
