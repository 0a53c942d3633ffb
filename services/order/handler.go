package order

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
	v1.POST("/ticket-types", middleware.Authorize(enforcer, authz.ObjOrders, authz.ActWrite), h.CreateTicketType)
	v1.POST("/orders", middleware.Authorize(enforcer, authz.ObjOrders, authz.ActWrite), h.CreateDraft)
	v1.GET("/orders/:order_id", middleware.Authorize(enforcer, authz.ObjOrders, authz.ActRead), h.Get)
	v1.POST("/orders/:order_id/fail", middleware.Authorize(enforcer, authz.ObjOrders, authz.ActWrite), h.Fail)
}

func (h *Handler) CreateTicketType(c *gin.Context) {
	var req CreateTicketTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}

	tt, err := h.svc.CreateTicketType(c.Request.Context(), middleware.PrincipalFrom(c).OrgID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, tt)
}

func (h *Handler) CreateDraft(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}

	o, err := h.svc.CreateDraft(c.Request.Context(), middleware.PrincipalFrom(c).OrgID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (h *Handler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	o, err := h.svc.Get(ctx, middleware.PrincipalFrom(c).OrgID, c.Param("order_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	tickets, err := h.svc.Tickets(ctx, o.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o, "tickets": tickets})
}

func (h *Handler) Fail(c *gin.Context) {
	o, err := h.svc.Fail(c.Request.Context(), middleware.PrincipalFrom(c).OrgID, c.Param("order_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, o)
}
