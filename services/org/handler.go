package org

import (
	"io"
	"net/http"

	"ticketing-commerce/pkg/authz"
	"ticketing-commerce/pkg/errutil"
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
	v1.POST("/orgs", middleware.Authorize(enforcer, authz.ObjOrgs, authz.ActWrite), h.Create)
	v1.GET("/orgs/current", middleware.Authorize(enforcer, authz.ObjOrgs, authz.ActRead), h.Current)
	v1.GET("/rep-settings", middleware.Authorize(enforcer, authz.ObjSettings, authz.ActRead), h.GetRepSettings)
	v1.PATCH("/rep-settings", middleware.Authorize(enforcer, authz.ObjSettings, authz.ActWrite), h.PatchRepSettings)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}

	org, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, org)
}

func (h *Handler) Current(c *gin.Context) {
	org, err := h.svc.Get(c.Request.Context(), middleware.PrincipalFrom(c).OrgID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, org)
}

func (h *Handler) GetRepSettings(c *gin.Context) {
	settings, err := h.svc.RepSettings(c.Request.Context(), middleware.PrincipalFrom(c).OrgID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

func (h *Handler) PatchRepSettings(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		_ = c.Error(errutil.BadRequest("failed to read body", err))
		return
	}

	settings, err := h.svc.UpdateRepSettings(c.Request.Context(), middleware.PrincipalFrom(c).OrgID, raw)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}
