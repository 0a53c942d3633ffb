package leaderboard

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
	v1.GET("/leaderboard", middleware.Authorize(enforcer, authz.ObjLeaderboard, authz.ActRead), h.List)
	v1.GET("/reps/:rep_id/rank", middleware.Authorize(enforcer, authz.ObjLeaderboard, authz.ActRead), h.Rank)
}

func (h *Handler) List(c *gin.Context) {
	ranked, err := h.svc.Leaderboard(c.Request.Context(), middleware.PrincipalFrom(c).OrgID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": ranked})
}

func (h *Handler) Rank(c *gin.Context) {
	entry, ok, err := h.svc.Position(c.Request.Context(), middleware.PrincipalFrom(c).OrgID, c.Param("rep_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"position": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"position": entry.Position, "entry": entry})
}
