package reward

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
	v1.POST("/rewards", middleware.Authorize(enforcer, authz.ObjRewards, authz.ActWrite), h.Create)
	v1.GET("/rewards", middleware.Authorize(enforcer, authz.ObjRewards, authz.ActRead), h.List)
	v1.GET("/reps/:rep_id/rewards/eligibility", middleware.Authorize(enforcer, authz.ObjRewards, authz.ActRead), h.Eligibility)
	v1.POST("/reps/:rep_id/rewards/:reward_id/claim", middleware.Authorize(enforcer, authz.ObjRewards, authz.ActClaim), h.Claim)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}

	reward, milestone, err := h.svc.CreateReward(c.Request.Context(), middleware.PrincipalFrom(c).OrgID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"reward": reward, "milestone": milestone})
}

func (h *Handler) List(c *gin.Context) {
	rewards, err := h.svc.ListRewards(c.Request.Context(), middleware.PrincipalFrom(c).OrgID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rewards": rewards})
}

func (h *Handler) Eligibility(c *gin.Context) {
	out, err := h.svc.Eligibility(c.Request.Context(), middleware.PrincipalFrom(c).OrgID, c.Param("rep_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rewards": out})
}

func (h *Handler) Claim(c *gin.Context) {
	res, err := h.svc.Claim(c.Request.Context(), middleware.PrincipalFrom(c).OrgID, c.Param("rep_id"), c.Param("reward_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, res)
}
