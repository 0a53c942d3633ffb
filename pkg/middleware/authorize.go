package middleware

import (
	"ticketing-commerce/pkg/authz"
	"ticketing-commerce/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func Authorize(enforcer authz.Enforcer, obj, act string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := PrincipalFrom(c)

		ok, err := enforcer.Allow(p.Permissions, obj, act)
		if err != nil {
			zap.L().Error("failed to evaluate policy", zap.String("obj", obj), zap.String("act", act), zap.Error(err))
			_ = c.Error(errutil.Internal("failed to evaluate policy", err))
			c.Abort()
			return
		}

		if !ok {
			_ = c.Error(errutil.Forbidden("permission denied", nil))
			c.Abort()
			return
		}

		c.Next()
	}
}
