package middleware

import (
	"context"
	"strings"

	"ticketing-commerce/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Headers set by the auth gateway in front of the API.
const (
	HeaderUserID      = "X-User-Id"
	HeaderOrgID       = "X-Org-Id"
	HeaderPermissions = "X-Permissions"
)

// Principal is the opaque identity handed over by the auth collaborator.
type Principal struct {
	UserID      string
	OrgID       string
	Permissions []string
}

type principalKey struct{}

const ginPrincipalKey = "principal"

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// PrincipalFrom returns the principal stored by Authenticate.
func PrincipalFrom(c *gin.Context) Principal {
	if v, ok := c.Get(ginPrincipalKey); ok {
		if p, ok := v.(Principal); ok {
			return p
		}
	}
	return Principal{}
}

// Authenticate rejects requests without a user and org.
func Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := Principal{
			UserID:      strings.TrimSpace(c.GetHeader(HeaderUserID)),
			OrgID:       strings.TrimSpace(c.GetHeader(HeaderOrgID)),
			Permissions: splitPermissions(c.GetHeader(HeaderPermissions)),
		}

		if p.UserID == "" || p.OrgID == "" {
			_ = c.Error(errutil.Unauthorized("missing caller identity", nil))
			c.Abort()
			return
		}

		c.Set(ginPrincipalKey, p)
		c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

func splitPermissions(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
