// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller's identity. Authentication itself is
// delegated to an external identity provider; this server trusts the
// X-User-ID header set by that layer. Requests without an identity are
// rejected before any side effect unless a demo identity is configured for
// local development.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderUserID carries the authenticated user id, set by the identity
// provider's edge in front of this server.
const HeaderUserID = "X-User-ID"

// IdentityOptions configures identity resolution. DemoUser, when non-empty,
// substitutes for a missing header so the API is usable without an identity
// edge in development. Required forces rejection of anonymous requests even
// when DemoUser is set.
type IdentityOptions struct {
	Required bool
	DemoUser string
}

// Identity resolves the user id from X-User-ID and stores it under the
// "userID" context key for downstream middleware and handlers. Anonymous
// requests get 401 unless a demo identity applies.
func Identity(opt IdentityOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if id == "" {
			if opt.Required || opt.DemoUser == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"code":    "unauthorized",
					"message": "identity required",
				})
				return
			}
			id = opt.DemoUser
		}
		c.Set("userID", id)
		c.Next()
	}
}
