// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements ask-receipt support for the question endpoint. A
// client may send an Idempotency-Key header with POST
// /documents/:id/questions; the middleware validates the key, stashes it in
// the request context, and optionally consults a lookup to detect a
// previously completed ask so the handler can replay the stored answer and
// the rate limiter can skip the replay.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header clients use to convey an
// idempotency key for question submission. The value should be stable for a
// given semantic ask so retries can be deduplicated.
const HeaderIdempotencyKey = "Idempotency-Key"

// Context keys used internally to stash receipt state.
const (
	ctxKeyReceiptKey    = "receipt.key"
	ctxKeyReceiptReplay = "receipt.replay" // bool: a stored answer exists
	ctxKeyRateBypass    = "rate.bypass"    // bool: skip rate limiting
)

// GetIdempotencyKey returns the validated key stored in the Gin context by
// ReceiptValidator. The second return value indicates presence.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyReceiptKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether this request would replay a previously completed
// ask for (user, document, key).
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyReceiptReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// ReceiptOptions configures key validation. TTL enforcement lives in the
// lookup, not here.
type ReceiptOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters; nil uses a conservative
	// RFC7230-like token pattern.
	Pattern *regexp.Regexp
}

// ReceiptLookup answers whether a still-valid stored answer exists for
// (userID, documentID, key) at the given time. Return an error only for
// lookup failures; those never block normal processing.
type ReceiptLookup func(ctx context.Context, userID, documentID, key string, now time.Time) (exists bool, err error)

// ReceiptValidator validates the Idempotency-Key header (when present),
// stashes it, and marks the context for replay and rate-limit bypass when
// the lookup finds a prior completed ask. The middleware never serves the
// cached payload itself; the question handler remains in control of replays.
func ReceiptValidator(opts ReceiptOptions, lookup ReceiptLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    "bad_idempotency_key",
				"message": "invalid Idempotency-Key",
			})
			return
		}

		c.Set(ctxKeyReceiptKey, key)

		if lookup != nil {
			uid := userIDFromCtx(c)
			documentID := c.Param("id") // POST /documents/:id/questions
			now := time.Now().UTC()

			if exists, _ := lookup(c.Request.Context(), uid, documentID, key, now); exists {
				c.Set(ctxKeyReceiptReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}

// userIDFromCtx extracts the user identifier set by upstream authentication,
// falling back to the raw X-User-ID header when identity middleware has not
// run yet (this validator is installed globally, ahead of route groups). A
// development-friendly "demo-user" fallback covers unauthenticated requests.
func userIDFromCtx(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader(HeaderUserID)); h != "" {
			return h
		}
	}
	return "demo-user"
}
