// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller identity. The service has no authentication
// layer of its own: a trusted proxy (or a demo client) names the user in the
// X-User-ID header. Identity validates that value once and stores it in the
// Gin context so logging, rate limiting, idempotency and handlers all agree
// on who is calling.
package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderUserID carries the caller identity.
	HeaderUserID = "X-User-ID"
	// DefaultUserID is used when no identity is supplied.
	DefaultUserID = "demo-user"

	ctxKeyUserID = "userID"
)

// IdentityOptions configures Identity.
type IdentityOptions struct {
	// Header overrides HeaderUserID.
	Header string
	// Fallback is the identity of anonymous callers. Empty means DefaultUserID.
	Fallback string
	// Required rejects requests without an identity header with 401.
	Required bool
}

// userIDRE matches the identities accepted from the header. Owner columns are
// varchar(64).
var userIDRE = regexp.MustCompile(`^[A-Za-z0-9._@:\-]{1,64}$`)

// Identity reads the caller identity from the configured header and stores it
// under the "userID" context key. Malformed values are rejected with 400.
func Identity(opts IdentityOptions) gin.HandlerFunc {
	header := opts.Header
	if header == "" {
		header = HeaderUserID
	}
	fallback := opts.Fallback
	if fallback == "" {
		fallback = DefaultUserID
	}
	return func(c *gin.Context) {
		uid := strings.TrimSpace(c.GetHeader(header))
		switch {
		case uid == "" && opts.Required:
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "missing "+header+" header")
			return
		case uid == "":
			uid = fallback
		case !userIDRE.MatchString(uid):
			abortJSON(c, http.StatusBadRequest, "bad_request", "invalid "+header+" header")
			return
		}
		c.Set(ctxKeyUserID, uid)
		c.Next()
	}
}

// UserID returns the identity stored by Identity. Without the middleware it
// falls back to the raw header and then to DefaultUserID.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if h := strings.TrimSpace(c.GetHeader(HeaderUserID)); h != "" {
		return h
	}
	return DefaultUserID
}

// abortJSON writes the error envelope shared with the handlers package.
func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       code,
		"message":    msg,
	})
}
