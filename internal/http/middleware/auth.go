// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token authentication (HS256 JWTs) and role
// checks. The subject claim becomes the farmer ID under the "userID"
// context key, which the rate limiter, idempotency validator and handlers
// read.
package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ctxKeyUserID = "userID"
	ctxKeyRoles  = "roles"
)

// RoleLookup resolves the stored role of userID when the token carries none.
type RoleLookup func(ctx context.Context, userID string) (string, error)

// AuthOptions configures Auth.
type AuthOptions struct {
	Secret string
	Issuer string // checked when non-empty
	Roles  RoleLookup
}

// Auth validates "Authorization: Bearer <jwt>" and stores the subject and
// roles in the context. Failures answer 401 in the legacy {error, message}
// shape the dashboard expects.
func Auth(opts AuthOptions) gin.HandlerFunc {
	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	parser := jwt.NewParser(parserOpts...)
	key := []byte(opts.Secret)

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || raw == header || raw == "" {
			unauthorized(c, "Access token required")
			return
		}
		if len(key) == 0 {
			unauthorized(c, "Authentication is not configured")
			return
		}

		claims := jwt.MapClaims{}
		tok, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return key, nil })
		if err != nil || !tok.Valid {
			unauthorized(c, "Invalid or expired token")
			return
		}
		sub, _ := claims.GetSubject()
		if sub == "" {
			unauthorized(c, "Token has no subject")
			return
		}

		roles := rolesFromClaims(claims)
		if len(roles) == 0 && opts.Roles != nil {
			if r, err := opts.Roles(c.Request.Context(), sub); err == nil && r != "" {
				roles = []string{r}
			}
		}
		c.Set(ctxKeyUserID, sub)
		c.Set(ctxKeyRoles, roles)
		c.Next()
	}
}

func rolesFromClaims(claims jwt.MapClaims) []string {
	var out []string
	if r, ok := claims["role"].(string); ok && r != "" {
		out = append(out, r)
	}
	if rs, ok := claims["roles"].([]any); ok {
		for _, v := range rs {
			if s, ok := v.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// RequireRole rejects callers without role with 403. Use after Auth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !slices.Contains(RolesFrom(c), role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Forbidden",
				"message": "requires the " + role + " role",
			})
			return
		}
		c.Next()
	}
}

// InternalToken guards diagnostic routes with the X-Internal-Token header.
// An empty token leaves the route open.
func InternalToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token != "" && c.GetHeader("X-Internal-Token") != token {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated farmer ID, or "".
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// RolesFrom returns the roles stored by Auth.
func RolesFrom(c *gin.Context) []string {
	if v, ok := c.Get(ctxKeyRoles); ok {
		if rs, ok := v.([]string); ok {
			return rs
		}
	}
	return nil
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "message": msg})
}
