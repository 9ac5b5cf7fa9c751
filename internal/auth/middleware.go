package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"placement/internal/apperr"
	"placement/internal/model"
)

const claimsKey = "claims"

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}

// Bearer enforces bearer JWT tokens signed with HS256.
func Bearer(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			abort(c, http.StatusUnauthorized, apperr.CodeUnauthorized, "missing bearer token")
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			abort(c, http.StatusUnauthorized, apperr.CodeUnauthorized, "invalid token")
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole rejects principals without role. It must run after Bearer.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok || claims.Role != role {
			abort(c, http.StatusForbidden, apperr.CodeForbidden, "insufficient role")
			return
		}
		c.Next()
	}
}

// ClaimsFrom returns the claims stored by Bearer.
func ClaimsFrom(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

// Admin builds the admin capability from the request principal.
func Admin(c *gin.Context) model.AdminContext {
	claims, _ := ClaimsFrom(c)
	return model.AdminContext{AdminID: claims.Subject}
}

// Student builds the student identity from the request principal.
func Student(c *gin.Context) model.StudentContext {
	claims, _ := ClaimsFrom(c)
	return model.StudentContext{UserID: claims.Subject}
}
