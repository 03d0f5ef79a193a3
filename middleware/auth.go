package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vendiko/vendiko-api/services"
)

// Principal headers set by the gateway after it has authenticated the
// request. The core trusts them without re-validating credentials; the
// gateway strips any client-supplied copies.
const (
	HeaderUserID = "X-User-Id"
	HeaderRole   = "X-User-Role"
)

const principalKey = "principal"

var errNoPrincipal = errors.New("no principal in context")

// Principal is a middleware that extracts the gateway-verified identity and
// stores it in the request context. Requests without one are rejected.
func Principal() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseUint(c.GetHeader(HeaderUserID), 10, 32)
		if err != nil || userID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Missing or invalid principal",
				},
			})
			return
		}

		role := c.GetHeader(HeaderRole)
		if role == "" {
			role = services.RoleCustomer
		}

		c.Set(principalKey, services.Principal{UserID: uint(userID), Role: role})
		c.Next()
	}
}

// RequireRole rejects requests whose principal has none of the given roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := GetPrincipal(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Missing or invalid principal",
				},
			})
			return
		}

		for _, role := range roles {
			if principal.Role == role {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Insufficient role for this operation",
			},
		})
	}
}

// GetPrincipal returns the request's verified principal.
func GetPrincipal(c *gin.Context) (services.Principal, error) {
	v, exists := c.Get(principalKey)
	if !exists {
		return services.Principal{}, errNoPrincipal
	}
	principal, ok := v.(services.Principal)
	if !ok {
		return services.Principal{}, errNoPrincipal
	}
	return principal, nil
}
