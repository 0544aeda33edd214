package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"shop-service/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const PrincipalContextKey = "principal"

var errNoPrincipal = errors.New("principal not found in context")

// JWTAuth validates an HS256 bearer token and stores the caller as a
// models.Principal. The user id comes from the user_id claim, falling back
// to sub.
func JWTAuth(secret string) gin.HandlerFunc {
	key := []byte(secret)

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token is required"})
			return
		}
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return key, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		principal, err := principalFromClaims(claims)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			return
		}

		c.Set(PrincipalContextKey, principal)
		c.Next()
	}
}

func principalFromClaims(claims jwt.MapClaims) (models.Principal, error) {
	raw, _ := claims["user_id"].(string)
	if raw == "" {
		raw, _ = claims["sub"].(string)
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return models.Principal{}, fmt.Errorf("invalid user id %q", raw)
	}

	staff, _ := claims["is_staff"].(bool)
	if role, _ := claims["role"].(string); role == "admin" || role == "staff" {
		staff = true
	}
	return models.Principal{UserID: id, IsStaff: staff}, nil
}

// RequireStaff rejects callers without the staff flag. Mount it after JWTAuth.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := GetPrincipal(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		if !p.IsStaff {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Next()
	}
}

func GetPrincipal(c *gin.Context) (models.Principal, error) {
	if val, ok := c.Get(PrincipalContextKey); ok {
		if p, ok := val.(models.Principal); ok {
			return p, nil
		}
	}
	return models.Principal{}, errNoPrincipal
}
