package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/careerlane_server/internal/pkg/jwt"
	"github.com/qs3c/careerlane_server/internal/pkg/response"
)

const (
	UserIDKey = "userID"
	RoleKey   = "role"
	ClaimsKey = "claims"
)

// Auth JWT 认证中间件，token 由外部认证服务签发
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.AuthError(c, "missing authorization header")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			response.AuthError(c, "authorization header must use the Bearer scheme")
			c.Abort()
			return
		}

		claims, err := jwt.ParseToken(tokenString, jwtSecret)
		if err != nil {
			response.AuthError(c, "invalid or expired token")
			c.Abort()
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuth 可选认证中间件（不强制要求登录）
func OptionalAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			c.Next()
			return
		}

		claims, err := jwt.ParseToken(tokenString, jwtSecret)
		if err == nil {
			setClaims(c, claims)
		}

		c.Next()
	}
}

// RequireRole 必须在 Auth 之后使用
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		response.PermissionError(c, "")
		c.Abort()
	}
}

func setClaims(c *gin.Context, claims *jwt.Claims) {
	c.Set(UserIDKey, claims.UserID)
	c.Set(RoleKey, claims.Role)
	c.Set(ClaimsKey, claims)
}

// GetUserID 从上下文获取用户 ID
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}
	id, ok := userID.(string)
	return id, ok && id != ""
}

// GetRole 未登录时返回空串
func GetRole(c *gin.Context) string {
	return c.GetString(RoleKey)
}

func GetClaims(c *gin.Context) (*jwt.Claims, bool) {
	v, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*jwt.Claims)
	return claims, ok
}
