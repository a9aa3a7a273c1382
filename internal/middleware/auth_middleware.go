package middleware

import (
	"crmnet/internal/models"
	"crmnet/internal/services"
	"crmnet/pkg/jwt"
	"crmnet/pkg/response"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware 权限中间件
type AuthMiddleware struct {
	userService       *services.UserService
	permissionService *services.PermissionService
	jwtManager        *jwt.JWTManager
}

func NewAuthMiddleware(userService *services.UserService, permissionService *services.PermissionService) *AuthMiddleware {
	return &AuthMiddleware{
		userService:       userService,
		permissionService: permissionService,
		jwtManager:        jwt.GetJWTManager(), // 使用全局JWT管理器
	}
}

// RequireLogin 要求已登录
func (m *AuthMiddleware) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 从Authorization头获取JWT token
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "请先登录")
			c.Abort()
			return
		}

		// 检查Bearer格式
		if !strings.HasPrefix(authHeader, "Bearer ") {
			response.Unauthorized(c, "认证头格式错误")
			c.Abort()
			return
		}

		tokenString := authHeader[7:] // 去掉 "Bearer "

		// 验证token
		claims, err := m.jwtManager.VerifyToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "Token无效或已过期")
			c.Abort()
			return
		}

		// 获取用户信息
		user, err := m.userService.GetByID(claims.UserID)
		if err != nil {
			response.Unauthorized(c, "用户不存在")
			c.Abort()
			return
		}

		// 检查用户状态
		if !m.userService.IsActive(user) {
			response.Unauthorized(c, "用户已被禁用")
			c.Abort()
			return
		}

		// 将用户信息保存到上下文
		c.Set("user", user)
		c.Set("user_id", claims.UserID)
		c.Set("tenant_id", claims.TenantID)
		c.Set("role", claims.Role)
		c.Set("claims", claims)

		c.Next()
	}
}

// RequirePermission 要求模块操作权限
// 权限判定失败一律拒绝（fail closed），对外只返回403
func (m *AuthMiddleware) RequirePermission(module, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, exists := c.Get("claims")
		if !exists {
			response.Unauthorized(c, "请先登录")
			c.Abort()
			return
		}
		sessionClaims := claims.(*jwt.SessionClaims)

		allowed, err := m.permissionService.HasPermission(
			sessionClaims.UserID,
			sessionClaims.TenantID,
			sessionClaims.Role,
			module,
			action,
		)
		if err != nil {
			response.Forbidden(c, "没有权限执行此操作")
			c.Abort()
			return
		}
		if !allowed {
			response.Forbidden(c, "没有权限执行此操作")
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireRole 要求指定角色之一
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, exists := c.Get("claims")
		if !exists {
			response.Unauthorized(c, "请先登录")
			c.Abort()
			return
		}
		sessionClaims := claims.(*jwt.SessionClaims)

		for _, role := range roles {
			if sessionClaims.Role == role {
				c.Next()
				return
			}
		}

		response.Forbidden(c, "需要更高的角色权限")
		c.Abort()
	}
}

// RequireSuperAdmin 要求平台超级管理员
func (m *AuthMiddleware) RequireSuperAdmin() gin.HandlerFunc {
	return m.RequireRole(models.RoleSuperAdmin)
}
