package router

import (
	"crmnet/internal/database"
	"crmnet/internal/handlers"
	"crmnet/internal/middleware"
	"crmnet/internal/models"
	"crmnet/internal/services"
	"crmnet/pkg/audit"
	"crmnet/pkg/config"
	"crmnet/pkg/logger"
	"crmnet/pkg/response"
	"time"

	"github.com/gin-gonic/gin"
)

// SetupRouter 设置路由
func SetupRouter(hub *audit.Hub, emitter audit.Emitter) *gin.Engine {
	router := gin.New()

	// 中间件
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.SetupCORS())

	// 注册路由
	registerRoutes(router, hub, emitter)
	return router
}

// 注册所有路由
func registerRoutes(router *gin.Engine, hub *audit.Hub, emitter audit.Emitter) {
	db := database.GetDB()
	cfg := config.GetConfig()

	// 服务层
	userService := services.NewUserService(db)
	permissionService := services.NewPermissionService(db)
	tenantService := services.NewTenantService(db, emitter)
	inviteService := services.NewInviteService(db, permissionService)
	magicLinkService := services.NewMagicLinkService(db, emitter, database.GetMailQueue())
	eventService := services.NewSecurityEventService(db)

	resolver := services.NewTenantResolver(db, services.ResolverConfig{
		ApexDomain:         cfg.Platform.ApexDomain,
		SystemDomains:      cfg.Platform.SystemDomains,
		ReservedSubdomains: cfg.Platform.ReservedSubdomains,
		ReservedPaths:      cfg.Platform.ReservedPaths,
	})

	auth := middleware.NewAuthMiddleware(userService, permissionService)
	tenant := middleware.NewTenantMiddleware(resolver)

	// 处理器
	authHandler := handlers.NewAuthHandler(magicLinkService, userService, inviteService, permissionService, emitter)
	tenantHandler := handlers.NewTenantHandler(tenantService)
	inviteHandler := handlers.NewInviteHandler(inviteService)
	permissionHandler := handlers.NewPermissionHandler(permissionService)
	eventHandler := handlers.NewSecurityEventHandler(eventService)
	wsHandler := handlers.NewWebSocketHandler(hub)

	// API路由组，每个请求先做租户解析
	api := router.Group("/api/v1")
	api.Use(tenant.Resolve())
	{
		// 健康检查接口
		api.GET("/health", healthCheck)
		api.GET("/ping", ping)

		// 认证路由（魔法链接，无需登录）
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/magic-link", authHandler.RequestMagicLink)        // 申请登录链接
			authGroup.POST("/magic-link/verify", authHandler.VerifyMagicLink)  // 验证链接换取会话

			// 🔒 已登录操作
			authGroup.POST("/magic-link/revoke", auth.RequireLogin(), authHandler.RevokeLinks)
			authGroup.GET("/me", auth.RequireLogin(), authHandler.Me)
			authGroup.POST("/impersonate", auth.RequireLogin(), authHandler.Impersonate)
		}

		// 邀请路由
		invites := api.Group("/invites")
		{
			invites.GET("/token/:token", inviteHandler.GetByToken) // 注册页预填，无需登录

			// 🔒 管理操作（需要团队管理权限）
			invites.POST("", auth.RequireLogin(), auth.RequirePermission(models.ModuleTeamManagement, models.ActionManage), inviteHandler.Create)
			invites.GET("", auth.RequireLogin(), auth.RequirePermission(models.ModuleTeamManagement, models.ActionView), inviteHandler.GetAll)
			invites.DELETE("/:id", auth.RequireLogin(), auth.RequirePermission(models.ModuleTeamManagement, models.ActionManage), inviteHandler.Cancel)
		}

		// 权限路由
		permissions := api.Group("/permissions")
		{
			permissions.GET("", auth.RequireLogin(), permissionHandler.GetAll)
			permissions.POST("/check", auth.RequireLogin(), permissionHandler.Check)

			// 🔒 角色权限管理
			permissions.GET("/roles/:role", auth.RequireLogin(), auth.RequirePermission(models.ModuleSettings, models.ActionView), permissionHandler.GetRolePermissions)
			permissions.PUT("/roles", auth.RequireLogin(), auth.RequirePermission(models.ModuleSettings, models.ActionManage), permissionHandler.AssignRolePermissions)

			// 🔒 用户权限覆盖
			permissions.GET("/users/:user_id", auth.RequireLogin(), auth.RequirePermission(models.ModuleSettings, models.ActionView), permissionHandler.GetUserPermissions)
			permissions.PUT("/users", auth.RequireLogin(), auth.RequirePermission(models.ModuleSettings, models.ActionManage), permissionHandler.SetUserPermission)
			permissions.DELETE("/users/:user_id/:permission_id", auth.RequireLogin(), auth.RequirePermission(models.ModuleSettings, models.ActionManage), permissionHandler.RemoveUserPermission)
		}

		// 安全事件路由
		events := api.Group("/security-events")
		{
			events.GET("", auth.RequireLogin(), auth.RequireRole(models.RoleSuperAdmin, models.RoleAdmin), eventHandler.GetAll)
		}

		// 租户管理路由（仅平台管理员）
		tenants := api.Group("/tenants")
		{
			tenants.POST("", auth.RequireLogin(), auth.RequireSuperAdmin(), tenantHandler.Provision)
			tenants.GET("", auth.RequireLogin(), auth.RequireSuperAdmin(), tenantHandler.GetAll)
			tenants.GET("/stats", auth.RequireLogin(), auth.RequireSuperAdmin(), tenantHandler.GetStats)
			tenants.GET("/:id", auth.RequireLogin(), auth.RequireSuperAdmin(), tenantHandler.GetByID)
			tenants.POST("/:id/activate", auth.RequireLogin(), auth.RequireSuperAdmin(), tenantHandler.Activate)
			tenants.POST("/:id/suspend", auth.RequireLogin(), auth.RequireSuperAdmin(), tenantHandler.Suspend)
			tenants.POST("/:id/expire", auth.RequireLogin(), auth.RequireSuperAdmin(), tenantHandler.MarkExpired)
			tenants.DELETE("/:id", auth.RequireLogin(), auth.RequireSuperAdmin(), tenantHandler.Delete)
		}
	}

	// WebSocket路由（token走查询参数，不经过认证中间件）
	ws := router.Group("/ws")
	{
		ws.GET("/security-events", wsHandler.SecurityEvents)
	}
}

// 健康检查
func healthCheck(c *gin.Context) {
	sqlDB, err := database.GetDB().DB()
	dbStatus := "ok"
	if err != nil || sqlDB.Ping() != nil {
		dbStatus = "error"
		logger.GetLogger().Error("健康检查：数据库连接异常")
	}

	response.Success(c, gin.H{
		"status":   "ok",
		"database": dbStatus,
		"time":     time.Now().Format(time.RFC3339),
	})
}

func ping(c *gin.Context) {
	response.Success(c, gin.H{"message": "pong"})
}
