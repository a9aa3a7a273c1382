package handlers

import (
	"crmnet/internal/middleware"
	"crmnet/internal/models"
	"crmnet/internal/services"
	"crmnet/pkg/audit"
	"crmnet/pkg/errors"
	"crmnet/pkg/jwt"
	"crmnet/pkg/logger"
	"crmnet/pkg/response"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type AuthHandler struct {
	magicLinkService *services.MagicLinkService
	userService      *services.UserService
	inviteService    *services.InviteService
	permissionSvc    *services.PermissionService
	auditEmitter     audit.Emitter
	jwtManager       *jwt.JWTManager
}

func NewAuthHandler(
	magicLinkService *services.MagicLinkService,
	userService *services.UserService,
	inviteService *services.InviteService,
	permissionSvc *services.PermissionService,
	auditEmitter audit.Emitter,
) *AuthHandler {
	return &AuthHandler{
		magicLinkService: magicLinkService,
		userService:      userService,
		inviteService:    inviteService,
		permissionSvc:    permissionSvc,
		auditEmitter:     auditEmitter,
		jwtManager:       jwt.GetJWTManager(), // 使用全局JWT管理器
	}
}

// RequestMagicLinkRequest 申请登录链接请求
type RequestMagicLinkRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Intent   string `json:"intent" binding:"required,oneof=signin invite password-reset signup"`
	InviteID *uint  `json:"invite_id"`
}

// VerifyMagicLinkRequest 验证登录链接请求
type VerifyMagicLinkRequest struct {
	Token string `json:"token" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

// LoginResponse 登录成功响应
type LoginResponse struct {
	Token     string   `json:"token"`
	ExpiresAt int64    `json:"expires_at"`
	Email     string   `json:"email"`
	Intent    string   `json:"intent"`
	IsInvite  bool     `json:"is_invite"`
	User      UserInfo `json:"user"`
}

type UserInfo struct {
	ID       uint   `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	TenantID uint   `json:"tenant_id"`
	Role     string `json:"role"`
}

// RequestMagicLink 申请魔法链接
// 成功响应不区分邮箱是否注册，密钥只随邮件送达，绝不出现在响应体里
func (h *AuthHandler) RequestMagicLink(c *gin.Context) {
	var req RequestMagicLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	opt := services.IssueOptions{
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
		InviteID:  req.InviteID,
	}
	if tenantCtx, ok := middleware.GetTenantContext(c); ok {
		opt.TenantID = tenantCtx.ID
	}

	_, err := h.magicLinkService.Issue(req.Email, req.Intent, opt)
	if err != nil {
		// 限流与容量上限分开提示，前端文案不同
		if rateErr, ok := err.(*services.RateLimitError); ok {
			response.TooManyRequests(c, rateErr.Error(), int64(rateErr.RetryAfter.Seconds())+1)
			return
		}
		if err == services.ErrTooManyActiveTokens {
			response.Error(c, errors.CodeTooManyRequests, err.Error())
			return
		}
		if err == services.ErrInviteNotFound || err == services.ErrInviteInvalid || err == services.ErrInviteRequired {
			response.BadRequest(c, err.Error())
			return
		}
		logger.GetLogger().Errorf("签发魔法链接失败: %v", err)
		response.ServerError(c, "发送登录链接失败，请稍后再试")
		return
	}

	response.SuccessWithMessage(c, "登录链接已发送，请查收邮件", gin.H{
		"email": req.Email,
	})
}

// VerifyMagicLink 验证魔法链接并建立会话
// 所有验证失败的响应完全一致，不向调用方暴露失败原因
func (h *AuthHandler) VerifyMagicLink(c *gin.Context) {
	var req VerifyMagicLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	result, err := h.magicLinkService.Verify(req.Token, req.Email, services.VerifyOptions{
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		response.Unauthorized(c, services.ErrInvalidLink.Error())
		return
	}

	// 根据用途落实用户身份
	user, err := h.userService.GetByEmail(result.Email)
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			response.Unauthorized(c, services.ErrInvalidLink.Error())
			return
		}
		// 注册/邀请类链接允许首次创建用户
		if result.Intent != models.IntentSignup && !result.IsInvite {
			response.Unauthorized(c, services.ErrInvalidLink.Error())
			return
		}
		name := result.Email
		if idx := strings.Index(name, "@"); idx > 0 {
			name = name[:idx]
		}
		user, err = h.userService.Create(result.Email, name, "")
		if err != nil {
			logger.GetLogger().Errorf("创建用户失败: %v", err)
			response.Unauthorized(c, services.ErrInvalidLink.Error())
			return
		}
	}

	// 邀请类链接在此落实成员关系
	if result.IsInvite && result.InviteID != nil {
		invite, err := h.inviteService.GetByID(*result.InviteID)
		if err == nil {
			if err := h.inviteService.AcceptMembership(user.ID, invite); err != nil {
				logger.GetLogger().Errorf("建立邀请成员关系失败: %v", err)
			}
		}
	}

	// 确定会话的租户与角色：优先用请求解析出的租户，其次取首个成员关系
	var tenantID uint
	role := models.RoleCustomer
	if tenantCtx, ok := middleware.GetTenantContext(c); ok {
		if member, err := h.userService.GetMembership(user.ID, tenantCtx.ID); err == nil {
			tenantID = member.TenantID
			role = member.Role
		}
	}
	if tenantID == 0 {
		if members, err := h.userService.GetMemberships(user.ID); err == nil && len(members) > 0 {
			tenantID = members[0].TenantID
			role = members[0].Role
		}
	}

	token, err := h.jwtManager.GenerateToken(user.ID, tenantID, user.Email, role)
	if err != nil {
		response.ServerError(c, "生成Token失败")
		return
	}

	if err := h.userService.UpdateLastLogin(user.ID); err != nil {
		// 记录日志但不影响登录流程
		logger.GetLogger().Warnf("更新最后登录时间失败: %v", err)
	}

	expiresAt := time.Now().Add(h.jwtManager.GetTokenDuration()).Unix()

	response.Success(c, LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Email:     result.Email,
		Intent:    result.Intent,
		IsInvite:  result.IsInvite,
		User: UserInfo{
			ID:       user.ID,
			Email:    user.Email,
			Name:     user.Name,
			TenantID: tenantID,
			Role:     role,
		},
	})
}

// RevokeLinks 作废当前用户全部存活登录链接
func (h *AuthHandler) RevokeLinks(c *gin.Context) {
	claims, exists := c.Get("claims")
	if !exists {
		response.Unauthorized(c, "请先登录")
		return
	}
	sessionClaims := claims.(*jwt.SessionClaims)

	if err := h.magicLinkService.RevokeAll(sessionClaims.Email); err != nil {
		response.ServerError(c, "作废登录链接失败")
		return
	}

	response.SuccessWithMessage(c, "已作废全部未使用的登录链接", nil)
}

// Me 获取当前登录用户的完整信息
func (h *AuthHandler) Me(c *gin.Context) {
	claims, exists := c.Get("claims")
	if !exists {
		response.Unauthorized(c, "未登录")
		return
	}
	sessionClaims := claims.(*jwt.SessionClaims)

	user, err := h.userService.GetByID(sessionClaims.UserID)
	if err != nil {
		response.NotFound(c, "用户不存在")
		return
	}

	memberships, err := h.userService.GetMemberships(user.ID)
	if err != nil {
		memberships = []models.TenantMember{}
	}

	var tenantList []gin.H
	for _, m := range memberships {
		tenantList = append(tenantList, gin.H{
			"tenant_id": m.TenantID,
			"slug":      m.Tenant.Slug,
			"name":      m.Tenant.Name,
			"status":    m.Tenant.Status,
			"role":      m.Role,
			"is_current": m.TenantID == sessionClaims.TenantID,
		})
	}

	responseData := gin.H{
		"user": gin.H{
			"id":            user.ID,
			"email":         user.Email,
			"name":          user.Name,
			"phone":         user.Phone,
			"avatar":        user.Avatar,
			"status":        user.Status,
			"created_at":    user.CreatedAt,
			"last_login_at": user.LastLoginAt,
		},
		"tenant_id": sessionClaims.TenantID,
		"role":      sessionClaims.Role,
		"tenants":   tenantList,
	}
	if sessionClaims.IsImpersonated() {
		responseData["impersonator_id"] = sessionClaims.ImpersonatorID
	}

	response.Success(c, responseData)
}

// ImpersonateRequest 代登录请求
type ImpersonateRequest struct {
	TargetID uint `json:"target_id" binding:"required"`
}

// Impersonate 代登录目标用户
// 权限检查 + 角色层级表双重闸门，全程审计留痕
func (h *AuthHandler) Impersonate(c *gin.Context) {
	claims, exists := c.Get("claims")
	if !exists {
		response.Unauthorized(c, "未登录")
		return
	}
	sessionClaims := claims.(*jwt.SessionClaims)

	var req ImpersonateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	allowed, err := h.permissionSvc.CanImpersonate(sessionClaims.UserID, req.TargetID, sessionClaims.TenantID)
	if err != nil {
		response.ServerError(c, "代登录检查失败")
		return
	}
	if !allowed {
		response.Forbidden(c, "没有代登录该用户的权限")
		return
	}

	target, err := h.userService.GetByID(req.TargetID)
	if err != nil {
		response.NotFound(c, "目标用户不存在")
		return
	}
	member, err := h.userService.GetMembership(req.TargetID, sessionClaims.TenantID)
	if err != nil {
		response.NotFound(c, "目标用户不在当前租户")
		return
	}

	token, err := h.jwtManager.GenerateImpersonationToken(
		sessionClaims.UserID,
		target.ID,
		sessionClaims.TenantID,
		target.Email,
		member.Role,
	)
	if err != nil {
		response.ServerError(c, "生成Token失败")
		return
	}

	h.auditEmitter.Emit(audit.Event{
		Name:     "session.impersonation_started",
		UserID:   sessionClaims.UserID,
		TenantID: sessionClaims.TenantID,
		Metadata: map[string]interface{}{
			"target_id":    target.ID,
			"target_email": target.Email,
		},
	})

	expiresAt := time.Now().Add(h.jwtManager.GetTokenDuration()).Unix()
	response.Success(c, gin.H{
		"token":      token,
		"expires_at": expiresAt,
		"target": gin.H{
			"id":    target.ID,
			"email": target.Email,
			"name":  target.Name,
			"role":  member.Role,
		},
	})
}
