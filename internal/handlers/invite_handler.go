package handlers

import (
	"crmnet/internal/services"
	"crmnet/pkg/jwt"
	"crmnet/pkg/pagination"
	"crmnet/pkg/response"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type InviteHandler struct {
	inviteService *services.InviteService
}

func NewInviteHandler(inviteService *services.InviteService) *InviteHandler {
	return &InviteHandler{inviteService: inviteService}
}

// Create 创建邀请
func (h *InviteHandler) Create(c *gin.Context) {
	claims := c.MustGet("claims").(*jwt.SessionClaims)

	var req services.CreateInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	invite, err := h.inviteService.Create(claims.UserID, claims.TenantID, &req)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	response.SuccessWithMessage(c, "邀请创建成功", invite)
}

// GetAll 获取当前租户的邀请列表
func (h *InviteHandler) GetAll(c *gin.Context) {
	claims := c.MustGet("claims").(*jwt.SessionClaims)
	params := pagination.ParsePageParams(c)

	invites, total, err := h.inviteService.GetByTenantWithPage(claims.TenantID, params.Page, params.PageSize)
	if err != nil {
		response.ServerError(c, "获取邀请列表失败")
		return
	}

	pageInfo := pagination.NewPageInfo(params.Page, params.PageSize, total)
	response.SuccessWithPage(c, invites, pageInfo)
}

// GetByToken 根据令牌查询邀请（注册页预填展示用）
func (h *InviteHandler) GetByToken(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		response.BadRequest(c, "邀请令牌不能为空")
		return
	}

	invite, err := h.inviteService.GetByToken(token)
	if err != nil {
		response.NotFound(c, "邀请不存在或已失效")
		return
	}
	if !invite.IsValid(time.Now()) {
		response.BadRequest(c, "邀请已失效")
		return
	}

	// 只暴露展示所需字段，不暴露邀请人等内部信息
	response.Success(c, gin.H{
		"id":         invite.ID,
		"email":      invite.Email,
		"role":       invite.Role,
		"tenant_id":  invite.TenantID,
		"expires_at": invite.ExpiresAt,
	})
}

// Cancel 取消邀请
func (h *InviteHandler) Cancel(c *gin.Context) {
	claims := c.MustGet("claims").(*jwt.SessionClaims)

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的邀请ID")
		return
	}

	if err := h.inviteService.Cancel(uint(id), claims.TenantID); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	response.SuccessWithMessage(c, "邀请已取消", nil)
}
