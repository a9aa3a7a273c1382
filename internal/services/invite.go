package services

import (
	"crmnet/internal/models"
	"crmnet/pkg/logger"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// InviteService 邀请服务
// 邀请的消费（计数递增）发生在魔法链接验证事务内，这里只管生命周期
type InviteService struct {
	db         *gorm.DB
	log        *logrus.Logger
	permission *PermissionService
}

// CreateInviteRequest 创建邀请请求
type CreateInviteRequest struct {
	Email   string `json:"email" binding:"required,email"`
	Role    string `json:"role" binding:"required"`
	MaxUses int    `json:"max_uses"`
	Message string `json:"message"`
}

// NewInviteService 创建邀请服务
func NewInviteService(db *gorm.DB, permission *PermissionService) *InviteService {
	return &InviteService{
		db:         db,
		log:        logger.GetLogger(),
		permission: permission,
	}
}

// Create 创建邀请
func (s *InviteService) Create(inviterID, tenantID uint, req *CreateInviteRequest) (*models.InviteToken, error) {
	if !models.IsValidRole(req.Role) {
		return nil, fmt.Errorf("无效的角色: %s", req.Role)
	}
	// 不允许通过邀请发放SUPER_ADMIN
	if req.Role == models.RoleSuperAdmin {
		return nil, fmt.Errorf("不允许邀请为超级管理员")
	}

	// 邀请人需要团队管理权限
	inviterRole, err := s.permission.memberRole(inviterID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("邀请人不是该租户成员")
	}
	allowed, err := s.permission.HasPermission(inviterID, tenantID, inviterRole,
		models.ModuleTeamManagement, models.ActionManage)
	if err != nil {
		return nil, fmt.Errorf("权限检查失败: %v", err)
	}
	if !allowed {
		return nil, fmt.Errorf("没有邀请成员的权限")
	}

	// 同邮箱已有未用尽的邀请则不重复创建
	var existing models.InviteToken
	err = s.db.Where("tenant_id = ? AND email = ? AND used = ? AND expires_at > ?",
		tenantID, req.Email, false, time.Now()).First(&existing).Error
	if err == nil {
		return nil, fmt.Errorf("该邮箱已有待处理的邀请")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查询邀请失败: %v", err)
	}

	// 已是成员则拒绝
	var user models.User
	if err := s.db.Where("email = ?", req.Email).First(&user).Error; err == nil {
		if user.IsTenantMember(s.db, tenantID) {
			return nil, fmt.Errorf("该用户已是租户成员")
		}
	}

	token, err := generateInviteToken()
	if err != nil {
		return nil, err
	}

	maxUses := req.MaxUses
	if maxUses <= 0 {
		maxUses = 1
	}

	invite := &models.InviteToken{
		TenantID:  tenantID,
		InviterID: inviterID,
		Email:     req.Email,
		Role:      req.Role,
		Token:     token,
		MaxUses:   maxUses,
		Message:   req.Message,
		ExpiresAt: time.Now().Add(inviteTokenTTL),
	}

	if err := s.db.Create(invite).Error; err != nil {
		s.log.Errorf("创建邀请失败: %v", err)
		return nil, fmt.Errorf("创建邀请失败")
	}

	s.log.WithFields(logrus.Fields{
		"invite_id":  invite.ID,
		"tenant_id":  tenantID,
		"inviter_id": inviterID,
	}).Info("创建租户邀请")

	return invite, nil
}

// GetByID 根据ID获取邀请
func (s *InviteService) GetByID(id uint) (*models.InviteToken, error) {
	var invite models.InviteToken
	err := s.db.Preload("Tenant").First(&invite, id).Error
	return &invite, err
}

// GetByToken 根据令牌获取邀请
func (s *InviteService) GetByToken(token string) (*models.InviteToken, error) {
	var invite models.InviteToken
	err := s.db.Preload("Tenant").Where("token = ?", token).First(&invite).Error
	return &invite, err
}

// GetByTenantWithPage 分页获取租户邀请列表
func (s *InviteService) GetByTenantWithPage(tenantID uint, page, pageSize int) ([]*models.InviteToken, int64, error) {
	var invites []*models.InviteToken
	var total int64

	query := s.db.Model(&models.InviteToken{}).Where("tenant_id = ?", tenantID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&invites).Error
	if err != nil {
		return nil, 0, err
	}

	return invites, total, nil
}

// Cancel 作废邀请
func (s *InviteService) Cancel(id, tenantID uint) error {
	res := s.db.Model(&models.InviteToken{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Update("used", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AcceptMembership 邀请验证通过后建立成员关系
// 由验证回调调用；成员关系已存在时幂等返回
func (s *InviteService) AcceptMembership(userID uint, invite *models.InviteToken) error {
	var count int64
	s.db.Model(&models.TenantMember{}).
		Where("user_id = ? AND tenant_id = ?", userID, invite.TenantID).
		Count(&count)
	if count > 0 {
		return nil
	}

	// 挂到默认团队
	var team models.Team
	var teamID *uint
	if err := s.db.Where("tenant_id = ? AND is_default = ?", invite.TenantID, true).
		First(&team).Error; err == nil {
		teamID = &team.ID
	}

	member := &models.TenantMember{
		UserID:    userID,
		TenantID:  invite.TenantID,
		TeamID:    teamID,
		Role:      invite.Role,
		JoinedAt:  time.Now(),
		InvitedBy: &invite.InviterID,
	}
	return s.db.Create(member).Error
}

func generateInviteToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("生成邀请令牌失败: %v", err)
	}
	return hex.EncodeToString(buf), nil
}
