package services

import (
	"crmnet/internal/models"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
)

type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// ========== 基础CRUD方法 ==========

// Create 创建用户
func (s *UserService) Create(email, name, password string) (*models.User, error) {
	if err := s.ValidateCreateParams(email, name); err != nil {
		return nil, err
	}

	// 检查邮箱是否重复
	var count int64
	s.db.Model(&models.User{}).Where("email = ?", email).Count(&count)
	if count > 0 {
		return nil, fmt.Errorf("邮箱已被注册")
	}

	user := &models.User{
		Email:  email,
		Name:   name,
		Status: models.UserStatusActive,
	}
	if password != "" {
		if err := user.SetPassword(password); err != nil {
			return nil, err
		}
	}

	err := s.db.Create(user).Error
	return user, err
}

// GetByID 根据ID获取用户
func (s *UserService) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := s.db.First(&user, id).Error
	return &user, err
}

// GetByEmail 根据邮箱获取用户
func (s *UserService) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := s.db.Where("email = ?", email).First(&user).Error
	return &user, err
}

// UpdateLastLogin 更新最后登录时间
func (s *UserService) UpdateLastLogin(id uint) error {
	now := time.Now()
	return s.db.Model(&models.User{}).Where("id = ?", id).
		Update("last_login_at", &now).Error
}

// IsActive 检查用户是否激活
func (s *UserService) IsActive(user *models.User) bool {
	return user.Status == models.UserStatusActive
}

// GetMemberships 获取用户的租户成员关系列表
func (s *UserService) GetMemberships(userID uint) ([]models.TenantMember, error) {
	var members []models.TenantMember
	err := s.db.Where("user_id = ?", userID).
		Preload("Tenant").
		Find(&members).Error
	return members, err
}

// GetMembership 获取用户在指定租户的成员关系
func (s *UserService) GetMembership(userID, tenantID uint) (*models.TenantMember, error) {
	var member models.TenantMember
	err := s.db.Where("user_id = ? AND tenant_id = ?", userID, tenantID).
		Preload("Tenant").
		First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// ========== 验证方法 ==========

// ValidateEmail 验证邮箱格式（粗检，精确校验交给binding层）
func (s *UserService) ValidateEmail(email string) bool {
	if len(email) < 3 || len(email) > 200 {
		return false
	}
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1
}

// ValidateName 验证用户名称
func (s *UserService) ValidateName(name string) bool {
	runeCount := utf8.RuneCountInString(name)
	return runeCount >= 1 && runeCount <= 100
}

// ValidateCreateParams 验证创建用户的参数
func (s *UserService) ValidateCreateParams(email, name string) error {
	if !s.ValidateEmail(email) {
		return fmt.Errorf("邮箱格式错误")
	}
	if !s.ValidateName(name) {
		return fmt.Errorf("用户名称长度必须在1-100个字符之间")
	}
	return nil
}
