package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User 用户模型
type User struct {
	BaseModel
	Email        string     `json:"email" gorm:"unique;not null;size:200;index"`
	Name         string     `json:"name" gorm:"not null;size:100"`
	PasswordHash string     `json:"-" gorm:"size:255"` // 可为空：纯魔法链接登录的用户没有密码
	Phone        *string    `json:"phone" gorm:"size:20"`
	Avatar       *string    `json:"avatar" gorm:"size:255"`
	Status       string     `json:"status" gorm:"default:'active';size:20"`
	LastLoginAt  *time.Time `json:"last_login_at"`

	// 多对多关联
	Tenants []Tenant `gorm:"many2many:tenant_members;" json:"tenants,omitempty"`
}

// TableName 表名
func (u *User) TableName() string {
	return "users"
}

// 用户状态常量
const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
	UserStatusLocked   = "locked"
)

// SetPassword 设置密码 - 数据操作方法
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

// CheckPassword 验证密码 - 数据操作方法
func (u *User) CheckPassword(password string) bool {
	if u.PasswordHash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

// GetMemberships 获取用户的所有租户成员关系
func (u *User) GetMemberships(db *gorm.DB) ([]TenantMember, error) {
	var members []TenantMember
	err := db.Where("user_id = ?", u.ID).
		Preload("Tenant").
		Find(&members).Error
	return members, err
}

// GetTenantRole 获取用户在指定租户的角色
func (u *User) GetTenantRole(db *gorm.DB, tenantID uint) (string, error) {
	var member TenantMember
	err := db.Where("user_id = ? AND tenant_id = ?", u.ID, tenantID).
		First(&member).Error
	if err != nil {
		return "", err
	}
	return member.Role, nil
}

// IsTenantMember 检查用户是否是指定租户的成员
func (u *User) IsTenantMember(db *gorm.DB, tenantID uint) bool {
	var count int64
	db.Model(&TenantMember{}).
		Where("user_id = ? AND tenant_id = ?", u.ID, tenantID).
		Count(&count)
	return count > 0
}
