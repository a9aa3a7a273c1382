package models

import (
	"time"

	"gorm.io/datatypes"
)

// Tenant 租户模型 - 贫血模型，只包含数据结构
type Tenant struct {
	BaseModel
	Name        string         `json:"name" gorm:"not null;size:100"`
	Slug        string         `json:"slug" gorm:"unique;not null;size:50;index"` // 子域名/路径标识，全局唯一
	Domain      *string        `json:"domain" gorm:"unique;size:255"`             // 自定义域名（白标），全局唯一
	Status      string         `json:"status" gorm:"default:'trial';size:20"`
	Plan        string         `json:"plan" gorm:"default:'starter';size:20"`
	MaxUsers    int            `json:"max_users" gorm:"default:5"`
	MaxAPICalls int            `json:"max_api_calls" gorm:"default:10000"`
	TrialEndsAt *time.Time     `json:"trial_ends_at"`
	Branding    datatypes.JSON `json:"branding"` // logo、主题色等白标配置
	UserCount   int            `json:"user_count" gorm:"-"`
}

// TableName 表名
func (t *Tenant) TableName() string {
	return "tenants"
}

// 租户状态常量
const (
	TenantStatusTrial     = "trial"
	TenantStatusActive    = "active"
	TenantStatusSuspended = "suspended"
	TenantStatusExpired   = "expired"
)

// 套餐常量
const (
	PlanStarter      = "starter"
	PlanProfessional = "professional"
	PlanEnterprise   = "enterprise"
)

// IsOperational 租户是否可接受业务操作
// suspended/expired的租户只允许只读状态查询
func (t *Tenant) IsOperational() bool {
	return t.Status == TenantStatusTrial || t.Status == TenantStatusActive
}
