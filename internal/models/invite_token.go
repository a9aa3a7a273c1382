package models

import (
	"time"
)

// InviteToken 租户邀请令牌
// 魔法链接以 intent=invite 签发时引用它，消费时原子递增使用次数
type InviteToken struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	TenantID    uint      `gorm:"not null;index" json:"tenant_id"`
	InviterID   uint      `gorm:"not null" json:"inviter_id"`                   // 邀请人
	Email       string    `gorm:"size:200;not null;index" json:"email"`         // 被邀请人邮箱
	Role        string    `gorm:"size:30;not null" json:"role"`                 // 加入后分配的角色
	Token       string    `gorm:"size:100;uniqueIndex" json:"token"`            // 邀请令牌
	MaxUses     int       `gorm:"not null;default:1" json:"max_uses"`           // 最大使用次数
	CurrentUses int       `gorm:"not null;default:0" json:"current_uses"`       // 已使用次数
	Used        bool      `gorm:"not null;default:false;index" json:"used"`     // 次数用尽或人工作废
	Message     string    `gorm:"size:500" json:"message,omitempty"`            // 邀请留言
	ExpiresAt   time.Time `gorm:"not null" json:"expires_at"`                   // 过期时间
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// 关联
	Tenant  Tenant `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE" json:"tenant,omitempty"`
	Inviter User   `gorm:"foreignKey:InviterID" json:"inviter,omitempty"`
}

// TableName 指定表名
func (InviteToken) TableName() string {
	return "invite_tokens"
}

// IsValid 检查邀请是否可用
func (it *InviteToken) IsValid(now time.Time) bool {
	return !it.Used && it.CurrentUses < it.MaxUses && now.Before(it.ExpiresAt)
}

// HasRemainingUses 是否还有剩余使用次数
func (it *InviteToken) HasRemainingUses() bool {
	return it.CurrentUses < it.MaxUses
}
