package models

import (
	"time"
)

// MagicLinkToken 魔法链接令牌
// 只保存密钥的单向哈希，明文仅在签发时返回一次，随邮件送达后即不可恢复
type MagicLinkToken struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Email     string    `gorm:"size:200;not null;index:idx_mlt_email_used" json:"email"`
	Intent    string    `gorm:"size:20;not null" json:"intent"`
	TokenHash string    `gorm:"size:64;not null;uniqueIndex" json:"-"` // SHA-256十六进制
	InviteID  *uint     `gorm:"index" json:"invite_id"`                // intent=invite时关联的邀请
	Used      bool      `gorm:"not null;default:false;index:idx_mlt_email_used" json:"used"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	UserAgent string    `gorm:"size:500" json:"user_agent,omitempty"` // 签发时采集，验证时仅比对告警
	IPAddress string    `gorm:"size:45" json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 关联
	Invite *InviteToken `gorm:"foreignKey:InviteID" json:"invite,omitempty"`
}

// TableName 指定表名
func (MagicLinkToken) TableName() string {
	return "magic_link_tokens"
}

// 令牌用途常量
const (
	IntentSignin        = "signin"
	IntentInvite        = "invite"
	IntentPasswordReset = "password-reset"
	IntentSignup        = "signup"
)

// IsValidIntent 检查令牌用途是否合法
func IsValidIntent(intent string) bool {
	switch intent {
	case IntentSignin, IntentInvite, IntentPasswordReset, IntentSignup:
		return true
	default:
		return false
	}
}

// IsLive 令牌是否仍可使用（未消费且未过期）
func (t *MagicLinkToken) IsLive(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}
