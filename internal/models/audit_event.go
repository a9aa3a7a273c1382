package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditEvent 安全事件留痕
// 魔法链接签发/验证、代登录、租户状态变更等关键动作的审计记录
type AuditEvent struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	EventID   string         `gorm:"size:36;uniqueIndex" json:"event_id"` // UUID
	Event     string         `gorm:"size:100;not null;index" json:"event"`
	Email     string         `gorm:"size:200;index" json:"email,omitempty"`
	UserID    *uint          `gorm:"index" json:"user_id,omitempty"`
	TenantID  *uint          `gorm:"index" json:"tenant_id,omitempty"`
	IPAddress string         `gorm:"size:45" json:"ip_address,omitempty"`
	UserAgent string         `gorm:"size:500" json:"user_agent,omitempty"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// TableName 指定表名
func (AuditEvent) TableName() string {
	return "audit_events"
}
