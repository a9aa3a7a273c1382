package models

import (
	"time"
)

// RateLimitWindow 魔法链接签发限流窗口
// 按标识（邮箱或IP）+类型唯一，窗口起点落到回看期外即重置计数
type RateLimitWindow struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	Identifier  string    `gorm:"size:200;not null;uniqueIndex:idx_rlw_identifier_kind" json:"identifier"`
	Kind        string    `gorm:"size:10;not null;uniqueIndex:idx_rlw_identifier_kind" json:"kind"`
	WindowStart time.Time `gorm:"not null;index" json:"window_start"`
	Count       int       `gorm:"not null;default:0" json:"count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName 指定表名
func (RateLimitWindow) TableName() string {
	return "magic_link_rate_limits"
}

// 限流标识类型常量
const (
	RateLimitKindEmail = "email"
	RateLimitKindIP    = "ip"
)

// IsStale 窗口起点是否已落到窗口期外
func (w *RateLimitWindow) IsStale(now time.Time, window time.Duration) bool {
	return now.Sub(w.WindowStart) >= window
}
