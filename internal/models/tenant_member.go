package models

import (
	"time"
)

// TenantMember 用户-租户成员关系，附带该租户内的角色
type TenantMember struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_member_user_tenant" json:"user_id"`
	TenantID  uint      `gorm:"not null;uniqueIndex:idx_member_user_tenant" json:"tenant_id"`
	TeamID    *uint     `gorm:"index" json:"team_id"`
	Role      string    `gorm:"size:30;not null" json:"role"` // 固定角色枚举之一
	JoinedAt  time.Time `gorm:"not null" json:"joined_at"`
	InvitedBy *uint     `json:"invited_by"` // 邀请人ID
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 关联
	User    User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Tenant  Tenant `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE" json:"tenant,omitempty"`
	Team    *Team  `gorm:"foreignKey:TeamID" json:"team,omitempty"`
	Inviter *User  `gorm:"foreignKey:InvitedBy" json:"inviter,omitempty"`
}

// TableName 指定表名
func (TenantMember) TableName() string {
	return "tenant_members"
}
