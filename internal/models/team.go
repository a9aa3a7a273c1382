package models

// Team 团队模型
// 每个租户开通时自动创建一个默认团队，销售/客户数据挂在团队下
type Team struct {
	BaseModel
	TenantID  uint   `json:"tenant_id" gorm:"not null;index"`
	Name      string `json:"name" gorm:"not null;size:100"`
	IsDefault bool   `json:"is_default" gorm:"default:false"`

	// 关联
	Tenant Tenant `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE" json:"tenant,omitempty"`
}

// TableName 表名
func (Team) TableName() string {
	return "teams"
}
