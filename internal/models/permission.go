package models

import "time"

// Permission 权限模型
// (module, action) 组合全局唯一，Code为 "module:action" 形式
type Permission struct {
	BaseModel
	Code        string `gorm:"uniqueIndex;size:100;not null" json:"code"`                        // 权限代码，如 "customers:view"
	Name        string `gorm:"size:100;not null" json:"name"`                                    // 权限名称
	Description string `gorm:"size:255" json:"description"`                                      // 权限描述
	Module      string `gorm:"size:50;not null;uniqueIndex:idx_perm_module_action" json:"module"` // 所属模块
	Action      string `gorm:"size:50;not null;uniqueIndex:idx_perm_module_action" json:"action"` // 操作类型
}

// TableName 表名
func (Permission) TableName() string {
	return "permissions"
}

// 权限模块常量
const (
	ModuleCustomers      = "customers"       // 客户管理
	ModuleSales          = "sales"           // 销售活动
	ModuleReferrals      = "referrals"       // 推荐网络
	ModuleAnalytics      = "analytics"       // 数据分析
	ModuleTeamManagement = "team_management" // 团队管理
	ModuleBilling        = "billing"         // 账单
	ModuleSettings       = "settings"        // 设置
	ModuleDashboard      = "dashboard"       // 工作台
)

// 权限操作常量
const (
	ActionView        = "view"        // 查看
	ActionCreate      = "create"      // 创建
	ActionEdit        = "edit"        // 编辑
	ActionDelete      = "delete"      // 删除
	ActionAssign      = "assign"      // 分配
	ActionExport      = "export"      // 导出
	ActionImpersonate = "impersonate" // 代登录
	ActionManage      = "manage"      // 管理
)

// AllModules 全部模块列表
var AllModules = []string{
	ModuleCustomers,
	ModuleSales,
	ModuleReferrals,
	ModuleAnalytics,
	ModuleTeamManagement,
	ModuleBilling,
	ModuleSettings,
	ModuleDashboard,
}

// RolePermission 角色默认权限，租户内按角色授权
type RolePermission struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Role         string    `gorm:"size:30;not null;uniqueIndex:idx_role_perm_tenant" json:"role"`
	PermissionID uint      `gorm:"not null;uniqueIndex:idx_role_perm_tenant" json:"permission_id"`
	TenantID     uint      `gorm:"not null;uniqueIndex:idx_role_perm_tenant;index" json:"tenant_id"`
	CreatedAt    time.Time `json:"created_at"`

	// 关联
	Permission Permission `gorm:"foreignKey:PermissionID" json:"permission,omitempty"`
}

// TableName 表名
func (RolePermission) TableName() string {
	return "role_permissions"
}

// UserPermission 用户级权限覆盖
// 存在即生效：Granted=false 为显式拒绝，优先于角色默认授权
type UserPermission struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;uniqueIndex:idx_user_perm_tenant" json:"user_id"`
	PermissionID uint      `gorm:"not null;uniqueIndex:idx_user_perm_tenant" json:"permission_id"`
	TenantID     uint      `gorm:"not null;uniqueIndex:idx_user_perm_tenant;index" json:"tenant_id"`
	Granted      bool      `gorm:"not null" json:"granted"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// 关联
	Permission Permission `gorm:"foreignKey:PermissionID" json:"permission,omitempty"`
}

// TableName 表名
func (UserPermission) TableName() string {
	return "user_permissions"
}
