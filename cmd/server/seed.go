package main

import (
	"crmnet/internal/database"
	"crmnet/internal/models"
	"crmnet/pkg/logger"
	"fmt"

	"gorm.io/gorm"
)

// seedData 初始化种子数据
func seedData() error {
	appLogger := logger.GetLogger()
	appLogger.Info("Starting seed data initialization...")

	db := database.GetDB()

	// 1. 创建默认租户
	if err := createDefaultTenant(db); err != nil {
		return fmt.Errorf("创建默认租户失败: %v", err)
	}

	// 2. 初始化权限
	if err := initializePermissions(db); err != nil {
		return fmt.Errorf("初始化权限失败: %v", err)
	}

	// 3. 初始化各角色的默认权限
	if err := initializeRolePermissions(db); err != nil {
		return fmt.Errorf("初始化角色权限失败: %v", err)
	}

	// 4. 创建平台管理员用户
	if err := createPlatformAdmin(db); err != nil {
		return fmt.Errorf("创建平台管理员失败: %v", err)
	}

	appLogger.Info("Seed data initialization completed successfully")
	return nil
}

// createDefaultTenant 创建默认租户
func createDefaultTenant(db *gorm.DB) error {
	var count int64
	db.Model(&models.Tenant{}).Where("slug = ?", "default").Count(&count)
	if count > 0 {
		logger.GetLogger().Info("默认租户已存在，跳过创建")
		return nil
	}

	tenant := &models.Tenant{
		Name:   "默认租户",
		Slug:   "default",
		Status: models.TenantStatusActive,
		Plan:   models.PlanEnterprise,
	}
	if err := db.Create(tenant).Error; err != nil {
		return err
	}

	team := &models.Team{
		TenantID:  tenant.ID,
		Name:      "默认团队",
		IsDefault: true,
	}
	if err := db.Create(team).Error; err != nil {
		return err
	}

	logger.GetLogger().Info("默认租户创建成功")
	return nil
}

// initializePermissions 初始化权限
func initializePermissions(db *gorm.DB) error {
	// 定义默认权限
	defaultPermissions := []models.Permission{
		// 客户管理权限
		{Code: "customers:view", Name: "查看客户", Module: models.ModuleCustomers, Action: models.ActionView, Description: "查看客户列表和详情"},
		{Code: "customers:create", Name: "创建客户", Module: models.ModuleCustomers, Action: models.ActionCreate, Description: "创建新客户"},
		{Code: "customers:edit", Name: "编辑客户", Module: models.ModuleCustomers, Action: models.ActionEdit, Description: "编辑客户信息"},
		{Code: "customers:delete", Name: "删除客户", Module: models.ModuleCustomers, Action: models.ActionDelete, Description: "删除客户"},
		{Code: "customers:assign", Name: "分配客户", Module: models.ModuleCustomers, Action: models.ActionAssign, Description: "把客户分配给销售"},
		{Code: "customers:export", Name: "导出客户", Module: models.ModuleCustomers, Action: models.ActionExport, Description: "导出客户数据"},

		// 销售活动权限
		{Code: "sales:view", Name: "查看销售活动", Module: models.ModuleSales, Action: models.ActionView, Description: "查看销售活动"},
		{Code: "sales:create", Name: "创建销售活动", Module: models.ModuleSales, Action: models.ActionCreate, Description: "创建销售活动"},
		{Code: "sales:edit", Name: "编辑销售活动", Module: models.ModuleSales, Action: models.ActionEdit, Description: "编辑销售活动"},
		{Code: "sales:delete", Name: "删除销售活动", Module: models.ModuleSales, Action: models.ActionDelete, Description: "删除销售活动"},
		{Code: "sales:export", Name: "导出销售数据", Module: models.ModuleSales, Action: models.ActionExport, Description: "导出销售数据"},

		// 推荐网络权限
		{Code: "referrals:view", Name: "查看推荐网络", Module: models.ModuleReferrals, Action: models.ActionView, Description: "查看推荐关系网络"},
		{Code: "referrals:create", Name: "创建推荐", Module: models.ModuleReferrals, Action: models.ActionCreate, Description: "登记新的推荐关系"},
		{Code: "referrals:edit", Name: "编辑推荐", Module: models.ModuleReferrals, Action: models.ActionEdit, Description: "编辑推荐关系"},
		{Code: "referrals:delete", Name: "删除推荐", Module: models.ModuleReferrals, Action: models.ActionDelete, Description: "删除推荐关系"},

		// 数据分析权限
		{Code: "analytics:view", Name: "查看分析报表", Module: models.ModuleAnalytics, Action: models.ActionView, Description: "查看数据分析报表"},
		{Code: "analytics:export", Name: "导出分析报表", Module: models.ModuleAnalytics, Action: models.ActionExport, Description: "导出分析报表"},

		// 团队管理权限
		{Code: "team_management:view", Name: "查看团队", Module: models.ModuleTeamManagement, Action: models.ActionView, Description: "查看团队成员和邀请"},
		{Code: "team_management:manage", Name: "管理团队", Module: models.ModuleTeamManagement, Action: models.ActionManage, Description: "邀请、移除成员及调整角色"},
		{Code: "team_management:impersonate", Name: "代登录", Module: models.ModuleTeamManagement, Action: models.ActionImpersonate, Description: "以其他成员身份登录"},

		// 账单权限
		{Code: "billing:view", Name: "查看账单", Module: models.ModuleBilling, Action: models.ActionView, Description: "查看账单和套餐"},
		{Code: "billing:manage", Name: "管理账单", Module: models.ModuleBilling, Action: models.ActionManage, Description: "变更套餐和支付方式"},

		// 设置权限
		{Code: "settings:view", Name: "查看设置", Module: models.ModuleSettings, Action: models.ActionView, Description: "查看租户设置"},
		{Code: "settings:manage", Name: "管理设置", Module: models.ModuleSettings, Action: models.ActionManage, Description: "修改租户设置和权限配置"},

		// 工作台权限
		{Code: "dashboard:view", Name: "查看工作台", Module: models.ModuleDashboard, Action: models.ActionView, Description: "查看工作台概览"},
	}

	for _, perm := range defaultPermissions {
		var count int64
		db.Model(&models.Permission{}).Where("code = ?", perm.Code).Count(&count)
		if count == 0 {
			if err := db.Create(&perm).Error; err != nil {
				return err
			}
		}
	}

	logger.GetLogger().Infof("权限初始化完成，共 %d 项", len(defaultPermissions))
	return nil
}

// defaultRoleGrants 各角色在新租户下的默认权限代码
// 超级管理员不在表内，权限检查时结构性放行
var defaultRoleGrants = map[string][]string{
	models.RoleAdmin: {
		"customers:view", "customers:create", "customers:edit", "customers:delete", "customers:assign", "customers:export",
		"sales:view", "sales:create", "sales:edit", "sales:delete", "sales:export",
		"referrals:view", "referrals:create", "referrals:edit", "referrals:delete",
		"analytics:view", "analytics:export",
		"team_management:view", "team_management:manage", "team_management:impersonate",
		"billing:view", "billing:manage",
		"settings:view", "settings:manage",
		"dashboard:view",
	},
	models.RoleEmployee: {
		"customers:view", "customers:create", "customers:edit",
		"sales:view", "sales:create", "sales:edit",
		"referrals:view", "referrals:create",
		"analytics:view",
		"team_management:view", "team_management:impersonate",
		"dashboard:view",
	},
	models.RoleSalesPerson: {
		"customers:view", "customers:create", "customers:edit",
		"sales:view", "sales:create", "sales:edit",
		"referrals:view", "referrals:create",
		"dashboard:view",
	},
	models.RoleCustomer: {
		"referrals:view",
		"dashboard:view",
	},
}

// initializeRolePermissions 给默认租户的各角色授默认权限
func initializeRolePermissions(db *gorm.DB) error {
	var tenant models.Tenant
	if err := db.Where("slug = ?", "default").First(&tenant).Error; err != nil {
		return err
	}

	for role, codes := range defaultRoleGrants {
		var count int64
		db.Model(&models.RolePermission{}).Where("tenant_id = ? AND role = ?", tenant.ID, role).Count(&count)
		if count > 0 {
			continue
		}

		var permissions []models.Permission
		if err := db.Where("code IN ?", codes).Find(&permissions).Error; err != nil {
			return err
		}
		for _, perm := range permissions {
			grant := models.RolePermission{
				TenantID:     tenant.ID,
				Role:         role,
				PermissionID: perm.ID,
			}
			if err := db.Create(&grant).Error; err != nil {
				return err
			}
		}
	}

	logger.GetLogger().Info("角色默认权限初始化完成")
	return nil
}

// createPlatformAdmin 创建平台管理员用户
func createPlatformAdmin(db *gorm.DB) error {
	var count int64
	db.Model(&models.User{}).Where("email = ?", "admin@crmnet.local").Count(&count)
	if count > 0 {
		logger.GetLogger().Info("平台管理员已存在，跳过创建")
		return nil
	}

	admin := &models.User{
		Email:  "admin@crmnet.local",
		Name:   "平台管理员",
		Status: models.UserStatusActive,
	}
	if err := admin.SetPassword("Admin@123"); err != nil {
		return err
	}
	if err := db.Create(admin).Error; err != nil {
		return err
	}

	var tenant models.Tenant
	if err := db.Where("slug = ?", "default").First(&tenant).Error; err != nil {
		return err
	}

	member := &models.TenantMember{
		UserID:   admin.ID,
		TenantID: tenant.ID,
		Role:     models.RoleSuperAdmin,
	}
	if err := db.Create(member).Error; err != nil {
		return err
	}

	logger.GetLogger().Info("平台管理员创建成功（admin@crmnet.local），请尽快修改初始密码")
	return nil
}
