package services

import (
	"crmnet/internal/models"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func grantRolePermission(t *testing.T, db *gorm.DB, tenantID uint, role string, permID uint) {
	t.Helper()
	require.NoError(t, db.Create(&models.RolePermission{
		TenantID:     tenantID,
		Role:         role,
		PermissionID: permID,
	}).Error)
}

// 超级管理员结构性放行：即使权限字典里没有这个组合也放行
func TestHasPermissionSuperAdminBypass(t *testing.T) {
	db := newTestDB(t)
	svc := NewPermissionService(db)
	tenant := mustCreateTenant(t, db, "Acme", "acme", nil, models.TenantStatusActive)
	admin := mustCreateMember(t, db, tenant.ID, "root@crmnet.local", models.RoleSuperAdmin)

	allowed, err := svc.HasPermission(admin.ID, tenant.ID, models.RoleSuperAdmin, "nonexistent_module", "nonexistent_action")
	require.NoError(t, err)
	assert.True(t, allowed)
}

// 未注册的模块/操作组合一律拒绝
func TestHasPermissionFailClosed(t *testing.T) {
	db := newTestDB(t)
	svc := NewPermissionService(db)
	tenant := mustCreateTenant(t, db, "Acme", "acme", nil, models.TenantStatusActive)
	user := mustCreateMember(t, db, tenant.ID, "admin@acme.com", models.RoleAdmin)

	allowed, err := svc.HasPermission(user.ID, tenant.ID, models.RoleAdmin, "nonexistent_module", "view")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestHasPermissionRoleDefault(t *testing.T) {
	db := newTestDB(t)
	svc := NewPermissionService(db)
	tenant := mustCreateTenant(t, db, "Acme", "acme", nil, models.TenantStatusActive)
	employee := mustCreateMember(t, db, tenant.ID, "emp@acme.com", models.RoleEmployee)
	perm := mustCreatePermission(t, db, models.ModuleCustomers, models.ActionView)
	grantRolePermission(t, db, tenant.ID, models.RoleEmployee, perm.ID)

	allowed, err := svc.HasPermission(employee.ID, tenant.ID, models.RoleEmployee, models.ModuleCustomers, models.ActionView)
	require.NoError(t, err)
	assert.True(t, allowed)

	// 未授权的角色拿不到
	allowed, err = svc.HasPermission(employee.ID, tenant.ID, models.RoleCustomer, models.ModuleCustomers, models.ActionView)
	require.NoError(t, err)
	assert.False(t, allowed)
}

// 用户级显式拒绝压过角色默认授权
func TestUserDenyOverridesRoleGrant(t *testing.T) {
	db := newTestDB(t)
	svc := NewPermissionService(db)
	tenant := mustCreateTenant(t, db, "Acme", "acme", nil, models.TenantStatusActive)
	employee := mustCreateMember(t, db, tenant.ID, "emp@acme.com", models.RoleEmployee)
	perm := mustCreatePermission(t, db, models.ModuleCustomers, models.ActionDelete)
	grantRolePermission(t, db, tenant.ID, models.RoleEmployee, perm.ID)

	require.NoError(t, svc.SetUserPermission(employee.ID, tenant.ID, perm.ID, false))

	allowed, err := svc.HasPermission(employee.ID, tenant.ID, models.RoleEmployee, models.ModuleCustomers, models.ActionDelete)
	require.NoError(t, err)
	assert.False(t, allowed)

	// 移除覆盖后回到角色默认
	require.NoError(t, svc.RemoveUserPermission(employee.ID, tenant.ID, perm.ID))
	allowed, err = svc.HasPermission(employee.ID, tenant.ID, models.RoleEmployee, models.ModuleCustomers, models.ActionDelete)
	require.NoError(t, err)
	assert.True(t, allowed)
}

// 用户级显式授权可以补足角色默认没有的权限
func TestUserGrantOverridesRoleAbsence(t *testing.T) {
	db := newTestDB(t)
	svc := NewPermissionService(db)
	tenant := mustCreateTenant(t, db, "Acme", "acme", nil, models.TenantStatusActive)
	sales := mustCreateMember(t, db, tenant.ID, "sales@acme.com", models.RoleSalesPerson)
	perm := mustCreatePermission(t, db, models.ModuleAnalytics, models.ActionExport)

	require.NoError(t, svc.SetUserPermission(sales.ID, tenant.ID, perm.ID, true))

	allowed, err := svc.HasPermission(sales.ID, tenant.ID, models.RoleSalesPerson, models.ModuleAnalytics, models.ActionExport)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCanImpersonate(t *testing.T) {
	db := newTestDB(t)
	svc := NewPermissionService(db)
	tenant := mustCreateTenant(t, db, "Acme", "acme", nil, models.TenantStatusActive)

	admin := mustCreateMember(t, db, tenant.ID, "admin@acme.com", models.RoleAdmin)
	employee := mustCreateMember(t, db, tenant.ID, "emp@acme.com", models.RoleEmployee)
	otherAdmin := mustCreateMember(t, db, tenant.ID, "admin2@acme.com", models.RoleAdmin)
	customer := mustCreateMember(t, db, tenant.ID, "cust@acme.com", models.RoleCustomer)

	perm := mustCreatePermission(t, db, models.ModuleTeamManagement, models.ActionImpersonate)
	grantRolePermission(t, db, tenant.ID, models.RoleAdmin, perm.ID)
	grantRolePermission(t, db, tenant.ID, models.RoleCustomer, perm.ID)

	// 管理员可以代登录下级角色
	ok, err := svc.CanImpersonate(admin.ID, employee.ID, tenant.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// 同级管理员之间不行
	ok, err = svc.CanImpersonate(admin.ID, otherAdmin.ID, tenant.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// 持有权限但角色不在层级表里（CUSTOMER）一律拒绝
	ok, err = svc.CanImpersonate(customer.ID, employee.ID, tenant.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// 没有impersonate权限的角色即使层级允许也不行
	ok, err = svc.CanImpersonate(employee.ID, customer.ID, tenant.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

// 目标不是本租户成员时安静拒绝，不报错
func TestCanImpersonateNonMember(t *testing.T) {
	db := newTestDB(t)
	svc := NewPermissionService(db)
	tenant := mustCreateTenant(t, db, "Acme", "acme", nil, models.TenantStatusActive)
	other := mustCreateTenant(t, db, "Globex", "globex", nil, models.TenantStatusActive)

	admin := mustCreateMember(t, db, tenant.ID, "admin@acme.com", models.RoleAdmin)
	outsider := mustCreateMember(t, db, other.ID, "out@globex.com", models.RoleEmployee)

	perm := mustCreatePermission(t, db, models.ModuleTeamManagement, models.ActionImpersonate)
	grantRolePermission(t, db, tenant.ID, models.RoleAdmin, perm.ID)

	ok, err := svc.CanImpersonate(admin.ID, outsider.ID, tenant.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

// 批量授权是整体替换，不是增量合并
func TestAssignRolePermissionsReplaces(t *testing.T) {
	db := newTestDB(t)
	svc := NewPermissionService(db)
	tenant := mustCreateTenant(t, db, "Acme", "acme", nil, models.TenantStatusActive)

	p1 := mustCreatePermission(t, db, models.ModuleCustomers, models.ActionView)
	p2 := mustCreatePermission(t, db, models.ModuleCustomers, models.ActionCreate)
	p3 := mustCreatePermission(t, db, models.ModuleCustomers, models.ActionEdit)

	require.NoError(t, svc.AssignRolePermissions(tenant.ID, models.RoleEmployee, []uint{p1.ID, p2.ID}))
	require.NoError(t, svc.AssignRolePermissions(tenant.ID, models.RoleEmployee, []uint{p2.ID, p3.ID}))

	permissions, err := svc.GetRolePermissions(tenant.ID, models.RoleEmployee)
	require.NoError(t, err)
	require.Len(t, permissions, 2)

	ids := []uint{permissions[0].ID, permissions[1].ID}
	assert.ElementsMatch(t, []uint{p2.ID, p3.ID}, ids)
}

func TestAssignRolePermissionsValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewPermissionService(db)
	tenant := mustCreateTenant(t, db, "Acme", "acme", nil, models.TenantStatusActive)

	// 无效角色
	err := svc.AssignRolePermissions(tenant.ID, "NOT_A_ROLE", []uint{})
	assert.Error(t, err)

	// 不存在的权限ID
	err = svc.AssignRolePermissions(tenant.ID, models.RoleEmployee, []uint{9999})
	assert.Error(t, err)

	// 空列表 = 清空该角色全部权限
	p1 := mustCreatePermission(t, db, models.ModuleCustomers, models.ActionView)
	require.NoError(t, svc.AssignRolePermissions(tenant.ID, models.RoleEmployee, []uint{p1.ID}))
	require.NoError(t, svc.AssignRolePermissions(tenant.ID, models.RoleEmployee, []uint{}))

	permissions, err := svc.GetRolePermissions(tenant.ID, models.RoleEmployee)
	require.NoError(t, err)
	assert.Empty(t, permissions)
}

// 同一角色在不同租户的授权互不影响
func TestRolePermissionsAreTenantScoped(t *testing.T) {
	db := newTestDB(t)
	svc := NewPermissionService(db)
	acme := mustCreateTenant(t, db, "Acme", "acme", nil, models.TenantStatusActive)
	globex := mustCreateTenant(t, db, "Globex", "globex", nil, models.TenantStatusActive)

	emp := mustCreateMember(t, db, acme.ID, "emp@acme.com", models.RoleEmployee)
	perm := mustCreatePermission(t, db, models.ModuleCustomers, models.ActionView)
	grantRolePermission(t, db, acme.ID, models.RoleEmployee, perm.ID)

	allowed, err := svc.HasPermission(emp.ID, acme.ID, models.RoleEmployee, models.ModuleCustomers, models.ActionView)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = svc.HasPermission(emp.ID, globex.ID, models.RoleEmployee, models.ModuleCustomers, models.ActionView)
	require.NoError(t, err)
	assert.False(t, allowed)
}
