package services

import (
	"crmnet/internal/models"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newInviteTestService(t *testing.T) (*InviteService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewInviteService(db, NewPermissionService(db)), db
}

func setupInviter(t *testing.T, db *gorm.DB) (*models.Tenant, *models.User) {
	t.Helper()
	tenant := mustCreateTenant(t, db, "Acme", "acme", nil, models.TenantStatusActive)
	admin := mustCreateMember(t, db, tenant.ID, "admin@acme.com", models.RoleAdmin)
	perm := mustCreatePermission(t, db, models.ModuleTeamManagement, models.ActionManage)
	require.NoError(t, db.Create(&models.RolePermission{
		TenantID:     tenant.ID,
		Role:         models.RoleAdmin,
		PermissionID: perm.ID,
	}).Error)
	return tenant, admin
}

func TestInviteCreate(t *testing.T) {
	svc, db := newInviteTestService(t)
	tenant, admin := setupInviter(t, db)

	invite, err := svc.Create(admin.ID, tenant.ID, &CreateInviteRequest{
		Email: "new@example.com",
		Role:  models.RoleEmployee,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, invite.MaxUses) // 默认单次
	assert.NotEmpty(t, invite.Token)
	assert.False(t, invite.Used)
}

func TestInviteCreateRejectsSuperAdmin(t *testing.T) {
	svc, db := newInviteTestService(t)
	tenant, admin := setupInviter(t, db)

	_, err := svc.Create(admin.ID, tenant.ID, &CreateInviteRequest{
		Email: "new@example.com",
		Role:  models.RoleSuperAdmin,
	})
	assert.Error(t, err)
}

func TestInviteCreateRequiresPermission(t *testing.T) {
	svc, db := newInviteTestService(t)
	tenant, _ := setupInviter(t, db)
	sales := mustCreateMember(t, db, tenant.ID, "sales@acme.com", models.RoleSalesPerson)

	_, err := svc.Create(sales.ID, tenant.ID, &CreateInviteRequest{
		Email: "new@example.com",
		Role:  models.RoleEmployee,
	})
	assert.Error(t, err)
}

func TestInviteCreateRejectsDuplicatePending(t *testing.T) {
	svc, db := newInviteTestService(t)
	tenant, admin := setupInviter(t, db)

	_, err := svc.Create(admin.ID, tenant.ID, &CreateInviteRequest{
		Email: "new@example.com",
		Role:  models.RoleEmployee,
	})
	require.NoError(t, err)

	_, err = svc.Create(admin.ID, tenant.ID, &CreateInviteRequest{
		Email: "new@example.com",
		Role:  models.RoleEmployee,
	})
	assert.Error(t, err)
}

func TestInviteCreateRejectsExistingMember(t *testing.T) {
	svc, db := newInviteTestService(t)
	tenant, admin := setupInviter(t, db)
	mustCreateMember(t, db, tenant.ID, "member@acme.com", models.RoleEmployee)

	_, err := svc.Create(admin.ID, tenant.ID, &CreateInviteRequest{
		Email: "member@acme.com",
		Role:  models.RoleEmployee,
	})
	assert.Error(t, err)
}

func TestInviteCancel(t *testing.T) {
	svc, db := newInviteTestService(t)
	tenant, admin := setupInviter(t, db)

	invite, err := svc.Create(admin.ID, tenant.ID, &CreateInviteRequest{
		Email: "new@example.com",
		Role:  models.RoleEmployee,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(invite.ID, tenant.ID))

	var reloaded models.InviteToken
	require.NoError(t, db.First(&reloaded, invite.ID).Error)
	assert.True(t, reloaded.Used)

	// 跨租户不允许取消
	err = svc.Cancel(invite.ID, tenant.ID+1)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAcceptMembershipIdempotent(t *testing.T) {
	svc, db := newInviteTestService(t)
	tenant, admin := setupInviter(t, db)

	defaultTeam := &models.Team{TenantID: tenant.ID, Name: "默认团队", IsDefault: true}
	require.NoError(t, db.Create(defaultTeam).Error)

	invite, err := svc.Create(admin.ID, tenant.ID, &CreateInviteRequest{
		Email: "new@example.com",
		Role:  models.RoleEmployee,
	})
	require.NoError(t, err)

	user := &models.User{Email: "new@example.com", Name: "new", Status: models.UserStatusActive}
	require.NoError(t, db.Create(user).Error)

	require.NoError(t, svc.AcceptMembership(user.ID, invite))
	// 重复接受不报错也不重复建
	require.NoError(t, svc.AcceptMembership(user.ID, invite))

	var members []models.TenantMember
	require.NoError(t, db.Where("user_id = ? AND tenant_id = ?", user.ID, tenant.ID).Find(&members).Error)
	require.Len(t, members, 1)
	assert.Equal(t, models.RoleEmployee, members[0].Role)
	require.NotNil(t, members[0].TeamID)
	assert.Equal(t, defaultTeam.ID, *members[0].TeamID)
	require.NotNil(t, members[0].InvitedBy)
	assert.Equal(t, admin.ID, *members[0].InvitedBy)
}
