package services

import (
	"crmnet/internal/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTenantTestService(t *testing.T) (*TenantService, *captureEmitter) {
	t.Helper()
	emitter := &captureEmitter{}
	return NewTenantService(newTestDB(t), emitter), emitter
}

func TestProvisionCreatesTenantTeamAndAdmin(t *testing.T) {
	svc, emitter := newTenantTestService(t)

	tenant, err := svc.Provision(ProvisionParams{
		Name:       "Acme Corp",
		Slug:       "acme",
		Plan:       models.PlanProfessional,
		AdminEmail: "owner@acme.com",
		AdminName:  "Owner",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TenantStatusTrial, tenant.Status)
	assert.Equal(t, models.PlanProfessional, tenant.Plan)
	require.NotNil(t, tenant.TrialEndsAt)
	// 14天试用期
	assert.WithinDuration(t, time.Now().Add(14*24*time.Hour), *tenant.TrialEndsAt, time.Minute)

	// 默认团队
	var team models.Team
	require.NoError(t, svc.db.Where("tenant_id = ? AND is_default = ?", tenant.ID, true).First(&team).Error)

	// 管理员用户与成员关系
	var admin models.User
	require.NoError(t, svc.db.Where("email = ?", "owner@acme.com").First(&admin).Error)
	var member models.TenantMember
	require.NoError(t, svc.db.Where("user_id = ? AND tenant_id = ?", admin.ID, tenant.ID).First(&member).Error)
	assert.Equal(t, models.RoleAdmin, member.Role)
	require.NotNil(t, member.TeamID)
	assert.Equal(t, team.ID, *member.TeamID)

	assert.True(t, emitter.has("tenant.provisioned"))
}

func TestProvisionRejectsDuplicateSlug(t *testing.T) {
	svc, _ := newTenantTestService(t)

	_, err := svc.Provision(ProvisionParams{
		Name: "Acme", Slug: "acme", Plan: models.PlanStarter,
		AdminEmail: "a@acme.com", AdminName: "A",
	})
	require.NoError(t, err)

	_, err = svc.Provision(ProvisionParams{
		Name: "Acme Clone", Slug: "acme", Plan: models.PlanStarter,
		AdminEmail: "b@acme.com", AdminName: "B",
	})
	assert.Error(t, err)

	// 失败的开通不得留下任何残留数据
	var count int64
	svc.db.Model(&models.User{}).Where("email = ?", "b@acme.com").Count(&count)
	assert.Zero(t, count)
}

func TestProvisionReusesExistingAdminUser(t *testing.T) {
	svc, _ := newTenantTestService(t)

	_, err := svc.Provision(ProvisionParams{
		Name: "Acme", Slug: "acme", Plan: models.PlanStarter,
		AdminEmail: "owner@example.com", AdminName: "Owner",
	})
	require.NoError(t, err)

	// 同一邮箱开第二个租户时复用用户，不重复建账号
	_, err = svc.Provision(ProvisionParams{
		Name: "Globex", Slug: "globex", Plan: models.PlanStarter,
		AdminEmail: "owner@example.com", AdminName: "Owner",
	})
	require.NoError(t, err)

	var count int64
	svc.db.Model(&models.User{}).Where("email = ?", "owner@example.com").Count(&count)
	assert.Equal(t, int64(1), count)
	svc.db.Model(&models.TenantMember{}).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestTenantStatusTransitions(t *testing.T) {
	svc, emitter := newTenantTestService(t)

	tenant, err := svc.Provision(ProvisionParams{
		Name: "Acme", Slug: "acme", Plan: models.PlanStarter,
		AdminEmail: "a@acme.com", AdminName: "A",
	})
	require.NoError(t, err)

	updated, err := svc.Activate(tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TenantStatusActive, updated.Status)

	updated, err = svc.Suspend(tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TenantStatusSuspended, updated.Status)

	updated, err = svc.MarkExpired(tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TenantStatusExpired, updated.Status)

	assert.True(t, emitter.has("tenant.status_changed"))
}

func TestTenantDeleteCascades(t *testing.T) {
	svc, _ := newTenantTestService(t)

	tenant, err := svc.Provision(ProvisionParams{
		Name: "Acme", Slug: "acme", Plan: models.PlanStarter,
		AdminEmail: "a@acme.com", AdminName: "A",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(tenant.ID))

	var count int64
	svc.db.Model(&models.TenantMember{}).Where("tenant_id = ?", tenant.ID).Count(&count)
	assert.Zero(t, count)
	svc.db.Model(&models.Team{}).Where("tenant_id = ?", tenant.ID).Count(&count)
	assert.Zero(t, count)
	svc.db.Model(&models.Tenant{}).Where("id = ?", tenant.ID).Count(&count)
	assert.Zero(t, count)
}

func TestValidateSlug(t *testing.T) {
	svc, _ := newTenantTestService(t)

	assert.True(t, svc.ValidateSlug("acme"))
	assert.True(t, svc.ValidateSlug("acme-corp-2"))
	assert.False(t, svc.ValidateSlug("a"))          // 太短
	assert.False(t, svc.ValidateSlug("Acme"))       // 大写
	assert.False(t, svc.ValidateSlug("acme corp"))  // 空格
	assert.False(t, svc.ValidateSlug("acme_corp"))  // 下划线
	assert.False(t, svc.ValidateSlug(""))
}

func TestGetTenantStats(t *testing.T) {
	svc, _ := newTenantTestService(t)
	db := svc.db

	mustCreateTenant(t, db, "A", "a-corp", nil, models.TenantStatusActive)
	mustCreateTenant(t, db, "B", "b-corp", nil, models.TenantStatusActive)
	mustCreateTenant(t, db, "C", "c-corp", nil, models.TenantStatusSuspended)
	mustCreateTenant(t, db, "D", "d-corp", nil, models.TenantStatusTrial)

	stats, err := svc.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(2), stats.Active)
	assert.Equal(t, int64(1), stats.Suspended)
	assert.Equal(t, int64(1), stats.Trial)
	assert.Equal(t, int64(0), stats.Expired)
}
