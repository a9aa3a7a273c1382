package services

import (
	"crmnet/internal/models"
	"crmnet/pkg/audit"
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
)

const trialDuration = 14 * 24 * time.Hour

var tenantSlugPattern = regexp.MustCompile(`^[a-z0-9-]{2,50}$`)

// planCaps 各套餐的资源上限
var planCaps = map[string]struct {
	MaxUsers    int
	MaxAPICalls int
}{
	models.PlanStarter:      {MaxUsers: 5, MaxAPICalls: 10000},
	models.PlanProfessional: {MaxUsers: 50, MaxAPICalls: 100000},
	models.PlanEnterprise:   {MaxUsers: 500, MaxAPICalls: 1000000},
}

type TenantService struct {
	db    *gorm.DB
	audit audit.Emitter
}

// TenantStats 租户统计信息
type TenantStats struct {
	Total     int64 `json:"total"`
	Trial     int64 `json:"trial"`
	Active    int64 `json:"active"`
	Suspended int64 `json:"suspended"`
	Expired   int64 `json:"expired"`
}

// ProvisionParams 租户开通参数
type ProvisionParams struct {
	Name          string
	Slug          string
	Domain        *string
	Plan          string
	AdminEmail    string
	AdminName     string
	AdminPassword string // 可为空，纯魔法链接登录
}

func NewTenantService(db *gorm.DB, emitter audit.Emitter) *TenantService {
	return &TenantService{db: db, audit: emitter}
}

// ========== 开通与销毁 ==========

// Provision 开通租户
// 租户、默认团队、管理员身份在同一事务内创建，任何一步失败整体回滚
func (s *TenantService) Provision(params ProvisionParams) (*models.Tenant, error) {
	if err := s.validateProvisionParams(&params); err != nil {
		return nil, err
	}

	// slug/域名全局唯一
	var count int64
	s.db.Model(&models.Tenant{}).Where("slug = ?", params.Slug).Count(&count)
	if count > 0 {
		return nil, fmt.Errorf("租户标识已存在")
	}
	if params.Domain != nil && *params.Domain != "" {
		s.db.Model(&models.Tenant{}).Where("domain = ?", *params.Domain).Count(&count)
		if count > 0 {
			return nil, fmt.Errorf("自定义域名已被占用")
		}
	}

	caps := planCaps[params.Plan]
	trialEnd := time.Now().Add(trialDuration)

	tenant := &models.Tenant{
		Name:        params.Name,
		Slug:        params.Slug,
		Domain:      params.Domain,
		Status:      models.TenantStatusTrial,
		Plan:        params.Plan,
		MaxUsers:    caps.MaxUsers,
		MaxAPICalls: caps.MaxAPICalls,
		TrialEndsAt: &trialEnd,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(tenant).Error; err != nil {
			return fmt.Errorf("创建租户失败: %v", err)
		}

		team := &models.Team{
			TenantID:  tenant.ID,
			Name:      "默认团队",
			IsDefault: true,
		}
		if err := tx.Create(team).Error; err != nil {
			return fmt.Errorf("创建默认团队失败: %v", err)
		}

		// 管理员邮箱已注册则复用该用户
		var admin models.User
		err := tx.Where("email = ?", params.AdminEmail).First(&admin).Error
		if err != nil {
			if err != gorm.ErrRecordNotFound {
				return fmt.Errorf("查询管理员失败: %v", err)
			}
			admin = models.User{
				Email:  params.AdminEmail,
				Name:   params.AdminName,
				Status: models.UserStatusActive,
			}
			if params.AdminPassword != "" {
				if err := admin.SetPassword(params.AdminPassword); err != nil {
					return fmt.Errorf("设置管理员密码失败: %v", err)
				}
			}
			if err := tx.Create(&admin).Error; err != nil {
				return fmt.Errorf("创建管理员失败: %v", err)
			}
		}

		member := &models.TenantMember{
			UserID:   admin.ID,
			TenantID: tenant.ID,
			TeamID:   &team.ID,
			Role:     models.RoleAdmin,
			JoinedAt: time.Now(),
		}
		if err := tx.Create(member).Error; err != nil {
			return fmt.Errorf("创建管理员成员关系失败: %v", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Emit(audit.Event{
		Name:     "tenant.provisioned",
		Email:    params.AdminEmail,
		TenantID: tenant.ID,
		Metadata: map[string]interface{}{"slug": tenant.Slug, "plan": tenant.Plan},
	})

	return tenant, nil
}

// Delete 销毁租户，级联删除全部租户作用域数据
func (s *TenantService) Delete(id uint) error {
	var tenant models.Tenant
	if err := s.db.First(&tenant, id).Error; err != nil {
		return err
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ?", id).Delete(&models.TenantMember{}).Error; err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ?", id).Delete(&models.Team{}).Error; err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ?", id).Delete(&models.InviteToken{}).Error; err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ?", id).Delete(&models.RolePermission{}).Error; err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ?", id).Delete(&models.UserPermission{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Tenant{}, id).Error
	})
	if err != nil {
		return err
	}

	s.audit.Emit(audit.Event{
		Name:     "tenant.deleted",
		TenantID: id,
		Metadata: map[string]interface{}{"slug": tenant.Slug},
	})
	return nil
}

// ========== 查询方法 ==========

// GetByID 根据ID获取租户
func (s *TenantService) GetByID(id uint) (*models.Tenant, error) {
	var tenant models.Tenant
	err := s.db.First(&tenant, id).Error
	return &tenant, err
}

// GetBySlug 根据slug获取租户
func (s *TenantService) GetBySlug(slug string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := s.db.Where("slug = ?", slug).First(&tenant).Error
	return &tenant, err
}

// GetWithFiltersAndPage 组合查询（分页版本）
func (s *TenantService) GetWithFiltersAndPage(status, keyword string, page, pageSize int) ([]*models.Tenant, int64, error) {
	var tenants []*models.Tenant
	var total int64

	query := s.db.Model(&models.Tenant{})

	// 添加过滤条件
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if keyword != "" {
		searchPattern := fmt.Sprintf("%%%s%%", keyword)
		query = query.Where("name LIKE ? OR slug LIKE ?", searchPattern, searchPattern)
	}

	// 计算总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 分页查询
	offset := (page - 1) * pageSize
	err := query.Offset(offset).Limit(pageSize).Find(&tenants).Error
	if err != nil {
		return nil, 0, err
	}

	// 统计每个租户的成员数量
	for i := range tenants {
		var memberCount int64
		s.db.Model(&models.TenantMember{}).Where("tenant_id = ?", tenants[i].ID).Count(&memberCount)
		tenants[i].UserCount = int(memberCount)
	}

	return tenants, total, nil
}

// GetStats 获取租户统计
func (s *TenantService) GetStats() (*TenantStats, error) {
	stats := &TenantStats{}

	s.db.Model(&models.Tenant{}).Count(&stats.Total)
	s.db.Model(&models.Tenant{}).Where("status = ?", models.TenantStatusTrial).Count(&stats.Trial)
	s.db.Model(&models.Tenant{}).Where("status = ?", models.TenantStatusActive).Count(&stats.Active)
	s.db.Model(&models.Tenant{}).Where("status = ?", models.TenantStatusSuspended).Count(&stats.Suspended)
	s.db.Model(&models.Tenant{}).Where("status = ?", models.TenantStatusExpired).Count(&stats.Expired)

	return stats, nil
}

// ========== 生命周期操作 ==========

// Activate 激活租户（试用转正式或解除暂停）
func (s *TenantService) Activate(id uint) (*models.Tenant, error) {
	return s.setStatus(id, models.TenantStatusActive)
}

// Suspend 暂停租户
func (s *TenantService) Suspend(id uint) (*models.Tenant, error) {
	return s.setStatus(id, models.TenantStatusSuspended)
}

// MarkExpired 标记租户过期
func (s *TenantService) MarkExpired(id uint) (*models.Tenant, error) {
	return s.setStatus(id, models.TenantStatusExpired)
}

func (s *TenantService) setStatus(id uint, status string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := s.db.First(&tenant, id).Error
	if err != nil {
		return nil, err
	}

	previous := tenant.Status
	tenant.Status = status
	if err := s.db.Save(&tenant).Error; err != nil {
		return nil, err
	}

	s.audit.Emit(audit.Event{
		Name:     "tenant.status_changed",
		TenantID: tenant.ID,
		Metadata: map[string]interface{}{"from": previous, "to": status},
	})
	return &tenant, nil
}

// ========== 验证相关方法 ==========

// ValidateName 验证租户名称
func (s *TenantService) ValidateName(name string) bool {
	runeCount := utf8.RuneCountInString(name)
	return runeCount >= 2 && runeCount <= 50
}

// ValidateSlug 验证租户标识
func (s *TenantService) ValidateSlug(slug string) bool {
	return tenantSlugPattern.MatchString(slug)
}

func (s *TenantService) validateProvisionParams(params *ProvisionParams) error {
	if !s.ValidateName(params.Name) {
		return fmt.Errorf("租户名称长度必须在2-50个字符之间")
	}
	if !s.ValidateSlug(params.Slug) {
		return fmt.Errorf("租户标识必须为2-50位小写字母、数字或连字符")
	}
	if params.AdminEmail == "" {
		return fmt.Errorf("管理员邮箱不能为空")
	}
	if params.Plan == "" {
		params.Plan = models.PlanStarter
	}
	if _, ok := planCaps[params.Plan]; !ok {
		return fmt.Errorf("无效的套餐: %s", params.Plan)
	}
	return nil
}
