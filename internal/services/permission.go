package services

import (
	"crmnet/internal/models"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// impersonationTargets 代登录角色层级 - 封闭查找表
// 角色之间不是严格线性排序（EMPLOYEE高于CUSTOMER但不能代登录ADMIN），
// 所以用显式表而不是数值等级比较
var impersonationTargets = map[string]map[string]bool{
	models.RoleSuperAdmin: {
		models.RoleSuperAdmin:  true,
		models.RoleAdmin:       true,
		models.RoleEmployee:    true,
		models.RoleSalesPerson: true,
		models.RoleCustomer:    true,
	},
	models.RoleAdmin: {
		models.RoleEmployee:    true,
		models.RoleSalesPerson: true,
		models.RoleCustomer:    true,
	},
	models.RoleEmployee: {
		models.RoleSalesPerson: true,
		models.RoleCustomer:    true,
	},
}

type PermissionService struct {
	db *gorm.DB
}

func NewPermissionService(db *gorm.DB) *PermissionService {
	return &PermissionService{db: db}
}

// ========== 权限判定 ==========

// HasPermission 判定角色能否在模块上执行操作
// 优先级：SUPER_ADMIN结构性放行 > 用户级显式拒绝 > 用户级显式授权 > 角色默认授权
// 这个顺序是安全契约，调换拒绝/授权的优先级会悄悄放大权限
func (s *PermissionService) HasPermission(userID, tenantID uint, role, module, action string) (bool, error) {
	// SUPER_ADMIN是结构性放行，不查库，库里即使有数据也不信任
	if role == models.RoleSuperAdmin {
		return true, nil
	}

	// 未注册的模块/操作组合一律拒绝（fail closed）
	var permission models.Permission
	err := s.db.Where("module = ? AND action = ?", module, action).First(&permission).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	// 用户级覆盖存在即生效：显式拒绝绝对优先，显式授权绕过角色检查
	var override models.UserPermission
	err = s.db.Where("user_id = ? AND permission_id = ? AND tenant_id = ?",
		userID, permission.ID, tenantID).First(&override).Error
	if err == nil {
		return override.Granted, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	// 角色默认授权
	var count int64
	err = s.db.Model(&models.RolePermission{}).
		Where("role = ? AND permission_id = ? AND tenant_id = ?", role, permission.ID, tenantID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CanImpersonate 判定能否代登录目标用户
// 先要求操作者持有 team_management:impersonate 权限，再过角色层级表
func (s *PermissionService) CanImpersonate(actorID, targetID, tenantID uint) (bool, error) {
	actorRole, err := s.memberRole(actorID, tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	targetRole, err := s.memberRole(targetID, tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	allowed, err := s.HasPermission(actorID, tenantID, actorRole,
		models.ModuleTeamManagement, models.ActionImpersonate)
	if err != nil || !allowed {
		return false, err
	}

	targets, ok := impersonationTargets[actorRole]
	if !ok {
		return false, nil
	}
	return targets[targetRole], nil
}

func (s *PermissionService) memberRole(userID, tenantID uint) (string, error) {
	var member models.TenantMember
	err := s.db.Where("user_id = ? AND tenant_id = ?", userID, tenantID).First(&member).Error
	if err != nil {
		return "", err
	}
	return member.Role, nil
}

// ========== 角色权限管理 ==========

// AssignRolePermissions 替换角色在租户内的整套权限
// 低频管理操作，先删后插比做差集简单
func (s *PermissionService) AssignRolePermissions(tenantID uint, role string, permissionIDs []uint) error {
	if !models.IsValidRole(role) {
		return fmt.Errorf("无效的角色: %s", role)
	}

	// 确认权限ID都存在
	var count int64
	if len(permissionIDs) > 0 {
		if err := s.db.Model(&models.Permission{}).
			Where("id IN ?", permissionIDs).Count(&count).Error; err != nil {
			return err
		}
		if count != int64(len(permissionIDs)) {
			return fmt.Errorf("存在无效的权限ID")
		}
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role = ? AND tenant_id = ?", role, tenantID).
			Delete(&models.RolePermission{}).Error; err != nil {
			return err
		}
		for _, pid := range permissionIDs {
			rp := &models.RolePermission{
				Role:         role,
				PermissionID: pid,
				TenantID:     tenantID,
			}
			if err := tx.Create(rp).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetRolePermissions 查询角色在租户内的权限列表
func (s *PermissionService) GetRolePermissions(tenantID uint, role string) ([]models.Permission, error) {
	var permissions []models.Permission
	err := s.db.
		Joins("JOIN role_permissions ON permissions.id = role_permissions.permission_id").
		Where("role_permissions.role = ? AND role_permissions.tenant_id = ?", role, tenantID).
		Find(&permissions).Error
	return permissions, err
}

// ========== 用户权限覆盖 ==========

// SetUserPermission 设置用户级权限覆盖（授权或拒绝）
func (s *PermissionService) SetUserPermission(userID, tenantID, permissionID uint, granted bool) error {
	var permission models.Permission
	if err := s.db.First(&permission, permissionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("权限不存在")
		}
		return err
	}

	var override models.UserPermission
	err := s.db.Where("user_id = ? AND permission_id = ? AND tenant_id = ?",
		userID, permissionID, tenantID).First(&override).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			override = models.UserPermission{
				UserID:       userID,
				PermissionID: permissionID,
				TenantID:     tenantID,
				Granted:      granted,
			}
			return s.db.Create(&override).Error
		}
		return err
	}

	override.Granted = granted
	return s.db.Save(&override).Error
}

// RemoveUserPermission 移除用户级权限覆盖，恢复角色默认
func (s *PermissionService) RemoveUserPermission(userID, tenantID, permissionID uint) error {
	return s.db.Where("user_id = ? AND permission_id = ? AND tenant_id = ?",
		userID, permissionID, tenantID).
		Delete(&models.UserPermission{}).Error
}

// GetUserPermissions 查询用户在租户内的全部权限覆盖
func (s *PermissionService) GetUserPermissions(userID, tenantID uint) ([]models.UserPermission, error) {
	var overrides []models.UserPermission
	err := s.db.Where("user_id = ? AND tenant_id = ?", userID, tenantID).
		Preload("Permission").
		Find(&overrides).Error
	return overrides, err
}

// ========== 权限字典 ==========

// GetWithPage 分页获取权限字典
func (s *PermissionService) GetWithPage(module string, page, pageSize int) ([]*models.Permission, int64, error) {
	var permissions []*models.Permission
	var total int64

	query := s.db.Model(&models.Permission{})

	// 按模块筛选
	if module != "" {
		query = query.Where("module = ?", module)
	}

	// 计算总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 分页查询
	offset := (page - 1) * pageSize
	err := query.Offset(offset).Limit(pageSize).Find(&permissions).Error
	if err != nil {
		return nil, 0, err
	}

	return permissions, total, nil
}

// GetByCode 根据代码获取权限
func (s *PermissionService) GetByCode(code string) (*models.Permission, error) {
	var permission models.Permission
	err := s.db.Where("code = ?", code).First(&permission).Error
	return &permission, err
}
