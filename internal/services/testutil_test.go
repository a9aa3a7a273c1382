package services

import (
	"crmnet/internal/models"
	"crmnet/pkg/audit"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB 每个测试一个独立的内存数据库
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层连接失败: %v", err)
	}
	// 内存库在最后一个连接关闭时销毁，限制为单连接
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(
		&models.Tenant{},
		&models.Team{},
		&models.User{},
		&models.TenantMember{},
		&models.Permission{},
		&models.RolePermission{},
		&models.UserPermission{},
		&models.MagicLinkToken{},
		&models.RateLimitWindow{},
		&models.InviteToken{},
		&models.AuditEvent{},
	); err != nil {
		t.Fatalf("迁移测试数据库失败: %v", err)
	}

	return db
}

// captureEmitter 记录收到的安全事件，断言审计行为用
type captureEmitter struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureEmitter) Emit(event audit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureEmitter) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.events))
	for _, e := range c.events {
		names = append(names, e.Name)
	}
	return names
}

func (c *captureEmitter) has(name string) bool {
	for _, n := range c.names() {
		if n == name {
			return true
		}
	}
	return false
}

// mustCreateTenant 建测试租户
func mustCreateTenant(t *testing.T, db *gorm.DB, name, slug string, domain *string, status string) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{
		Name:   name,
		Slug:   slug,
		Domain: domain,
		Status: status,
		Plan:   models.PlanStarter,
	}
	if err := db.Create(tenant).Error; err != nil {
		t.Fatalf("创建测试租户失败: %v", err)
	}
	return tenant
}

// mustCreateMember 建测试用户并加入租户
func mustCreateMember(t *testing.T, db *gorm.DB, tenantID uint, email, role string) *models.User {
	t.Helper()
	user := &models.User{
		Email:  email,
		Name:   email,
		Status: models.UserStatusActive,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("创建测试用户失败: %v", err)
	}
	member := &models.TenantMember{
		UserID:   user.ID,
		TenantID: tenantID,
		Role:     role,
		JoinedAt: time.Now(),
	}
	if err := db.Create(member).Error; err != nil {
		t.Fatalf("创建测试成员关系失败: %v", err)
	}
	return user
}

// mustCreatePermission 建测试权限
func mustCreatePermission(t *testing.T, db *gorm.DB, module, action string) *models.Permission {
	t.Helper()
	perm := &models.Permission{
		Code:   module + ":" + action,
		Name:   module + ":" + action,
		Module: module,
		Action: action,
	}
	if err := db.Create(perm).Error; err != nil {
		t.Fatalf("创建测试权限失败: %v", err)
	}
	return perm
}
