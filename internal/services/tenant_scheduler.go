package services

import (
	"crmnet/internal/models"
	"crmnet/pkg/audit"
	"crmnet/pkg/logger"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// TenantLifecycleScheduler 租户生命周期调度器
// 定时扫描试用到期的租户并标记为过期；只做状态推进，不做清理删除
type TenantLifecycleScheduler struct {
	db      *gorm.DB
	audit   audit.Emitter
	cron    *cron.Cron
	running bool
}

// NewTenantLifecycleScheduler 创建租户生命周期调度器
func NewTenantLifecycleScheduler(db *gorm.DB, emitter audit.Emitter) *TenantLifecycleScheduler {
	return &TenantLifecycleScheduler{
		db:    db,
		audit: emitter,
		cron:  cron.New(),
	}
}

// Start 启动调度器
func (s *TenantLifecycleScheduler) Start() error {
	if s.running {
		return fmt.Errorf("调度器已经在运行")
	}

	logger.GetLogger().Info("启动租户生命周期调度器")

	// 每小时检查一次试用到期
	if _, err := s.cron.AddFunc("@every 1h", s.expireTrials); err != nil {
		return fmt.Errorf("注册试用到期任务失败: %v", err)
	}

	s.cron.Start()
	s.running = true

	// 启动时先跑一轮，服务停机期间到期的租户立即补上
	go s.expireTrials()

	return nil
}

// Stop 停止调度器
func (s *TenantLifecycleScheduler) Stop() {
	if !s.running {
		return
	}

	logger.GetLogger().Info("停止租户生命周期调度器")
	s.cron.Stop()
	s.running = false
}

// expireTrials 将试用到期的租户标记为过期
func (s *TenantLifecycleScheduler) expireTrials() {
	log := logger.GetLogger()

	var tenants []models.Tenant
	err := s.db.Where("status = ? AND trial_ends_at IS NOT NULL AND trial_ends_at < ?",
		models.TenantStatusTrial, time.Now()).Find(&tenants).Error
	if err != nil {
		log.Errorf("查询试用到期租户失败: %v", err)
		return
	}

	for _, tenant := range tenants {
		err := s.db.Model(&models.Tenant{}).
			Where("id = ? AND status = ?", tenant.ID, models.TenantStatusTrial).
			Update("status", models.TenantStatusExpired).Error
		if err != nil {
			log.Errorf("标记租户 %d 过期失败: %v", tenant.ID, err)
			continue
		}

		s.audit.Emit(audit.Event{
			Name:     "tenant.trial_expired",
			TenantID: tenant.ID,
			Metadata: map[string]interface{}{"slug": tenant.Slug},
		})
	}

	if len(tenants) > 0 {
		log.Infof("共标记 %d 个试用到期租户", len(tenants))
	}
}
