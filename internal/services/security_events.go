package services

import (
	"crmnet/internal/models"
	"crmnet/pkg/audit"
	"crmnet/pkg/logger"
	"encoding/json"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SecurityEventService 安全事件落库
// 与日志发射器、WebSocket订阅中心组合成Fanout使用；落库失败只记日志，不影响主流程
type SecurityEventService struct {
	db  *gorm.DB
	log *logrus.Logger
}

// NewSecurityEventService 创建安全事件服务
func NewSecurityEventService(db *gorm.DB) *SecurityEventService {
	return &SecurityEventService{
		db:  db,
		log: logger.GetLogger(),
	}
}

// Emit 持久化安全事件
func (s *SecurityEventService) Emit(event audit.Event) {
	audit.Normalize(&event)

	record := &models.AuditEvent{
		EventID:   event.ID,
		Event:     event.Name,
		Email:     event.Email,
		IPAddress: event.IPAddress,
		UserAgent: event.UserAgent,
		CreatedAt: event.Time,
	}
	if event.UserID != 0 {
		userID := event.UserID
		record.UserID = &userID
	}
	if event.TenantID != 0 {
		tenantID := event.TenantID
		record.TenantID = &tenantID
	}
	if len(event.Metadata) > 0 {
		if data, err := json.Marshal(event.Metadata); err == nil {
			record.Metadata = data
		}
	}

	if err := s.db.Create(record).Error; err != nil {
		s.log.Errorf("安全事件落库失败: %v", err)
	}
}

// GetWithPage 分页查询安全事件（管理控制台用）
func (s *SecurityEventService) GetWithPage(tenantID uint, event string, page, pageSize int) ([]*models.AuditEvent, int64, error) {
	var events []*models.AuditEvent
	var total int64

	query := s.db.Model(&models.AuditEvent{})
	if tenantID != 0 {
		query = query.Where("tenant_id = ?", tenantID)
	}
	if event != "" {
		query = query.Where("event = ?", event)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&events).Error
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}
