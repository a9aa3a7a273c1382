package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Event 安全事件
// 认证、授权相关的关键动作统一通过该结构上报，禁止携带任何密钥明文
type Event struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"` // 事件名，如 "magic_link.issued"
	Email     string                 `json:"email,omitempty"`
	UserID    uint                   `json:"user_id,omitempty"`
	TenantID  uint                   `json:"tenant_id,omitempty"`
	IPAddress string                 `json:"ip_address,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Time      time.Time              `json:"time"`
}

// Emitter 安全事件发射接口
// 核心逻辑只调用Emit，具体落地方式（日志、持久化、实时推送）由实现决定
type Emitter interface {
	Emit(event Event)
}

// Normalize 补全事件ID和时间
func Normalize(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
}

// ========== 日志实现 ==========

// LogEmitter 将安全事件写入结构化日志
type LogEmitter struct {
	log *logrus.Logger
}

// NewLogEmitter 创建日志发射器
func NewLogEmitter(log *logrus.Logger) *LogEmitter {
	return &LogEmitter{log: log}
}

// Emit 输出结构化日志
func (e *LogEmitter) Emit(event Event) {
	Normalize(&event)

	fields := logrus.Fields{
		"event_id": event.ID,
		"event":    event.Name,
	}
	if event.Email != "" {
		fields["email"] = event.Email
	}
	if event.UserID != 0 {
		fields["user_id"] = event.UserID
	}
	if event.TenantID != 0 {
		fields["tenant_id"] = event.TenantID
	}
	if event.IPAddress != "" {
		fields["ip_address"] = event.IPAddress
	}
	if event.UserAgent != "" {
		fields["user_agent"] = event.UserAgent
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	e.log.WithFields(fields).Info("security event")
}

// ========== 实时推送 ==========

// Hub 安全事件订阅中心，供管理控制台WebSocket实时订阅
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewHub 创建订阅中心
func NewHub() *Hub {
	return &Hub{
		subs: make(map[chan Event]struct{}),
	}
}

// Subscribe 订阅事件流
func (h *Hub) Subscribe() chan Event {
	ch := make(chan Event, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe 取消订阅
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Emit 广播事件，慢订阅者直接丢弃，不阻塞调用方
func (h *Hub) Emit(event Event) {
	Normalize(&event)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// ========== 组合实现 ==========

// Fanout 将事件同时分发给多个发射器
type Fanout []Emitter

// Emit 依次分发
func (f Fanout) Emit(event Event) {
	Normalize(&event)
	for _, e := range f {
		e.Emit(event)
	}
}
