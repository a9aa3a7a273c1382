package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// MailQueue 基于Redis的外发邮件队列
// 服务端只负责入队，实际投递由独立的邮件worker消费完成
type MailQueue struct {
	client *redis.Client
	prefix string
}

// MailMessage 队列中的邮件消息
type MailMessage struct {
	MessageID string            `json:"message_id"`
	To        string            `json:"to"`
	Template  string            `json:"template"` // 邮件模板，如 "magic_link"、"tenant_invite"
	TenantID  uint              `json:"tenant_id,omitempty"`
	Params    map[string]string `json:"params"` // 模板参数（链接URL等）
	Created   int64             `json:"created"`
}

// Config Redis配置
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string
}

// NewMailQueue 创建邮件队列实例
func NewMailQueue(config *Config) *MailQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	})

	prefix := config.Prefix
	if prefix == "" {
		prefix = "crmnet:mail"
	}

	return &MailQueue{
		client: client,
		prefix: prefix,
	}
}

// Close 关闭Redis连接
func (q *MailQueue) Close() error {
	return q.client.Close()
}

// Ping 测试Redis连接
func (q *MailQueue) Ping() error {
	ctx := context.Background()
	return q.client.Ping(ctx).Err()
}

// GetClient 获取底层Redis客户端
func (q *MailQueue) GetClient() *redis.Client {
	return q.client
}

// Enqueue 将邮件加入队列（左侧入队，worker右侧出队）
func (q *MailQueue) Enqueue(message *MailMessage) error {
	ctx := context.Background()

	if message.Created == 0 {
		message.Created = time.Now().Unix()
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("序列化邮件消息失败: %v", err)
	}

	queueKey := q.prefix + ":pending"
	if err := q.client.LPush(ctx, queueKey, data).Err(); err != nil {
		return fmt.Errorf("邮件入队失败: %v", err)
	}

	// 记录消息状态（用于排障查询），24小时后过期
	statusKey := fmt.Sprintf("%s:status:%s", q.prefix, message.MessageID)
	statusInfo := map[string]interface{}{
		"message_id": message.MessageID,
		"to":         message.To,
		"template":   message.Template,
		"status":     "queued",
		"queued_at":  time.Now().Unix(),
	}
	if err := q.client.HSet(ctx, statusKey, statusInfo).Err(); err != nil {
		return fmt.Errorf("记录邮件状态失败: %v", err)
	}
	q.client.Expire(ctx, statusKey, 24*time.Hour)

	return nil
}

// Dequeue 从队列取出一条邮件（阻塞，供邮件worker调用）
func (q *MailQueue) Dequeue(timeout time.Duration) (*MailMessage, error) {
	ctx := context.Background()

	queueKey := q.prefix + ":pending"
	result, err := q.client.BRPop(ctx, timeout, queueKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // 超时无消息
		}
		return nil, fmt.Errorf("邮件出队失败: %v", err)
	}

	var message MailMessage
	if err := json.Unmarshal([]byte(result[1]), &message); err != nil {
		return nil, fmt.Errorf("解析邮件消息失败: %v", err)
	}

	return &message, nil
}

// PendingCount 查询待发送邮件数
func (q *MailQueue) PendingCount() (int64, error) {
	ctx := context.Background()
	return q.client.LLen(ctx, q.prefix+":pending").Result()
}
