package services

import (
	"crmnet/internal/models"
	"crmnet/pkg/audit"
	"crmnet/pkg/config"
	"crmnet/pkg/logger"
	"crmnet/pkg/queue"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 魔法链接参数
const (
	magicLinkSecretBytes = 32              // 密钥熵：256位
	magicLinkBaseTTL     = 5 * time.Minute // 基础有效期
	magicLinkTTLJitter   = 5 * time.Minute // 随机抖动上限，削弱签发时间模式的可枚举性

	// MaxActiveTokensPerEmail 单邮箱同时存活（未用未过期）令牌上限
	MaxActiveTokensPerEmail = 3

	// RateLimitWindowDuration 限流窗口长度
	RateLimitWindowDuration = 15 * time.Minute
	// MaxRequestsPerWindow 单邮箱窗口内签发上限
	MaxRequestsPerWindow = 5
	// IPRateLimitMultiplier IP窗口阈值倍数：一个出口IP背后往往是多个正常用户
	IPRateLimitMultiplier = 3

	inviteTokenTTL = 7 * 24 * time.Hour
)

// 魔法链接错误
var (
	// ErrInvalidLink 验证失败统一返回此错误：不存在/已过期/已使用/邮箱不匹配一律不可区分
	ErrInvalidLink = errors.New("链接无效或已过期")

	// ErrTooManyActiveTokens 存活令牌达到上限，与限流分开提示
	ErrTooManyActiveTokens = errors.New("有效登录链接过多，请使用已发送的链接或等待其过期")

	ErrInviteNotFound = errors.New("邀请不存在")
	ErrInviteInvalid  = errors.New("邀请已失效")
	ErrInviteRequired = errors.New("邀请类型的链接必须关联邀请")
)

// RateLimitError 限流错误，附带重试等待时长供前端倒计时
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("请求过于频繁，请在 %d 秒后重试", int64(e.RetryAfter.Seconds())+1)
}

// IssueOptions 签发时的附加信息
type IssueOptions struct {
	UserAgent string
	IPAddress string
	InviteID  *uint
	TenantID  uint // 租户提示，随邮件任务透传
}

// VerifyOptions 验证时的附加信息
type VerifyOptions struct {
	UserAgent string
	IPAddress string
}

// VerifyResult 验证成功的结果
type VerifyResult struct {
	Email    string `json:"email"`
	Intent   string `json:"intent"`
	IsInvite bool   `json:"is_invite"`
	InviteID *uint  `json:"-"`
}

// MagicLinkService 魔法链接服务
// 只持久化密钥的SHA-256，明文仅在Issue返回值中出现一次，绝不写日志
type MagicLinkService struct {
	db    *gorm.DB
	log   *logrus.Logger
	audit audit.Emitter
	mail  *queue.MailQueue // 可为nil（单元测试），签发成功时入队邮件任务

	// 时钟可注入，过期/抖动逻辑才可测试
	now func() time.Time
}

// NewMagicLinkService 创建魔法链接服务
func NewMagicLinkService(db *gorm.DB, emitter audit.Emitter, mail *queue.MailQueue) *MagicLinkService {
	return &MagicLinkService{
		db:    db,
		log:   logger.GetLogger(),
		audit: emitter,
		mail:  mail,
		now:   time.Now,
	}
}

// SetClock 注入时钟（测试用）
func (s *MagicLinkService) SetClock(now func() time.Time) {
	s.now = now
}

// ========== 签发 ==========

// Issue 签发一次性登录链接密钥
// 限流检查必须在创建令牌之前完成：被限流的请求不允许留下任何令牌副作用
func (s *MagicLinkService) Issue(email, intent string, opt IssueOptions) (string, error) {
	if email == "" {
		return "", fmt.Errorf("邮箱不能为空")
	}
	if !models.IsValidIntent(intent) {
		return "", fmt.Errorf("无效的链接用途: %s", intent)
	}

	// 邀请类链接必须关联有效邀请；邀请人本来就知道邀请存在，这里不需要防枚举
	var invite *models.InviteToken
	if intent == models.IntentInvite {
		if opt.InviteID == nil {
			return "", ErrInviteRequired
		}
		var record models.InviteToken
		if err := s.db.First(&record, *opt.InviteID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", ErrInviteNotFound
			}
			return "", fmt.Errorf("查询邀请失败: %v", err)
		}
		if !record.IsValid(s.now()) {
			return "", ErrInviteInvalid
		}
		invite = &record
	}

	// 顺带清理过期数据，失败不阻塞主流程
	s.cleanup()

	// 邮箱与IP两个窗口独立检查
	if err := s.checkRateLimit(email, models.RateLimitKindEmail, MaxRequestsPerWindow); err != nil {
		return "", err
	}
	if opt.IPAddress != "" {
		if err := s.checkRateLimit(opt.IPAddress, models.RateLimitKindIP, MaxRequestsPerWindow*IPRateLimitMultiplier); err != nil {
			return "", err
		}
	}

	// 存活令牌上限，与限流分开报错，前端提示语不同
	var liveCount int64
	if err := s.db.Model(&models.MagicLinkToken{}).
		Where("email = ? AND used = ? AND expires_at > ?", email, false, s.now()).
		Count(&liveCount).Error; err != nil {
		return "", fmt.Errorf("查询存活令牌失败: %v", err)
	}
	if liveCount >= MaxActiveTokensPerEmail {
		return "", ErrTooManyActiveTokens
	}

	secret, err := generateSecret()
	if err != nil {
		return "", fmt.Errorf("生成密钥失败: %v", err)
	}

	token := &models.MagicLinkToken{
		Email:     email,
		Intent:    intent,
		TokenHash: hashSecret(secret),
		Used:      false,
		ExpiresAt: s.now().Add(magicLinkBaseTTL + randomJitter(magicLinkTTLJitter)),
		UserAgent: opt.UserAgent,
		IPAddress: opt.IPAddress,
	}
	if invite != nil {
		token.InviteID = &invite.ID
	}

	if err := s.db.Create(token).Error; err != nil {
		return "", fmt.Errorf("创建令牌失败: %v", err)
	}

	// 限流计数在令牌创建成功后递增
	s.incrementWindow(email, models.RateLimitKindEmail)
	if opt.IPAddress != "" {
		s.incrementWindow(opt.IPAddress, models.RateLimitKindIP)
	}

	s.audit.Emit(audit.Event{
		Name:      "magic_link.issued",
		Email:     email,
		TenantID:  opt.TenantID,
		IPAddress: opt.IPAddress,
		UserAgent: opt.UserAgent,
		Metadata:  map[string]interface{}{"intent": intent},
	})

	s.enqueueMail(email, intent, secret, opt.TenantID)

	return secret, nil
}

// ========== 验证 ==========

// Verify 验证并消费一次性链接
// 任何内部异常在此边界统一折叠为ErrInvalidLink，真实原因只进日志
func (s *MagicLinkService) Verify(secret, email string, opt VerifyOptions) (*VerifyResult, error) {
	result, err := s.verify(secret, email, opt)
	if err != nil {
		if !errors.Is(err, ErrInvalidLink) {
			s.log.Errorf("魔法链接验证内部错误: %v", err)
		}
		s.audit.Emit(audit.Event{
			Name:      "magic_link.verify_failed",
			Email:     email,
			IPAddress: opt.IPAddress,
			UserAgent: opt.UserAgent,
		})
		return nil, ErrInvalidLink
	}
	return result, nil
}

func (s *MagicLinkService) verify(secret, email string, opt VerifyOptions) (*VerifyResult, error) {
	if secret == "" || email == "" {
		return nil, ErrInvalidLink
	}

	// 哈希+邮箱双条件匹配：泄露但未使用的链接无法换个邮箱重放
	var token models.MagicLinkToken
	err := s.db.Where("token_hash = ? AND email = ? AND used = ? AND expires_at > ?",
		hashSecret(secret), email, false, s.now()).
		First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidLink
		}
		return nil, err
	}

	// UA/IP与签发时不一致只告警不拦截：跨设备打开邮件链接是正常场景
	if token.UserAgent != "" && opt.UserAgent != "" && token.UserAgent != opt.UserAgent {
		s.audit.Emit(audit.Event{
			Name:      "magic_link.user_agent_mismatch",
			Email:     email,
			UserAgent: opt.UserAgent,
			Metadata:  map[string]interface{}{"issued_user_agent": token.UserAgent},
		})
	}
	if token.IPAddress != "" && opt.IPAddress != "" && token.IPAddress != opt.IPAddress {
		s.audit.Emit(audit.Event{
			Name:      "magic_link.ip_mismatch",
			Email:     email,
			IPAddress: opt.IPAddress,
			Metadata:  map[string]interface{}{"issued_ip": token.IPAddress},
		})
	}

	// 标记已用与邀请计数递增必须同一事务：二者之间崩溃会导致令牌可重放
	err = s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.MagicLinkToken{}).
			Where("id = ? AND used = ?", token.ID, false).
			Update("used", true)
		if res.Error != nil {
			return res.Error
		}
		// 并发验证同一令牌时只有一个能成功
		if res.RowsAffected == 0 {
			return ErrInvalidLink
		}

		if token.InviteID != nil {
			var invite models.InviteToken
			if err := tx.First(&invite, *token.InviteID).Error; err != nil {
				return err
			}
			invite.CurrentUses++
			if invite.CurrentUses >= invite.MaxUses {
				invite.Used = true
			}
			if err := tx.Save(&invite).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Emit(audit.Event{
		Name:      "magic_link.verified",
		Email:     email,
		IPAddress: opt.IPAddress,
		UserAgent: opt.UserAgent,
		Metadata:  map[string]interface{}{"intent": token.Intent},
	})

	return &VerifyResult{
		Email:    token.Email,
		Intent:   token.Intent,
		IsInvite: token.InviteID != nil,
		InviteID: token.InviteID,
	}, nil
}

// ========== 批量作废 ==========

// RevokeAll 作废某邮箱全部存活令牌
// 只标记不删除，审计记录保留；用于疑似泄露或密码重置完成后的防御性清场
func (s *MagicLinkService) RevokeAll(email string) error {
	res := s.db.Model(&models.MagicLinkToken{}).
		Where("email = ? AND used = ? AND expires_at > ?", email, false, s.now()).
		Update("used", true)
	if res.Error != nil {
		return fmt.Errorf("作废令牌失败: %v", res.Error)
	}

	s.audit.Emit(audit.Event{
		Name:     "magic_link.revoked_all",
		Email:    email,
		Metadata: map[string]interface{}{"revoked_count": res.RowsAffected},
	})
	return nil
}

// ========== 限流 ==========

// checkRateLimit 窗口内计数达到阈值则拒绝
// 重试等待 = 窗口起点 + 窗口长度 - 当前时间
func (s *MagicLinkService) checkRateLimit(identifier, kind string, limit int) error {
	var window models.RateLimitWindow
	err := s.db.Where("identifier = ? AND kind = ?", identifier, kind).First(&window).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("查询限流窗口失败: %v", err)
	}

	now := s.now()
	if window.IsStale(now, RateLimitWindowDuration) {
		return nil
	}
	if window.Count >= limit {
		return &RateLimitError{
			RetryAfter: window.WindowStart.Add(RateLimitWindowDuration).Sub(now),
		}
	}
	return nil
}

// incrementWindow 递增限流计数，窗口过期则重置起点
// 失败只记日志：计数丢失的代价远小于阻断签发
func (s *MagicLinkService) incrementWindow(identifier, kind string) {
	now := s.now()

	var window models.RateLimitWindow
	err := s.db.Where("identifier = ? AND kind = ?", identifier, kind).First(&window).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			window = models.RateLimitWindow{
				Identifier:  identifier,
				Kind:        kind,
				WindowStart: now,
				Count:       1,
			}
			if err := s.db.Create(&window).Error; err != nil {
				s.log.Errorf("创建限流窗口失败: %v", err)
			}
			return
		}
		s.log.Errorf("查询限流窗口失败: %v", err)
		return
	}

	if window.IsStale(now, RateLimitWindowDuration) {
		window.WindowStart = now
		window.Count = 1
	} else {
		window.Count++
	}
	if err := s.db.Save(&window).Error; err != nil {
		s.log.Errorf("更新限流窗口失败: %v", err)
	}
}

// ========== 清理 ==========

// cleanup 签发前顺带清理：过期令牌、过期窗口、过期未用邀请
// 全部尽力而为，任何失败只记日志，不允许影响签发主流程
func (s *MagicLinkService) cleanup() {
	now := s.now()

	if err := s.db.Where("expires_at < ?", now).
		Delete(&models.MagicLinkToken{}).Error; err != nil {
		s.log.Warnf("清理过期令牌失败: %v", err)
	}

	if err := s.db.Where("window_start < ?", now.Add(-RateLimitWindowDuration)).
		Delete(&models.RateLimitWindow{}).Error; err != nil {
		s.log.Warnf("清理过期限流窗口失败: %v", err)
	}

	if err := s.db.Model(&models.InviteToken{}).
		Where("used = ? AND expires_at < ?", false, now).
		Update("used", true).Error; err != nil {
		s.log.Warnf("标记过期邀请失败: %v", err)
	}
}

// ========== 邮件投递 ==========

// enqueueMail 将魔法链接邮件任务入队，由外部邮件worker消费
func (s *MagicLinkService) enqueueMail(email, intent, secret string, tenantID uint) {
	if s.mail == nil {
		return
	}

	cfg := config.GetConfig()
	message := &queue.MailMessage{
		MessageID: uuid.NewString(),
		To:        email,
		Template:  "magic_link",
		TenantID:  tenantID,
		Params: map[string]string{
			"intent": intent,
			"link":   fmt.Sprintf("%s?token=%s&email=%s", cfg.MagicLink.LinkBaseURL, secret, email),
		},
	}
	if err := s.mail.Enqueue(message); err != nil {
		// 邮件入队失败不回滚令牌，调用方可引导用户重试
		s.log.Errorf("魔法链接邮件入队失败: %v", err)
	}
}

// ========== 密钥辅助 ==========

func generateSecret() (string, error) {
	buf := make([]byte, magicLinkSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// hashSecret 密钥本身已是全熵随机值且单次使用，定长单向哈希即可，无需密码哈希
func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func randomJitter(max time.Duration) time.Duration {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}
