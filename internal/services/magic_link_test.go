package services

import (
	"crmnet/internal/models"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMagicLinkService(t *testing.T) (*MagicLinkService, *captureEmitter) {
	t.Helper()
	emitter := &captureEmitter{}
	svc := NewMagicLinkService(newTestDB(t), emitter, nil)
	return svc, emitter
}

func TestMagicLinkIssueAndVerify(t *testing.T) {
	svc, emitter := newMagicLinkService(t)

	secret, err := svc.Issue("alice@example.com", models.IntentSignin, IssueOptions{})
	require.NoError(t, err)
	// 256位熵，十六进制64字符
	assert.Len(t, secret, 64)

	// 库里只有哈希，没有明文
	var token models.MagicLinkToken
	require.NoError(t, svc.db.First(&token).Error)
	assert.NotEqual(t, secret, token.TokenHash)
	assert.Len(t, token.TokenHash, 64)

	result, err := svc.Verify(secret, "alice@example.com", VerifyOptions{})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", result.Email)
	assert.Equal(t, models.IntentSignin, result.Intent)
	assert.False(t, result.IsInvite)

	assert.True(t, emitter.has("magic_link.issued"))
	assert.True(t, emitter.has("magic_link.verified"))
}

func TestMagicLinkSingleUse(t *testing.T) {
	svc, _ := newMagicLinkService(t)

	secret, err := svc.Issue("alice@example.com", models.IntentSignin, IssueOptions{})
	require.NoError(t, err)

	_, err = svc.Verify(secret, "alice@example.com", VerifyOptions{})
	require.NoError(t, err)

	// 二次使用必须失败
	_, err = svc.Verify(secret, "alice@example.com", VerifyOptions{})
	assert.ErrorIs(t, err, ErrInvalidLink)
}

func TestMagicLinkExpiry(t *testing.T) {
	svc, _ := newMagicLinkService(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return base })

	secret, err := svc.Issue("alice@example.com", models.IntentSignin, IssueOptions{})
	require.NoError(t, err)

	// 有效期 = 基础5分钟 + [0,5)分钟抖动
	var token models.MagicLinkToken
	require.NoError(t, svc.db.First(&token).Error)
	ttl := token.ExpiresAt.Sub(base)
	assert.GreaterOrEqual(t, ttl, 5*time.Minute)
	assert.Less(t, ttl, 10*time.Minute)

	// 抖动上限之前可能仍有效，之后必然失效
	svc.SetClock(func() time.Time { return base.Add(11 * time.Minute) })
	_, err = svc.Verify(secret, "alice@example.com", VerifyOptions{})
	assert.ErrorIs(t, err, ErrInvalidLink)
}

// 各种失败路径返回的错误必须完全一致，否则攻击者可据此枚举邮箱
func TestMagicLinkEnumerationSafety(t *testing.T) {
	svc, _ := newMagicLinkService(t)

	secret, err := svc.Issue("alice@example.com", models.IntentSignin, IssueOptions{})
	require.NoError(t, err)

	// 不存在的密钥
	_, errUnknown := svc.Verify("deadbeef", "alice@example.com", VerifyOptions{})
	// 密钥正确但邮箱不匹配
	_, errWrongEmail := svc.Verify(secret, "mallory@example.com", VerifyOptions{})
	// 已使用的密钥
	_, err = svc.Verify(secret, "alice@example.com", VerifyOptions{})
	require.NoError(t, err)
	_, errUsed := svc.Verify(secret, "alice@example.com", VerifyOptions{})

	assert.Equal(t, ErrInvalidLink, errUnknown)
	assert.Equal(t, ErrInvalidLink, errWrongEmail)
	assert.Equal(t, ErrInvalidLink, errUsed)
	// 错误文本也必须逐字节相同
	assert.Equal(t, errUnknown.Error(), errWrongEmail.Error())
	assert.Equal(t, errUnknown.Error(), errUsed.Error())
}

func TestMagicLinkActiveTokenCap(t *testing.T) {
	svc, _ := newMagicLinkService(t)

	for i := 0; i < MaxActiveTokensPerEmail; i++ {
		_, err := svc.Issue("alice@example.com", models.IntentSignin, IssueOptions{})
		require.NoError(t, err)
	}

	_, err := svc.Issue("alice@example.com", models.IntentSignin, IssueOptions{})
	assert.ErrorIs(t, err, ErrTooManyActiveTokens)

	// 其他邮箱不受影响
	_, err = svc.Issue("bob@example.com", models.IntentSignin, IssueOptions{})
	assert.NoError(t, err)
}

func TestMagicLinkEmailRateLimit(t *testing.T) {
	svc, _ := newMagicLinkService(t)

	// 每次签发后立即作废，绕开存活令牌上限，单独测限流
	for i := 0; i < MaxRequestsPerWindow; i++ {
		_, err := svc.Issue("alice@example.com", models.IntentSignin, IssueOptions{})
		require.NoError(t, err)
		require.NoError(t, svc.RevokeAll("alice@example.com"))
	}

	_, err := svc.Issue("alice@example.com", models.IntentSignin, IssueOptions{})
	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Greater(t, rateErr.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, rateErr.RetryAfter, RateLimitWindowDuration)
}

func TestMagicLinkRateLimitWindowReset(t *testing.T) {
	svc, _ := newMagicLinkService(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return base })

	for i := 0; i < MaxRequestsPerWindow; i++ {
		_, err := svc.Issue("alice@example.com", models.IntentSignin, IssueOptions{})
		require.NoError(t, err)
		require.NoError(t, svc.RevokeAll("alice@example.com"))
	}
	_, err := svc.Issue("alice@example.com", models.IntentSignin, IssueOptions{})
	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)

	// 窗口期满后恢复
	svc.SetClock(func() time.Time { return base.Add(RateLimitWindowDuration + time.Second) })
	_, err = svc.Issue("alice@example.com", models.IntentSignin, IssueOptions{})
	assert.NoError(t, err)
}

func TestMagicLinkIPRateLimit(t *testing.T) {
	svc, _ := newMagicLinkService(t)

	ipLimit := MaxRequestsPerWindow * IPRateLimitMultiplier
	for i := 0; i < ipLimit; i++ {
		email := fmt.Sprintf("user%d@example.com", i)
		_, err := svc.Issue(email, models.IntentSignin, IssueOptions{IPAddress: "203.0.113.7"})
		require.NoError(t, err)
	}

	// 同IP换新邮箱也会被拦
	_, err := svc.Issue("fresh@example.com", models.IntentSignin, IssueOptions{IPAddress: "203.0.113.7"})
	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)

	// 换IP立即放行
	_, err = svc.Issue("fresh@example.com", models.IntentSignin, IssueOptions{IPAddress: "203.0.113.8"})
	assert.NoError(t, err)
}

func TestMagicLinkRevokeAll(t *testing.T) {
	svc, emitter := newMagicLinkService(t)

	secret1, err := svc.Issue("alice@example.com", models.IntentSignin, IssueOptions{})
	require.NoError(t, err)
	secret2, err := svc.Issue("alice@example.com", models.IntentSignin, IssueOptions{})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeAll("alice@example.com"))

	_, err = svc.Verify(secret1, "alice@example.com", VerifyOptions{})
	assert.ErrorIs(t, err, ErrInvalidLink)
	_, err = svc.Verify(secret2, "alice@example.com", VerifyOptions{})
	assert.ErrorIs(t, err, ErrInvalidLink)

	assert.True(t, emitter.has("magic_link.revoked_all"))

	// 作废后存活计数归零，可以重新签发
	_, err = svc.Issue("alice@example.com", models.IntentSignin, IssueOptions{})
	assert.NoError(t, err)
}

func TestMagicLinkInviteFlow(t *testing.T) {
	svc, _ := newMagicLinkService(t)
	db := svc.db

	tenant := mustCreateTenant(t, db, "Acme", "acme", nil, models.TenantStatusActive)
	inviter := mustCreateMember(t, db, tenant.ID, "admin@acme.com", models.RoleAdmin)

	invite := &models.InviteToken{
		TenantID:  tenant.ID,
		InviterID: inviter.ID,
		Email:     "new@example.com",
		Role:      models.RoleEmployee,
		Token:     "invite-token-1",
		MaxUses:   1,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	require.NoError(t, db.Create(invite).Error)

	secret, err := svc.Issue("new@example.com", models.IntentInvite, IssueOptions{InviteID: &invite.ID})
	require.NoError(t, err)

	result, err := svc.Verify(secret, "new@example.com", VerifyOptions{})
	require.NoError(t, err)
	assert.True(t, result.IsInvite)
	require.NotNil(t, result.InviteID)
	assert.Equal(t, invite.ID, *result.InviteID)

	// 消费链接的同一事务里递增邀请计数，次数用尽即标记
	var reloaded models.InviteToken
	require.NoError(t, db.First(&reloaded, invite.ID).Error)
	assert.Equal(t, 1, reloaded.CurrentUses)
	assert.True(t, reloaded.Used)

	// 次数用尽的邀请不能再签发新链接
	_, err = svc.Issue("new@example.com", models.IntentInvite, IssueOptions{InviteID: &invite.ID})
	assert.ErrorIs(t, err, ErrInviteInvalid)
}

func TestMagicLinkInviteRequired(t *testing.T) {
	svc, _ := newMagicLinkService(t)

	_, err := svc.Issue("new@example.com", models.IntentInvite, IssueOptions{})
	assert.ErrorIs(t, err, ErrInviteRequired)

	missing := uint(999)
	_, err = svc.Issue("new@example.com", models.IntentInvite, IssueOptions{InviteID: &missing})
	assert.ErrorIs(t, err, ErrInviteNotFound)
}

func TestMagicLinkIssueValidation(t *testing.T) {
	svc, _ := newMagicLinkService(t)

	_, err := svc.Issue("", models.IntentSignin, IssueOptions{})
	assert.Error(t, err)

	_, err = svc.Issue("alice@example.com", "bogus", IssueOptions{})
	assert.Error(t, err)
}

func TestMagicLinkCleanupRemovesExpired(t *testing.T) {
	svc, _ := newMagicLinkService(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return base })

	_, err := svc.Issue("alice@example.com", models.IntentSignin, IssueOptions{})
	require.NoError(t, err)

	// 下一次签发顺带清理已过期的令牌
	svc.SetClock(func() time.Time { return base.Add(30 * time.Minute) })
	_, err = svc.Issue("bob@example.com", models.IntentSignin, IssueOptions{})
	require.NoError(t, err)

	var count int64
	require.NoError(t, svc.db.Model(&models.MagicLinkToken{}).
		Where("email = ?", "alice@example.com").Count(&count).Error)
	assert.Zero(t, count)
}

func TestMagicLinkUserAgentMismatchIsAuditOnly(t *testing.T) {
	svc, emitter := newMagicLinkService(t)

	secret, err := svc.Issue("alice@example.com", models.IntentSignin, IssueOptions{
		UserAgent: "Mozilla/5.0 (Macintosh)",
		IPAddress: "198.51.100.1",
	})
	require.NoError(t, err)

	// 跨设备打开邮件链接是正常场景，不一致只记审计不拦截
	result, err := svc.Verify(secret, "alice@example.com", VerifyOptions{
		UserAgent: "Mozilla/5.0 (iPhone)",
		IPAddress: "198.51.100.2",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", result.Email)

	assert.True(t, emitter.has("magic_link.user_agent_mismatch"))
	assert.True(t, emitter.has("magic_link.ip_mismatch"))
}
