package jwt

import (
	"crmnet/pkg/config"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims 会话声明
type SessionClaims struct {
	UserID         uint   `json:"user_id"`
	TenantID       uint   `json:"tenant_id"` // 当前操作的租户
	Email          string `json:"email"`
	Role           string `json:"role"`                      // 用户在该租户内的角色
	ImpersonatorID uint   `json:"impersonator_id,omitempty"` // 非0表示此会话由运营人员代登录发起
	jwt.RegisteredClaims
}

// IsImpersonated 是否为代登录会话
func (c *SessionClaims) IsImpersonated() bool {
	return c.ImpersonatorID != 0
}

// JWTManager JWT管理器
type JWTManager struct {
	secretKey     string
	tokenDuration time.Duration
}

// NewJWTManager 创建JWT管理器
func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     secretKey,
		tokenDuration: tokenDuration,
	}
}

// GenerateToken 生成会话令牌
func (manager *JWTManager) GenerateToken(userID, tenantID uint, email, role string) (string, error) {
	return manager.generate(userID, tenantID, email, role, 0)
}

// GenerateImpersonationToken 生成代登录令牌，记录发起人ID用于审计
func (manager *JWTManager) GenerateImpersonationToken(impersonatorID, targetUserID, tenantID uint, email, role string) (string, error) {
	return manager.generate(targetUserID, tenantID, email, role, impersonatorID)
}

func (manager *JWTManager) generate(userID, tenantID uint, email, role string, impersonatorID uint) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		UserID:         userID,
		TenantID:       tenantID,
		Email:          email,
		Role:           role,
		ImpersonatorID: impersonatorID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(manager.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "CRMNET",
			Subject:   email,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(manager.secretKey))
}

// VerifyToken 验证会话令牌
func (manager *JWTManager) VerifyToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&SessionClaims{},
		func(token *jwt.Token) (interface{}, error) {
			// 验证签名方法
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("意外的签名方法")
			}
			return []byte(manager.secretKey), nil
		},
	)

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		return nil, errors.New("无法解析token声明")
	}

	return claims, nil
}

// GetTokenDuration 获取令牌有效期
func (manager *JWTManager) GetTokenDuration() time.Duration {
	return manager.tokenDuration
}

// 单例实现
var (
	defaultManager *JWTManager
	once           sync.Once
)

// GetJWTManager 获取全局JWT管理器实例
func GetJWTManager() *JWTManager {
	once.Do(func() {
		cfg := config.GetConfig()
		tokenDuration, err := time.ParseDuration(cfg.JWT.TokenDuration)
		if err != nil {
			tokenDuration = 24 * time.Hour
		}
		defaultManager = NewJWTManager(cfg.JWT.SecretKey, tokenDuration)
	})
	return defaultManager
}
