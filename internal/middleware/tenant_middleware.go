package middleware

import (
	"crmnet/internal/services"
	"crmnet/pkg/logger"
	"crmnet/pkg/response"
	"errors"

	"github.com/gin-gonic/gin"
)

// TenantContextKey gin上下文中租户上下文的键
const TenantContextKey = "tenant_context"

// ginRequestMeta gin.Context到RequestMeta的适配
// 解析器本身不感知gin
type ginRequestMeta struct {
	c *gin.Context
}

func (m *ginRequestMeta) Hostname() string {
	return m.c.Request.Host
}

func (m *ginRequestMeta) Path() string {
	return m.c.Request.URL.Path
}

func (m *ginRequestMeta) Header(name string) string {
	return m.c.GetHeader(name)
}

func (m *ginRequestMeta) Query(name string) string {
	return m.c.Query(name)
}

// TenantMiddleware 租户解析中间件
type TenantMiddleware struct {
	resolver *services.TenantResolver
}

// NewTenantMiddleware 创建租户解析中间件
func NewTenantMiddleware(resolver *services.TenantResolver) *TenantMiddleware {
	return &TenantMiddleware{resolver: resolver}
}

// Resolve 每个请求解析租户
// suspended/expired在此直接拒绝，业务handler不会收到死租户的请求；
// 未解析到租户不拦截，平台级路由自行决定是否强制
func (m *TenantMiddleware) Resolve() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantCtx, err := m.resolver.Resolve(&ginRequestMeta{c: c})
		if err != nil {
			if errors.Is(err, services.ErrTenantSuspended) || errors.Is(err, services.ErrTenantExpired) {
				response.Forbidden(c, err.Error())
				c.Abort()
				return
			}
			logger.GetLogger().Errorf("租户解析失败: %v", err)
			response.ServerError(c, "租户解析失败")
			c.Abort()
			return
		}

		if tenantCtx != nil {
			c.Set(TenantContextKey, tenantCtx)
		}
		c.Next()
	}
}

// RequireTenant 强制要求租户上下文存在
func (m *TenantMiddleware) RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(TenantContextKey); !exists {
			response.BadRequest(c, "无法识别请求所属租户")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetTenantContext 从gin上下文取出租户上下文
func GetTenantContext(c *gin.Context) (*services.TenantContext, bool) {
	v, exists := c.Get(TenantContextKey)
	if !exists {
		return nil, false
	}
	ctx, ok := v.(*services.TenantContext)
	return ctx, ok
}
