package services

import (
	"crmnet/internal/models"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 租户生命周期错误 - 租户存在与否不是秘密，可以返回明确提示
var (
	ErrTenantSuspended = errors.New("租户已被暂停，请联系客服处理")
	ErrTenantExpired   = errors.New("租户已过期，请续费后再使用")
)

// TenantHeaderName 显式指定租户的请求头
const TenantHeaderName = "X-Tenant-ID"

// TenantQueryParam 显式指定租户的查询参数（最低优先级，测试/外链用）
const TenantQueryParam = "tenant"

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// RequestMeta 请求元数据读取接口
// 解析器对具体HTTP框架零依赖，gin适配在middleware层完成
type RequestMeta interface {
	Hostname() string
	Path() string
	Header(name string) string
	Query(name string) string
}

// TenantContext 解析出的租户上下文，后续所有数据访问以此为作用域
type TenantContext struct {
	ID       uint           `json:"id"`
	Slug     string         `json:"slug"`
	Domain   string         `json:"domain,omitempty"`
	Status   string         `json:"status"`
	Plan     string         `json:"plan"`
	Branding datatypes.JSON `json:"branding,omitempty"`
}

// ResolverConfig 解析器的域名/保留字配置
type ResolverConfig struct {
	ApexDomain         string
	SystemDomains      []string
	ReservedSubdomains []string
	ReservedPaths      []string
}

// TenantResolver 租户解析器
// 按 自定义域名 > 子域名 > 路径段 > 请求头 > 查询参数 的固定顺序识别租户，
// 首个命中即返回；suspended/expired在解析内部直接拒绝，下游不会看到死租户的上下文
type TenantResolver struct {
	db  *gorm.DB
	cfg ResolverConfig
}

// NewTenantResolver 创建租户解析器
func NewTenantResolver(db *gorm.DB, cfg ResolverConfig) *TenantResolver {
	return &TenantResolver{db: db, cfg: cfg}
}

// Resolve 解析请求所属租户
// 所有渠道都未命中时返回 (nil, nil)，平台级路由属于合法的无租户场景，
// 是否强制要求租户由调用方决定
func (r *TenantResolver) Resolve(meta RequestMeta) (*TenantContext, error) {
	hostname := normalizeHostname(meta.Hostname())

	// 1. 自定义域名精确匹配（跳过系统域名）
	if hostname != "" && !r.isSystemDomain(hostname) {
		if ctx, err := r.lookupByDomain(hostname); ctx != nil || err != nil {
			return ctx, err
		}
	}

	// 2. 子域名匹配租户slug（跳过保留子域名）
	if sub := r.extractSubdomain(hostname); sub != "" && !r.isReservedSubdomain(sub) {
		if ctx, err := r.lookupBySlug(sub); ctx != nil || err != nil {
			return ctx, err
		}
	}

	// 3. 路径首段作为slug（本地/开发路由，跳过保留路径）
	if seg := firstPathSegment(meta.Path()); seg != "" && slugPattern.MatchString(seg) && !r.isReservedPath(seg) {
		if ctx, err := r.lookupBySlug(seg); ctx != nil || err != nil {
			return ctx, err
		}
	}

	// 4. 显式租户请求头（服务间调用），slug或数字ID均可
	if header := strings.TrimSpace(meta.Header(TenantHeaderName)); header != "" {
		if id, err := strconv.ParseUint(header, 10, 32); err == nil {
			if ctx, err := r.lookupByID(uint(id)); ctx != nil || err != nil {
				return ctx, err
			}
		} else if ctx, err := r.lookupBySlug(strings.ToLower(header)); ctx != nil || err != nil {
			return ctx, err
		}
	}

	// 5. 查询参数兜底
	if param := strings.ToLower(strings.TrimSpace(meta.Query(TenantQueryParam))); param != "" {
		if ctx, err := r.lookupBySlug(param); ctx != nil || err != nil {
			return ctx, err
		}
	}

	return nil, nil
}

// ========== 查找方法 ==========

// 每次都重新读取租户状态，suspended/expired绝不允许被缓存放行
func (r *TenantResolver) lookupByDomain(domain string) (*TenantContext, error) {
	var tenant models.Tenant
	err := r.db.Where("domain = ?", domain).First(&tenant).Error
	return r.toContext(&tenant, err)
}

func (r *TenantResolver) lookupBySlug(slug string) (*TenantContext, error) {
	var tenant models.Tenant
	err := r.db.Where("slug = ?", slug).First(&tenant).Error
	return r.toContext(&tenant, err)
}

func (r *TenantResolver) lookupByID(id uint) (*TenantContext, error) {
	var tenant models.Tenant
	err := r.db.First(&tenant, id).Error
	return r.toContext(&tenant, err)
}

// toContext 未找到时返回 (nil, nil) 让解析继续尝试下一渠道；
// 找到但状态异常时直接返回生命周期错误
func (r *TenantResolver) toContext(tenant *models.Tenant, err error) (*TenantContext, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	switch tenant.Status {
	case models.TenantStatusSuspended:
		return nil, ErrTenantSuspended
	case models.TenantStatusExpired:
		return nil, ErrTenantExpired
	}

	ctx := &TenantContext{
		ID:       tenant.ID,
		Slug:     tenant.Slug,
		Status:   tenant.Status,
		Plan:     tenant.Plan,
		Branding: tenant.Branding,
	}
	if tenant.Domain != nil {
		ctx.Domain = *tenant.Domain
	}
	return ctx, nil
}

// ========== 域名/路径辅助方法 ==========

func normalizeHostname(hostname string) string {
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	// 去掉端口
	if idx := strings.LastIndex(hostname, ":"); idx != -1 && !strings.Contains(hostname, "]") {
		hostname = hostname[:idx]
	}
	return hostname
}

func (r *TenantResolver) isSystemDomain(hostname string) bool {
	for _, d := range r.cfg.SystemDomains {
		if hostname == d {
			return true
		}
	}
	// 平台主域名下的子域名走子域名策略，不作为自定义域名处理
	return strings.HasSuffix(hostname, "."+r.cfg.ApexDomain)
}

// extractSubdomain 提取平台主域名下的一级子域名，如 acme.crmnet.io -> acme
func (r *TenantResolver) extractSubdomain(hostname string) string {
	suffix := "." + r.cfg.ApexDomain
	if !strings.HasSuffix(hostname, suffix) {
		return ""
	}
	sub := strings.TrimSuffix(hostname, suffix)
	// 多级子域名不参与租户识别
	if sub == "" || strings.Contains(sub, ".") {
		return ""
	}
	return sub
}

func (r *TenantResolver) isReservedSubdomain(sub string) bool {
	for _, s := range r.cfg.ReservedSubdomains {
		if sub == s {
			return true
		}
	}
	return false
}

func (r *TenantResolver) isReservedPath(seg string) bool {
	for _, p := range r.cfg.ReservedPaths {
		if seg == p {
			return true
		}
	}
	return false
}

func firstPathSegment(path string) string {
	path = strings.TrimPrefix(path, "/")
	if idx := strings.Index(path, "/"); idx != -1 {
		path = path[:idx]
	}
	return path
}
