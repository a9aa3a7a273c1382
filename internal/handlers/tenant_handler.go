package handlers

import (
	"crmnet/internal/models"
	"crmnet/internal/services"
	"crmnet/pkg/pagination"
	"crmnet/pkg/response"
	"strconv"

	"github.com/gin-gonic/gin"
)

type TenantHandler struct {
	tenantService *services.TenantService
}

func NewTenantHandler(tenantService *services.TenantService) *TenantHandler {
	return &TenantHandler{tenantService: tenantService}
}

// ProvisionTenantRequest 开通租户请求
type ProvisionTenantRequest struct {
	Name          string  `json:"name" binding:"required,min=2,max=100"`
	Slug          string  `json:"slug" binding:"required,min=2,max=50"`
	Domain        *string `json:"domain"`
	Plan          string  `json:"plan" binding:"omitempty,oneof=starter professional enterprise"`
	AdminEmail    string  `json:"admin_email" binding:"required,email"`
	AdminName     string  `json:"admin_name" binding:"required,min=2,max=100"`
	AdminPassword string  `json:"admin_password"`
}

// Provision 开通新租户（平台管理员）
func (h *TenantHandler) Provision(c *gin.Context) {
	var req ProvisionTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	tenant, err := h.tenantService.Provision(services.ProvisionParams{
		Name:          req.Name,
		Slug:          req.Slug,
		Domain:        req.Domain,
		Plan:          req.Plan,
		AdminEmail:    req.AdminEmail,
		AdminName:     req.AdminName,
		AdminPassword: req.AdminPassword,
	})
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	response.SuccessWithMessage(c, "租户开通成功", tenant)
}

// GetAll 获取租户列表（平台管理员）
func (h *TenantHandler) GetAll(c *gin.Context) {
	params := pagination.ParsePageParams(c)
	status := c.Query("status")
	keyword := c.Query("keyword")

	tenants, total, err := h.tenantService.GetWithFiltersAndPage(status, keyword, params.Page, params.PageSize)
	if err != nil {
		response.ServerError(c, "获取租户列表失败")
		return
	}

	pageInfo := pagination.NewPageInfo(params.Page, params.PageSize, total)
	response.SuccessWithPage(c, tenants, pageInfo)
}

// GetByID 获取租户详情
func (h *TenantHandler) GetByID(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的租户ID")
		return
	}

	tenant, err := h.tenantService.GetByID(uint(id))
	if err != nil {
		response.NotFound(c, "租户不存在")
		return
	}

	response.Success(c, tenant)
}

// GetStats 获取租户统计
func (h *TenantHandler) GetStats(c *gin.Context) {
	stats, err := h.tenantService.GetStats()
	if err != nil {
		response.ServerError(c, "获取统计数据失败")
		return
	}
	response.Success(c, stats)
}

// Activate 激活租户
func (h *TenantHandler) Activate(c *gin.Context) {
	h.setStatus(c, h.tenantService.Activate, "租户已激活")
}

// Suspend 停用租户
func (h *TenantHandler) Suspend(c *gin.Context) {
	h.setStatus(c, h.tenantService.Suspend, "租户已停用")
}

// MarkExpired 标记租户过期
func (h *TenantHandler) MarkExpired(c *gin.Context) {
	h.setStatus(c, h.tenantService.MarkExpired, "租户已标记过期")
}

func (h *TenantHandler) setStatus(c *gin.Context, fn func(uint) (*models.Tenant, error), message string) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的租户ID")
		return
	}

	tenant, err := fn(uint(id))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	response.SuccessWithMessage(c, message, tenant)
}

// Delete 删除租户及其所有关联数据
func (h *TenantHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的租户ID")
		return
	}

	if err := h.tenantService.Delete(uint(id)); err != nil {
		response.ServerError(c, "删除租户失败: "+err.Error())
		return
	}

	response.SuccessWithMessage(c, "租户删除成功", nil)
}
