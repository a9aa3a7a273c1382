package handlers

import (
	"crmnet/internal/services"
	"crmnet/pkg/jwt"
	"crmnet/pkg/pagination"
	"crmnet/pkg/response"
	"strconv"

	"github.com/gin-gonic/gin"
)

type PermissionHandler struct {
	permissionService *services.PermissionService
}

func NewPermissionHandler(permissionService *services.PermissionService) *PermissionHandler {
	return &PermissionHandler{permissionService: permissionService}
}

// GetAll 获取权限列表
func (h *PermissionHandler) GetAll(c *gin.Context) {
	params := pagination.ParsePageParams(c)
	module := c.Query("module")

	permissions, total, err := h.permissionService.GetWithPage(module, params.Page, params.PageSize)
	if err != nil {
		response.ServerError(c, "获取权限列表失败")
		return
	}

	pageInfo := pagination.NewPageInfo(params.Page, params.PageSize, total)
	response.SuccessWithPage(c, permissions, pageInfo)
}

// AssignRolePermissionsRequest 角色授权请求
type AssignRolePermissionsRequest struct {
	Role          string `json:"role" binding:"required"`
	PermissionIDs []uint `json:"permission_ids" binding:"required"`
}

// AssignRolePermissions 批量设置角色权限（整体替换）
func (h *PermissionHandler) AssignRolePermissions(c *gin.Context) {
	claims := c.MustGet("claims").(*jwt.SessionClaims)

	var req AssignRolePermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	if err := h.permissionService.AssignRolePermissions(claims.TenantID, req.Role, req.PermissionIDs); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	response.SuccessWithMessage(c, "角色权限设置成功", nil)
}

// GetRolePermissions 获取角色在当前租户的权限
func (h *PermissionHandler) GetRolePermissions(c *gin.Context) {
	claims := c.MustGet("claims").(*jwt.SessionClaims)
	role := c.Param("role")

	permissions, err := h.permissionService.GetRolePermissions(claims.TenantID, role)
	if err != nil {
		response.ServerError(c, "获取角色权限失败")
		return
	}

	response.Success(c, permissions)
}

// SetUserPermissionRequest 用户权限覆盖请求
type SetUserPermissionRequest struct {
	UserID       uint  `json:"user_id" binding:"required"`
	PermissionID uint  `json:"permission_id" binding:"required"`
	Granted      *bool `json:"granted" binding:"required"`
}

// SetUserPermission 设置用户级权限覆盖（显式授予或拒绝）
func (h *PermissionHandler) SetUserPermission(c *gin.Context) {
	claims := c.MustGet("claims").(*jwt.SessionClaims)

	var req SetUserPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	if err := h.permissionService.SetUserPermission(req.UserID, claims.TenantID, req.PermissionID, *req.Granted); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	response.SuccessWithMessage(c, "用户权限设置成功", nil)
}

// RemoveUserPermission 移除用户级权限覆盖，回退到角色默认
func (h *PermissionHandler) RemoveUserPermission(c *gin.Context) {
	claims := c.MustGet("claims").(*jwt.SessionClaims)

	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的用户ID")
		return
	}
	permissionID, err := strconv.ParseUint(c.Param("permission_id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的权限ID")
		return
	}

	if err := h.permissionService.RemoveUserPermission(uint(userID), claims.TenantID, uint(permissionID)); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	response.SuccessWithMessage(c, "用户权限覆盖已移除", nil)
}

// GetUserPermissions 获取用户在当前租户的全部权限覆盖
func (h *PermissionHandler) GetUserPermissions(c *gin.Context) {
	claims := c.MustGet("claims").(*jwt.SessionClaims)

	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的用户ID")
		return
	}

	overrides, err := h.permissionService.GetUserPermissions(uint(userID), claims.TenantID)
	if err != nil {
		response.ServerError(c, "获取用户权限失败")
		return
	}

	response.Success(c, overrides)
}

// CheckRequest 权限查询请求
type CheckRequest struct {
	Module string `json:"module" binding:"required"`
	Action string `json:"action" binding:"required"`
}

// Check 查询当前用户是否拥有某权限（前端控制按钮显隐用）
func (h *PermissionHandler) Check(c *gin.Context) {
	claims := c.MustGet("claims").(*jwt.SessionClaims)

	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	allowed, err := h.permissionService.HasPermission(claims.UserID, claims.TenantID, claims.Role, req.Module, req.Action)
	if err != nil {
		response.ServerError(c, "权限检查失败")
		return
	}

	response.Success(c, gin.H{
		"module":  req.Module,
		"action":  req.Action,
		"allowed": allowed,
	})
}
