package handlers

import (
	"crmnet/internal/services"
	"crmnet/pkg/jwt"
	"crmnet/pkg/pagination"
	"crmnet/pkg/response"

	"github.com/gin-gonic/gin"
)

type SecurityEventHandler struct {
	eventService *services.SecurityEventService
}

func NewSecurityEventHandler(eventService *services.SecurityEventService) *SecurityEventHandler {
	return &SecurityEventHandler{eventService: eventService}
}

// GetAll 分页查询当前租户的安全事件
func (h *SecurityEventHandler) GetAll(c *gin.Context) {
	claims := c.MustGet("claims").(*jwt.SessionClaims)
	params := pagination.ParsePageParams(c)
	event := c.Query("event")

	events, total, err := h.eventService.GetWithPage(claims.TenantID, event, params.Page, params.PageSize)
	if err != nil {
		response.ServerError(c, "获取安全事件失败")
		return
	}

	pageInfo := pagination.NewPageInfo(params.Page, params.PageSize, total)
	response.SuccessWithPage(c, events, pageInfo)
}
