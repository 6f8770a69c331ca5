package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthHandler 健康检查
type HealthHandler struct {
	started time.Time
	// checks 名称到检查函数，返回错误表示不健康
	checks map[string]func() error
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(checks map[string]func() error) *HealthHandler {
	return &HealthHandler{started: time.Now(), checks: checks}
}

// Health 汇总各项检查
func (h *HealthHandler) Health(c *gin.Context) {
	status := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	data := gin.H{
		"checks": status,
		"uptime": time.Since(h.started).Round(time.Second).String(),
	}
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, SuccessResponse{Code: "SERVICE_UNAVAILABLE", Message: "服务异常", Data: data})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "服务正常", Data: data})
}
