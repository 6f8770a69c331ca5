package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vspimagectl/vspimagectl/internal/service"
	"github.com/vspimagectl/vspimagectl/internal/software"
	"github.com/vspimagectl/vspimagectl/pkg/logger"
)

// SoftwareService 处理器依赖的服务接口
type SoftwareService interface {
	Run(ctx context.Context, req service.LifecycleRequest) (*service.LifecycleResponse, error)
	Inventory(ctx context.Context, conn service.ConnectionRequest) (*service.LifecycleResponse, error)
	SaveConfig(ctx context.Context, conn service.ConnectionRequest) (*service.LifecycleResponse, error)
	Reboot(ctx context.Context, req service.RebootRequest) (*service.LifecycleResponse, error)
	GetTask(ctx context.Context, taskID string) (*service.TaskDetail, error)
}

// SoftwareHandler 镜像生命周期处理器
type SoftwareHandler struct {
	svc SoftwareService
}

// NewSoftwareHandler 创建处理器
func NewSoftwareHandler(svc SoftwareService) *SoftwareHandler {
	return &SoftwareHandler{svc: svc}
}

// Run 执行完整的镜像生命周期
// @Summary 删除、添加、激活镜像并按需重启
// @Tags software
// @Accept json
// @Produce json
// @Param request body service.LifecycleRequest true "生命周期请求"
// @Success 200 {object} service.LifecycleResponse
// @Failure 400 {object} ErrorResponse "请求参数错误"
// @Failure 409 {object} service.LifecycleResponse "设备正在处理其他请求"
// @Router /api/v1/software/lifecycle [post]
func (h *SoftwareHandler) Run(c *gin.Context) {
	var req service.LifecycleRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.svc.Run(c.Request.Context(), req)
	respond(c, resp, err)
}

// Inventory 查询镜像清单
// @Router /api/v1/software/inventory [post]
func (h *SoftwareHandler) Inventory(c *gin.Context) {
	var req service.ConnectionRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.svc.Inventory(c.Request.Context(), req)
	respond(c, resp, err)
}

// SaveConfig 保存运行配置
// @Router /api/v1/software/save-config [post]
func (h *SoftwareHandler) SaveConfig(c *gin.Context) {
	var req service.ConnectionRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.svc.SaveConfig(c.Request.Context(), req)
	respond(c, resp, err)
}

// Reboot 重启设备，可选等待恢复
// @Router /api/v1/software/reboot [post]
func (h *SoftwareHandler) Reboot(c *gin.Context) {
	var req service.RebootRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.svc.Reboot(c.Request.Context(), req)
	respond(c, resp, err)
}

// GetTask 查询任务详情
// @Router /api/v1/software/task/{task_id} [get]
func (h *SoftwareHandler) GetTask(c *gin.Context) {
	taskID := c.Param("task_id")
	detail, err := h.svc.GetTask(c.Request.Context(), taskID)
	if err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Code: "TASK_NOT_FOUND", Message: "任务不存在: " + taskID})
			return
		}
		logger.WithField("task_id", taskID).WithError(err).Error("get task failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "INTERNAL_ERROR", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "ok", Data: detail})
}

func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		logger.WithField("request_id", c.GetString("request_id")).WithError(err).Warn("invalid request parameters")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_PARAMS",
			Message: "请求参数无效: " + err.Error(),
		})
		return false
	}
	return true
}

// respond 始终返回 changed/failed/msg 结构，状态码按错误分类
func respond(c *gin.Context, resp *service.LifecycleResponse, err error) {
	if resp == nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "INTERNAL_ERROR", Message: "empty response"})
		return
	}
	if err == nil {
		c.JSON(http.StatusOK, resp)
		return
	}
	c.JSON(statusFor(software.KindOf(err)), resp)
}
