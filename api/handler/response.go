package handler

import (
	"net/http"

	"github.com/vspimagectl/vspimagectl/internal/software"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SuccessResponse 成功响应
type SuccessResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// statusFor 错误分类到 HTTP 状态码
func statusFor(kind software.ErrorKind) int {
	switch kind {
	case "":
		return http.StatusOK
	case software.KindInvalidRequest:
		return http.StatusBadRequest
	case software.KindDeviceBusy:
		return http.StatusConflict
	case software.KindUnknownImage, software.KindFileNotFound, software.KindProtectedImage:
		return http.StatusUnprocessableEntity
	}
	// 连接、会话、输出解析与结果校验失败都归为设备侧错误
	return http.StatusBadGateway
}
