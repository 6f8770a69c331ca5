package software

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind 错误分类
type ErrorKind string

const (
	KindConnectFailure        ErrorKind = "connect_failure"
	KindSessionFailure        ErrorKind = "session_failure"
	KindParseFailure          ErrorKind = "parse_failure"
	KindUnknownImage          ErrorKind = "unknown_image"
	KindFileNotFound          ErrorKind = "file_not_found"
	KindProtectedImage        ErrorKind = "protected_image"
	KindPostconditionMismatch ErrorKind = "postcondition_mismatch"
	KindReconnectExhausted    ErrorKind = "reconnect_exhausted"
	KindUnexpectedOutput      ErrorKind = "unexpected_output"
	KindDeviceBusy            ErrorKind = "device_busy"
	KindInvalidRequest        ErrorKind = "invalid_request"
)

// ParseFailure 的细分原因
const (
	ReasonFormatChanged      = "format_changed"
	ReasonUnexpectedResponse = "unexpected_response"
	ReasonIncompatibleImage  = "incompatible_image"
)

// OpError 操作错误：所有致命条件都以该类型上报
type OpError struct {
	Op     string
	Kind   ErrorKind
	Reason string
	Detail string
	Err    error
}

func (e *OpError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Reason != "" {
		b.WriteString("(" + e.Reason + ")")
	}
	if e.Detail != "" {
		b.WriteString(": " + e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *OpError) Unwrap() error { return e.Err }

// Is 按 Kind 匹配；目标带 Reason 时还需 Reason 一致
func (e *OpError) Is(target error) bool {
	t, ok := target.(*OpError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// 哨兵错误，用于 errors.Is 判断
var (
	ErrConnectFailure        = &OpError{Kind: KindConnectFailure}
	ErrSessionFailure        = &OpError{Kind: KindSessionFailure}
	ErrParseFailure          = &OpError{Kind: KindParseFailure}
	ErrFormatChanged         = &OpError{Kind: KindParseFailure, Reason: ReasonFormatChanged}
	ErrUnexpectedResponse    = &OpError{Kind: KindParseFailure, Reason: ReasonUnexpectedResponse}
	ErrIncompatibleImage     = &OpError{Kind: KindParseFailure, Reason: ReasonIncompatibleImage}
	ErrUnknownImage          = &OpError{Kind: KindUnknownImage}
	ErrFileNotFound          = &OpError{Kind: KindFileNotFound}
	ErrProtectedImage        = &OpError{Kind: KindProtectedImage}
	ErrPostconditionMismatch = &OpError{Kind: KindPostconditionMismatch}
	ErrReconnectExhausted    = &OpError{Kind: KindReconnectExhausted}
	ErrUnexpectedOutput      = &OpError{Kind: KindUnexpectedOutput}
	ErrDeviceBusy            = &OpError{Kind: KindDeviceBusy}
	ErrInvalidRequest        = &OpError{Kind: KindInvalidRequest}
)

func parseFailure(reason, format string, args ...interface{}) *OpError {
	return &OpError{Kind: KindParseFailure, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// withOp 为错误补充操作名（不覆盖已有值）
func withOp(op string, err error) error {
	if oe, ok := err.(*OpError); ok && oe.Op == "" {
		cp := *oe
		cp.Op = op
		return &cp
	}
	return err
}

// KindOf 提取错误分类；非 OpError 返回空
func KindOf(err error) ErrorKind {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return ""
}
