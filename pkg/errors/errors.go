// Package errors 提供统一的错误定义
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeUnauthorized       ErrorCode = "1002"
	CodeForbidden          ErrorCode = "1003"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"

	// 认证授权错误 (2xxx)
	CodeTokenExpired     ErrorCode = "2001"
	CodeTokenInvalid     ErrorCode = "2002"
	CodeTokenMissing     ErrorCode = "2003"
	CodePermissionDenied ErrorCode = "2004"

	// 资源错误 (3xxx)
	CodeProjectNotFound     ErrorCode = "3001"
	CodeIncidentNotFound    ErrorCode = "3002"
	CodeRemediationNotFound ErrorCode = "3003"
	CodeRequestNotFound     ErrorCode = "3004"

	// 业务错误 (4xxx)
	CodeIncidentResolved    ErrorCode = "4001"
	CodeRemediationApplied  ErrorCode = "4002"
	CodeDuplicateIncident   ErrorCode = "4003"
	CodeInvalidActionType   ErrorCode = "4004"
	CodeInvalidActionParams ErrorCode = "4005"
	CodeEndpointDisabled    ErrorCode = "4006"

	// 外部服务错误 (5xxx)
	CodeDatabaseError ErrorCode = "5001"
	CodeCacheError    ErrorCode = "5002"
	CodeStreamError   ErrorCode = "5003"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail 添加详细信息
func (e *AppError) WithDetail(detail string) *AppError {
	e.Detail = detail
	return e
}

// WithError 添加底层错误
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// Validation 创建参数校验错误
func Validation(message string) *AppError {
	return New(CodeInvalidParam, message)
}

// NotFound 创建资源不存在错误
func NotFound(code ErrorCode, message string) *AppError {
	return New(code, message)
}

// Conflict 创建状态冲突错误
func Conflict(code ErrorCode, message string) *AppError {
	return New(code, message)
}

// Internal 创建内部错误
func Internal(err error, message string) *AppError {
	return Wrap(err, CodeInternalError, message)
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam, CodeInvalidActionType, CodeInvalidActionParams:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeTokenExpired, CodeTokenInvalid, CodeTokenMissing:
		return http.StatusUnauthorized
	case CodeForbidden, CodePermissionDenied:
		return http.StatusForbidden
	case CodeNotFound, CodeProjectNotFound, CodeIncidentNotFound, CodeRemediationNotFound, CodeRequestNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeIncidentResolved, CodeRemediationApplied, CodeDuplicateIncident:
		return http.StatusConflict
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeEndpointDisabled, CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsAppError 判断是否为应用错误
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError 转换为应用错误
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsCode 判断错误是否携带指定错误码
func IsCode(err error, code ErrorCode) bool {
	appErr := AsAppError(err)
	return appErr != nil && appErr.Code == code
}
