// Package errors 提供统一的错误处理框架
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code 错误码
type Code string

const (
	// 通用错误码
	CodeUnknown       Code = "UNKNOWN"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
	CodeTimeout       Code = "TIMEOUT"
	CodeCancelled     Code = "CANCELLED"

	// 排产引擎相关
	CodeCapacityConflict       Code = "CAPACITY_CONFLICT"
	CodeSchedulingInfeasible   Code = "SCHEDULING_INFEASIBLE"
	CodePrecedenceViolation    Code = "PRECEDENCE_VIOLATION"
	CodeFrozenHorizonViolation Code = "FROZEN_HORIZON_VIOLATION"
	CodeNoCapableResource      Code = "NO_CAPABLE_RESOURCE"

	// 承诺/场景相关
	CodePromiseNotFound   Code = "PROMISE_NOT_FOUND"
	CodeScenarioImmutable Code = "SCENARIO_IMMUTABLE"

	// 数据相关
	CodeDatabaseError  Code = "DATABASE_ERROR"
	CodeValidationFail Code = "VALIDATION_FAILED"
)

// AppError 应用错误
type AppError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Cause      error                  `json:"-"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 添加原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithField 添加字段
func (e *AppError) WithField(key string, value interface{}) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// New 创建新错误
func New(code Code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Newf 创建带格式化消息的错误
func Newf(code Code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装错误
func Wrap(err error, code Code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

// codeToHTTPStatus 错误码转HTTP状态码
func codeToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeValidationFail, CodePrecedenceViolation:
		return http.StatusBadRequest
	case CodeNotFound, CodePromiseNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists, CodeCapacityConflict, CodeFrozenHorizonViolation, CodeScenarioImmutable:
		return http.StatusConflict
	case CodeSchedulingInfeasible, CodeNoCapableResource:
		return http.StatusUnprocessableEntity
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// IsCode 检查错误是否为指定错误码
func IsCode(err error, code Code) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// HTTPStatus 返回错误对应的HTTP状态码
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// 排产引擎常用错误构造函数

// ErrCapacityConflict 产能冲突错误
func ErrCapacityConflict(resourceID string) *AppError {
	return New(CodeCapacityConflict, "请求的时间段与现有预约重叠").
		WithField("resource_id", resourceID)
}

// ErrPrecedenceViolation 工序顺序违反错误
func ErrPrecedenceViolation(workOrderID, operationID string) *AppError {
	return New(CodePrecedenceViolation, "工序不能先于前道工序完成时间开始").
		WithField("work_order", workOrderID).
		WithField("operation", operationID)
}

// ErrFrozenHorizonViolation 冻结期违反错误
func ErrFrozenHorizonViolation(operationID string) *AppError {
	return New(CodeFrozenHorizonViolation, "冻结期内的工序不允许移动").
		WithField("operation", operationID)
}
