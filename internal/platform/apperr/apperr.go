package apperr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误分类。业务代码用 New/Wrap 把具体错误归入其中之一，
// HTTP层通过 errors.Is 把分类映射为状态码。
var (
	ErrUnauthenticated = errors.New("未识别的用户")
	ErrForbidden       = errors.New("没有权限执行该操作")
	ErrNotFound        = errors.New("资源不存在")
	ErrInvalid         = errors.New("请求参数无效")
	ErrConflict        = errors.New("资源状态冲突")
	ErrRateLimited     = errors.New("请求过于频繁，请稍后再试")
	ErrUnavailable     = errors.New("依赖服务暂时不可用")
)

// Error 携带一个分类、一条面向用户的消息和可选的底层原因。
type Error struct {
	kind  error
	msg   string
	cause error
}

// New 创建一个属于 kind 分类的错误。
func New(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Wrap 创建一个属于 kind 分类、并保留底层原因的错误。
func Wrap(kind error, msg string, cause error) *Error {
	return &Error{kind: kind, msg: msg, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

// Message 返回可以直接展示给用户的消息，不包含底层原因。
func (e *Error) Message() string {
	return e.msg
}

func (e *Error) Is(target error) bool {
	return target == e.kind
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Status 把错误映射为HTTP状态码。
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Respond 把错误写成 {"error": "..."} 的JSON响应并中止处理链。
// 未分类的错误只返回通用消息，细节记录在 gin 的错误列表中。
func Respond(c *gin.Context, err error) {
	status := Status(err)
	_ = c.Error(err)

	msg := "服务器内部错误"
	var appErr *Error
	switch {
	case errors.As(err, &appErr):
		msg = appErr.Message()
	case status != http.StatusInternalServerError:
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
