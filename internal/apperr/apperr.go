// Package apperr 定义了对外暴露的错误分类体系。
// 每个错误都携带一个稳定的、机器可读的 Kind，以及一条面向人的消息；
// 内部错误（provider 响应体、堆栈等）只通过 Unwrap 链保留，不跨边界泄露。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 是错误的机器可读分类。
type Kind string

const (
	KindValidation       Kind = "validation"        // 输入非法或缺失，调用前即被拒绝
	KindAuthorization    Kind = "authorization"     // 会话/租户归属不匹配
	KindNotFound         Kind = "not_found"         // 未知的会话、视频或消息
	KindProvider         Kind = "provider"          // 重试耗尽后的 embedding/生成服务故障
	KindRateLimited      Kind = "rate_limited"      // 外部限流器透传
	KindPartialIngestion Kind = "partial_ingestion" // 部分向量化成功，按整体失败处理
	KindNoContext        Kind = "no_context"        // 检索无任何结果越过相似度阈值
)

// Error 是带分类的应用错误。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New 创建一个指定分类的错误。
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap 包装一个底层错误并赋予分类。
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func Validationf(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

func Authorizationf(format string, args ...interface{}) *Error {
	return New(KindAuthorization, format, args...)
}

func NotFoundf(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func Providerf(err error, format string, args ...interface{}) *Error {
	return Wrap(KindProvider, err, format, args...)
}

func PartialIngestionf(err error, format string, args ...interface{}) *Error {
	return Wrap(KindPartialIngestion, err, format, args...)
}

// NoContext 表示检索没有命中任何越过阈值的分块。
// 这是一个显式信号而不是空结果，上层据此返回“没有相关信息”的回答。
func NoContext() *Error {
	return New(KindNoContext, "no retrieved chunk cleared the similarity threshold")
}

// KindOf 返回错误的分类；非 *Error 一律视为 provider 故障。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindProvider
}

// IsKind 判断错误是否属于给定分类。
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus 将错误分类映射为 HTTP 状态码，供 handler 层统一使用。
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindPartialIngestion, KindProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
