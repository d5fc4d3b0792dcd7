// Package apperr 定义业务错误的封闭分类。
//
// Service 层以 *Error 作为哨兵值（errors.Is 按指针比较），
// Handler 层按 Kind 决定 HTTP 状态码，按哨兵决定业务码与文案。
package apperr

import (
	"errors"
	"fmt"
)

// Kind 错误类别
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindDuplicate
	KindNotFound
	KindConflict
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDuplicate:
		return "duplicate"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error 带类别的业务错误
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New 创建哨兵错误
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap 以哨兵为模板包装底层错误，errors.Is(wrapped, sentinel) 仍成立
func (e *Error) Wrap(err error) error {
	return &wrapped{err: &Error{Kind: e.Kind, Message: e.Message, Err: err}, sentinel: e}
}

type wrapped struct {
	err      *Error
	sentinel *Error
}

func (w *wrapped) Error() string { return w.err.Error() }

func (w *wrapped) Unwrap() error { return w.err.Err }

func (w *wrapped) Is(target error) bool { return target == w.sentinel }

func (w *wrapped) As(target any) bool {
	if t, ok := target.(**Error); ok {
		*t = w.err
		return true
	}
	return false
}

// Upstream 包装基础设施失败，保留原始信息
func Upstream(message string, err error) error {
	return &Error{Kind: KindUpstream, Message: message, Err: err}
}

// Validation 构造一次性的校验错误
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// KindOf 返回错误链上第一个 *Error 的类别，非业务错误视为 Internal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf 返回面向用户的文案；非业务错误返回 fallback
func MessageOf(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}
