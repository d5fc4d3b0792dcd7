// Package identity 封装身份目录（用户池）的管理员操作。
//
// 编排层只依赖 Directory 接口；目录返回的错误统一为 *Error，
// 通过 Kind 判断，不再解析底层 SDK 的错误字段。
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// 目录中的用户状态
const (
	StatusForceChangePassword = "FORCE_CHANGE_PASSWORD"
	StatusConfirmed           = "CONFIRMED"
)

// User 目录中的用户记录
type User struct {
	Username  string
	Email     string
	Name      string
	Status    string
	Enabled   bool
	CreatedAt time.Time
}

// CreateUserInput 创建目录用户参数，Email 同时作为用户名
type CreateUserInput struct {
	Email             string
	Name              string
	TemporaryPassword string
}

// Directory 身份目录管理员操作
type Directory interface {
	// CreateUser 创建用户，邮箱标记为已验证，并抑制目录自带的邀请邮件
	CreateUser(ctx context.Context, in CreateUserInput) (*User, error)
	DeleteUser(ctx context.Context, username string) error
	GetUser(ctx context.Context, username string) (*User, error)
	// SetTemporaryPassword 设置非永久密码，用户下次登录时必须修改
	SetTemporaryPassword(ctx context.Context, username, password string) error
}

// ── 错误 ──

// Kind 目录错误类别
type Kind int

const (
	KindUnknown Kind = iota
	KindUserNotFound
	KindUsernameExists
	KindInvalidParameter
	KindInvalidPassword
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindUserNotFound:
		return "user_not_found"
	case KindUsernameExists:
		return "username_exists"
	case KindInvalidParameter:
		return "invalid_parameter"
	case KindInvalidPassword:
		return "invalid_password"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error 目录操作错误
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("identity %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("identity %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf 返回错误链上的目录错误类别；非目录错误返回 KindUnknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsNotFound 目录中不存在该用户
func IsNotFound(err error) bool { return KindOf(err) == KindUserNotFound }

// IsUsernameExists 用户名（邮箱）已被注册
func IsUsernameExists(err error) bool { return KindOf(err) == KindUsernameExists }
