// Package events 发布系统用户生命周期事件。
package events

import (
	"context"
	"time"
)

// 事件类型
const (
	TypeUserCreated       = "system_user.created"
	TypeUserDeleted       = "system_user.deleted"
	TypeUserStatusChanged = "system_user.status_changed"
	TypeUserAccessChanged = "system_user.access_changed"
	TypePasswordReset     = "identity.password_reset"
)

// Event 生命周期事件
type Event struct {
	Type       string            `json:"type"`
	UserID     string            `json:"user_id,omitempty"`
	EmployeeID string            `json:"employee_id,omitempty"`
	Email      string            `json:"email"`
	OccurredAt time.Time         `json:"occurred_at"`
	Data       map[string]string `json:"data,omitempty"`
}

// Publisher 事件发布接口，发布失败不影响主流程
type Publisher interface {
	Publish(ctx context.Context, event Event)
	Close() error
}

// Nop 未配置消息队列时使用的空实现
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

func (Nop) Close() error { return nil }
