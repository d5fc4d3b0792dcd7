// Package notify 发送事务邮件（欢迎邮件、重发的登录凭证）。
package notify

import "context"

// Email 待发送的邮件
type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender 邮件发送接口，返回消息 ID
type Sender interface {
	Send(ctx context.Context, email Email) (string, error)
}
