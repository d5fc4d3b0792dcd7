package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/config"
)

// SMTP 基于 gomail 的 Sender 实现
type SMTP struct {
	from     string
	fromName string
	dial     func() (gomail.SendCloser, error)
	logger   *zap.Logger
}

// NewSMTP 创建 SMTP 发送器
func NewSMTP(cfg *config.MailConfig, logger *zap.Logger) *SMTP {
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.Username, cfg.Password)
	dialer.TLSConfig = &tls.Config{
		ServerName: cfg.SMTPHost,
		MinVersion: tls.VersionTLS12,
	}

	logger.Info("邮件发送已配置",
		zap.String("smtp_host", cfg.SMTPHost),
		zap.Int("smtp_port", cfg.SMTPPort),
	)

	return &SMTP{
		from:     cfg.From,
		fromName: cfg.FromName,
		dial:     dialer.Dial,
		logger:   logger,
	}
}

func (s *SMTP) Send(ctx context.Context, email Email) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	msg := gomail.NewMessage(
		gomail.SetCharset("UTF-8"),
		gomail.SetEncoding(gomail.Base64),
	)

	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), domainOf(s.from))
	msg.SetHeader("Message-ID", messageID)
	msg.SetAddressHeader("From", s.from, s.fromName)
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", email.Subject)
	msg.SetBody("text/plain", email.Text)
	if email.HTML != "" {
		msg.AddAlternative("text/html", email.HTML)
	}

	sc, err := s.dial()
	if err != nil {
		return "", fmt.Errorf("连接 SMTP 服务器失败: %w", err)
	}
	defer sc.Close()

	if err := gomail.Send(sc, msg); err != nil {
		return "", fmt.Errorf("发送邮件失败: %w", err)
	}

	s.logger.Info("邮件已发送", zap.String("to", email.To), zap.String("message_id", messageID))
	return messageID, nil
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
