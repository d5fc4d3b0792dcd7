package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/dto"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/events"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/identity"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/model"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/notify"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/repository"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/credential"
)

// IdentityService 身份目录凭据操作
type IdentityService interface {
	// ResetPassword 设置新的临时密码并返回给管理员，不发送邮件
	ResetPassword(ctx context.Context, email string) (*dto.ResetPasswordResponse, error)
	// ResendVerification 为尚未完成首次登录的账号重新签发临时密码并发送邀请邮件
	ResendVerification(ctx context.Context, email string) (*dto.ResendVerificationResponse, error)
}

// NewIdentityService 创建 IdentityService 实例
func NewIdentityService(repo *repository.Repository, c Collaborators, opts ProvisioningOptions, logger *zap.Logger) IdentityService {
	return newOrchestrator(repo, c, opts, logger)
}

func (s *orchestrator) ResetPassword(ctx context.Context, email string) (*dto.ResetPasswordResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.checkEmail(email); err != nil {
		return nil, err
	}
	if s.directory == nil {
		return nil, ErrDirectoryNotAttached
	}

	if _, err := s.directory.GetUser(ctx, email); err != nil {
		s.logger.Warn("重置密码时查询目录用户失败", zap.String("email", email), zap.Error(err))
		return nil, directoryError(err)
	}

	tempPassword, err := credential.Generate()
	if err != nil {
		return nil, err
	}
	if err := s.directory.SetTemporaryPassword(ctx, email, tempPassword); err != nil {
		s.logger.Warn("设置临时密码失败", zap.String("email", email), zap.Error(err))
		return nil, directoryError(err)
	}

	s.logger.Info("临时密码已重置", zap.String("email", email))
	s.publishPasswordReset(ctx, email, "reset")

	return &dto.ResetPasswordResponse{
		Email:             email,
		TemporaryPassword: tempPassword,
	}, nil
}

func (s *orchestrator) ResendVerification(ctx context.Context, email string) (*dto.ResendVerificationResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.checkEmail(email); err != nil {
		return nil, err
	}
	if s.directory == nil {
		return nil, ErrDirectoryNotAttached
	}
	if s.mailer == nil {
		return nil, ErrMailDisabled
	}

	du, err := s.directory.GetUser(ctx, email)
	if err != nil {
		return nil, directoryError(err)
	}
	if du.Status != identity.StatusForceChangePassword {
		return nil, ErrAlreadyVerified
	}

	// 优先使用业务记录中的姓名与部门角色
	user := &model.SystemUser{Name: du.Name, Email: email}
	if rec, err := s.repo.SystemUser.GetByEmail(ctx, email); err == nil {
		user = rec
	} else if !isNotFound(err) {
		s.logger.Warn("查询业务记录失败，使用目录信息发送邮件", zap.String("email", email), zap.Error(err))
	}

	tempPassword, err := credential.Generate()
	if err != nil {
		return nil, err
	}
	if err := s.directory.SetTemporaryPassword(ctx, email, tempPassword); err != nil {
		return nil, directoryError(err)
	}

	msg, err := notify.WelcomeEmail(email, welcomeData(user, tempPassword, s.opts.LoginURL, true))
	if err != nil {
		return nil, ErrVerificationNotSent.Wrap(err)
	}
	messageID, err := s.mailer.Send(ctx, msg)
	if err != nil {
		s.logger.Warn("重发验证邮件失败", zap.String("email", email), zap.Error(err))
		return nil, ErrVerificationNotSent.Wrap(err)
	}

	s.logger.Info("验证邮件已重发", zap.String("email", email), zap.String("message_id", messageID))
	s.publishPasswordReset(ctx, email, "resend_verification")

	return &dto.ResendVerificationResponse{Email: email, MessageID: messageID}, nil
}

func (s *orchestrator) publishPasswordReset(ctx context.Context, email, reason string) {
	user := &model.SystemUser{Email: email}
	if rec, err := s.repo.SystemUser.GetByEmail(ctx, email); err == nil {
		user = rec
	}
	s.publish(ctx, events.TypePasswordReset, user, map[string]string{"reason": reason})
}
