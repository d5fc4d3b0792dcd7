package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/dto"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/events"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/model"
)

// ────────────────────── 启用 / 停用 ──────────────────────

func (s *orchestrator) SetActive(ctx context.Context, id string, active bool) (*dto.SystemUserResponse, error) {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.applyActive(ctx, user, active)
}

func (s *orchestrator) ToggleStatus(ctx context.Context, id string) (*dto.SystemUserResponse, error) {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.applyActive(ctx, user, !user.IsActive())
}

// applyActive 停用时强制阻止访问并记录原访问权限，启用时恢复
func (s *orchestrator) applyActive(ctx context.Context, user *model.SystemUser, active bool) (*dto.SystemUserResponse, error) {
	if user.IsActive() == active {
		return toSystemUserResponse(user), nil
	}

	if active {
		user.Status = model.StatusActive
		user.DashboardAccess = model.AccessAllowed
		if user.AccessBeforeDeactivation != nil {
			user.DashboardAccess = *user.AccessBeforeDeactivation
		}
		user.AccessBeforeDeactivation = nil
	} else {
		previous := user.DashboardAccess
		user.Status = model.StatusInactive
		user.AccessBeforeDeactivation = &previous
		user.DashboardAccess = model.AccessBlocked
	}

	if err := s.repo.SystemUser.Update(ctx, user); err != nil {
		s.logger.Error("更新用户状态失败", zap.String("id", user.ID), zap.Error(err))
		return nil, storeError(err)
	}

	s.logger.Info("用户状态已变更",
		zap.String("id", user.ID),
		zap.String("status", user.Status),
		zap.String("dashboard_access", user.DashboardAccess),
	)
	s.publish(ctx, events.TypeUserStatusChanged, user, map[string]string{
		"status":           user.Status,
		"dashboard_access": user.DashboardAccess,
	})
	return toSystemUserResponse(user), nil
}

// ────────────────────── 控制台访问 ──────────────────────

func (s *orchestrator) SetBlocked(ctx context.Context, id string, blocked bool) (*dto.SystemUserResponse, error) {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.applyBlocked(ctx, user, blocked)
}

func (s *orchestrator) ToggleBlocked(ctx context.Context, id string) (*dto.SystemUserResponse, error) {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.applyBlocked(ctx, user, !user.IsBlocked())
}

// applyBlocked 停用用户只能被阻止，阻止结果写入待恢复的访问权限；解除阻止时清零失败次数
func (s *orchestrator) applyBlocked(ctx context.Context, user *model.SystemUser, blocked bool) (*dto.SystemUserResponse, error) {
	if !user.IsActive() {
		if !blocked {
			return nil, ErrInactiveAccessChange
		}
		access := model.AccessBlocked
		user.AccessBeforeDeactivation = &access
	} else if blocked {
		user.DashboardAccess = model.AccessBlocked
	} else {
		user.DashboardAccess = model.AccessAllowed
		user.FailedLoginAttempts = 0
	}

	if err := s.repo.SystemUser.Update(ctx, user); err != nil {
		s.logger.Error("更新控制台访问失败", zap.String("id", user.ID), zap.Error(err))
		return nil, storeError(err)
	}

	s.logger.Info("控制台访问已变更",
		zap.String("id", user.ID),
		zap.Bool("blocked", blocked),
	)
	s.publish(ctx, events.TypeUserAccessChanged, user, map[string]string{
		"dashboard_access": user.DashboardAccess,
	})
	return toSystemUserResponse(user), nil
}
