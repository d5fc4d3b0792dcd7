package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/dto"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/identity"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/model"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/repository"
)

// ProvisioningService 开通意图对账
type ProvisioningService interface {
	// Reconcile 处理超过宽限期仍未完成的意图；重复执行结果一致
	Reconcile(ctx context.Context) (*dto.ReconcileResponse, error)
	// Run 按固定间隔执行对账，直到 ctx 取消
	Run(ctx context.Context, interval time.Duration)
}

// NewProvisioningService 创建 ProvisioningService 实例
func NewProvisioningService(repo *repository.Repository, c Collaborators, opts ProvisioningOptions, logger *zap.Logger) ProvisioningService {
	return newOrchestrator(repo, c, opts, logger)
}

func (s *orchestrator) Reconcile(ctx context.Context) (*dto.ReconcileResponse, error) {
	before := s.now().Add(-s.opts.ReconcileGrace)
	intents, err := s.repo.Intent.ListOpen(ctx, before, s.opts.ReconcileBatch)
	if err != nil {
		s.logger.Error("查询未完成意图失败", zap.Error(err))
		return nil, storeError(err)
	}

	result := &dto.ReconcileResponse{Scanned: len(intents)}
	for i := range intents {
		intent := &intents[i]
		var err error
		switch intent.Operation {
		case model.IntentCreate:
			err = s.reconcileCreate(ctx, intent, result)
		case model.IntentDelete:
			err = s.reconcileDelete(ctx, intent, result)
		default:
			s.logger.Warn("未知的意图类型", zap.String("intent_id", intent.ID), zap.String("operation", intent.Operation))
			continue
		}
		switch {
		case err == nil:
		case errors.Is(err, ErrCreateInProgress):
			// 同邮箱操作进行中，留给下一轮
			result.Skipped++
			s.logger.Info("意图被并发操作占用，跳过", zap.String("intent_id", intent.ID), zap.String("email", intent.Email))
		default:
			result.Failed++
			intent.Attempts++
			intent.LastError = err.Error()
			s.saveIntent(ctx, intent)
			s.logger.Warn("意图对账失败",
				zap.String("intent_id", intent.ID),
				zap.String("operation", intent.Operation),
				zap.Int("attempts", intent.Attempts),
				zap.Error(err),
			)
		}
	}

	if result.Scanned > 0 {
		s.logger.Info("对账完成",
			zap.Int("scanned", result.Scanned),
			zap.Int("orphans_removed", result.OrphansRemoved),
			zap.Int("marked_completed", result.MarkedCompleted),
			zap.Int("deletes_retried", result.DeletesRetried),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}

// reconcileCreate 记录已存在则补记完成；否则删除本次写入的孤立身份
// 持有与 Create 相同的邮箱锁，记录在锁内重新读取
func (s *orchestrator) reconcileCreate(ctx context.Context, intent *model.ProvisioningIntent, result *dto.ReconcileResponse) error {
	release, err := s.lockKeys(ctx, "system-user:email:"+intent.Email)
	if err != nil {
		return err
	}
	defer release()

	rec, err := s.repo.SystemUser.GetByEmail(ctx, intent.Email)
	switch {
	case err == nil:
		// 同邮箱已有记录：目录身份属于该记录，不能删除
		if rec.EmployeeID == intent.EmployeeID {
			intent.UserID = &rec.ID
			intent.RecordDone = true
			intent.Status = model.IntentCompleted
			result.MarkedCompleted++
		} else {
			intent.Status = model.IntentReconciled
		}
		return s.closeIntent(ctx, intent)
	case !isNotFound(err):
		return err
	}

	if s.directory == nil {
		if intent.IdentityDone {
			// 无管理员会话，保留意图等待下次对账
			return ErrDirectoryNotAttached
		}
		intent.Status = model.IntentReconciled
		return s.closeIntent(ctx, intent)
	}

	if !intent.IdentityDone {
		owned, err := s.ownsIdentity(ctx, intent)
		if err != nil {
			return err
		}
		if !owned {
			intent.Status = model.IntentReconciled
			return s.closeIntent(ctx, intent)
		}
	}

	if err := s.directory.DeleteUser(ctx, intent.Email); err != nil {
		if !identity.IsNotFound(err) {
			return err
		}
	} else {
		result.OrphansRemoved++
		s.logger.Info("已删除孤立目录身份", zap.String("intent_id", intent.ID), zap.String("email", intent.Email))
	}

	intent.IdentityDone = false
	intent.Status = model.IntentReconciled
	return s.closeIntent(ctx, intent)
}

// ownsIdentity 未标记 IdentityDone 时目录写入结果不明：
// 仅当目录身份创建时间不早于意图时才视为本次写入，其余一律保留
func (s *orchestrator) ownsIdentity(ctx context.Context, intent *model.ProvisioningIntent) (bool, error) {
	du, err := s.directory.GetUser(ctx, intent.Email)
	if err != nil {
		if identity.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if du.CreatedAt.IsZero() || du.CreatedAt.Before(intent.CreatedAt) {
		s.logger.Warn("目录身份早于意图，保留",
			zap.String("intent_id", intent.ID),
			zap.String("email", intent.Email),
			zap.Time("identity_created_at", du.CreatedAt),
		)
		return false, nil
	}
	return true, nil
}

// reconcileDelete 重试未完成的目录删除与记录删除
func (s *orchestrator) reconcileDelete(ctx context.Context, intent *model.ProvisioningIntent, result *dto.ReconcileResponse) error {
	release, err := s.lockKeys(ctx, "system-user:email:"+intent.Email)
	if err != nil {
		return err
	}
	defer release()

	if !intent.IdentityDone {
		if s.directory == nil {
			return ErrDirectoryNotAttached
		}
		if err := s.directory.DeleteUser(ctx, intent.Email); err != nil && !identity.IsNotFound(err) {
			return err
		}
		intent.IdentityDone = true
		result.DeletesRetried++
	}

	if !intent.RecordDone && intent.UserID != nil {
		if err := s.repo.SystemUser.Delete(ctx, *intent.UserID); err != nil && !isNotFound(err) {
			return err
		}
		intent.RecordDone = true
	}

	intent.Status = model.IntentReconciled
	return s.closeIntent(ctx, intent)
}

func (s *orchestrator) closeIntent(ctx context.Context, intent *model.ProvisioningIntent) error {
	intent.LastError = ""
	return s.repo.Intent.Update(ctx, intent)
}

func (s *orchestrator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("后台对账已启动", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("后台对账已停止")
			return
		case <-ticker.C:
			if _, err := s.Reconcile(ctx); err != nil {
				s.logger.Warn("后台对账失败", zap.Error(err))
			}
		}
	}
}
