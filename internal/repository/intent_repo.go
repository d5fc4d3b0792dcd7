package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/model"
)

// IntentRepository 开通意图日志数据访问接口
type IntentRepository interface {
	Create(ctx context.Context, intent *model.ProvisioningIntent) error
	Update(ctx context.Context, intent *model.ProvisioningIntent) error
	// ListOpen 返回创建时间早于 before 且仍处于 pending/failed 的意图，
	// 失败次数少的优先，避免反复失败的意图占满批次
	ListOpen(ctx context.Context, before time.Time, limit int) ([]model.ProvisioningIntent, error)
}

type intentRepo struct {
	db *gorm.DB
}

// NewIntentRepo 创建 IntentRepository 实例
func NewIntentRepo(db *gorm.DB) IntentRepository {
	return &intentRepo{db: db}
}

func (r *intentRepo) Create(ctx context.Context, intent *model.ProvisioningIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *intentRepo) Update(ctx context.Context, intent *model.ProvisioningIntent) error {
	return r.db.WithContext(ctx).Save(intent).Error
}

func (r *intentRepo) ListOpen(ctx context.Context, before time.Time, limit int) ([]model.ProvisioningIntent, error) {
	var intents []model.ProvisioningIntent
	err := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", []string{model.IntentPending, model.IntentFailed}, before).
		Order("attempts ASC, created_at ASC").
		Limit(limit).
		Find(&intents).Error
	return intents, err
}
