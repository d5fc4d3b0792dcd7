package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口（业务记录存储）
type Repository struct {
	db         *gorm.DB
	Department DepartmentRepository
	Role       RoleRepository
	SystemUser SystemUserRepository
	Intent     IntentRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:         db,
		Department: NewDepartmentRepo(db),
		Role:       NewRoleRepo(db),
		SystemUser: NewSystemUserRepo(db),
		Intent:     NewIntentRepo(db),
	}
}

// BeginTx 开启事务
func (r *Repository) BeginTx(ctx context.Context) (*gorm.DB, error) {
	tx := r.db.WithContext(ctx).Begin()
	return tx, tx.Error
}

// WithTx 返回绑定到指定事务连接的 Repository 副本
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return NewRepository(tx)
}
