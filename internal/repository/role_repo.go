package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/model"
)

// RoleRepository 角色数据访问接口
type RoleRepository interface {
	Create(ctx context.Context, role *model.Role) error
	GetByID(ctx context.Context, id string) (*model.Role, error)
	List(ctx context.Context) ([]model.Role, error)
	ListByDepartment(ctx context.Context, departmentID string) ([]model.Role, error)
	Update(ctx context.Context, role *model.Role) error
	Delete(ctx context.Context, id string) error
	CountUsers(ctx context.Context, roleID string) (int64, error)
}

type roleRepo struct {
	db *gorm.DB
}

// NewRoleRepo 创建 RoleRepository 实例
func NewRoleRepo(db *gorm.DB) RoleRepository {
	return &roleRepo{db: db}
}

func (r *roleRepo) Create(ctx context.Context, role *model.Role) error {
	return r.db.WithContext(ctx).Create(role).Error
}

func (r *roleRepo) GetByID(ctx context.Context, id string) (*model.Role, error) {
	var role model.Role
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&role).Error
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepo) List(ctx context.Context) ([]model.Role, error) {
	var roles []model.Role
	err := r.db.WithContext(ctx).
		Order("name ASC").
		Find(&roles).Error
	return roles, err
}

func (r *roleRepo) ListByDepartment(ctx context.Context, departmentID string) ([]model.Role, error) {
	var roles []model.Role
	err := r.db.WithContext(ctx).
		Where("department_id = ?", departmentID).
		Order("name ASC").
		Find(&roles).Error
	return roles, err
}

func (r *roleRepo) Update(ctx context.Context, role *model.Role) error {
	return r.db.WithContext(ctx).Save(role).Error
}

func (r *roleRepo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Role{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *roleRepo) CountUsers(ctx context.Context, roleID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.SystemUser{}).
		Where("role_id = ?", roleID).
		Count(&count).Error
	return count, err
}
