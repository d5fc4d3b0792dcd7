package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/model"
)

// SystemUserListFilters 系统用户列表过滤条件（空值表示不过滤）
type SystemUserListFilters struct {
	DepartmentID    string
	RoleID          string
	Status          string
	DashboardAccess string
	Keyword         string
}

// SystemUserStats 系统用户统计
type SystemUserStats struct {
	Total     int64
	Active    int64
	Inactive  int64
	Allowed   int64
	Blocked   int64
	LockedOut int64
}

// SystemUserRepository 系统用户数据访问接口
type SystemUserRepository interface {
	Create(ctx context.Context, user *model.SystemUser) error
	GetByID(ctx context.Context, id string) (*model.SystemUser, error)
	GetByEmployeeID(ctx context.Context, employeeID string) (*model.SystemUser, error)
	GetByEmail(ctx context.Context, email string) (*model.SystemUser, error)
	Update(ctx context.Context, user *model.SystemUser) error
	Delete(ctx context.Context, id string) error
	ListWithFilters(ctx context.Context, filters *SystemUserListFilters, offset, limit int) ([]model.SystemUser, int64, error)
	ListActive(ctx context.Context) ([]model.SystemUser, error)
	ListAll(ctx context.Context) ([]model.SystemUser, error)
	Stats(ctx context.Context) (*SystemUserStats, error)
}

// systemUserRepo SystemUserRepository 的 GORM 实现
type systemUserRepo struct {
	db *gorm.DB
}

// NewSystemUserRepo 创建 SystemUserRepository 实例
func NewSystemUserRepo(db *gorm.DB) SystemUserRepository {
	return &systemUserRepo{db: db}
}

// withRefs 预加载富化投影所需的部门、角色与直属上级
func withRefs(db *gorm.DB) *gorm.DB {
	return db.Preload("Department").Preload("Role").Preload("LineManager")
}

func (r *systemUserRepo) Create(ctx context.Context, user *model.SystemUser) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(user).Error
}

func (r *systemUserRepo) GetByID(ctx context.Context, id string) (*model.SystemUser, error) {
	var user model.SystemUser
	err := withRefs(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *systemUserRepo) GetByEmployeeID(ctx context.Context, employeeID string) (*model.SystemUser, error) {
	var user model.SystemUser
	err := withRefs(r.db.WithContext(ctx)).
		Where("employee_id = ?", employeeID).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *systemUserRepo) GetByEmail(ctx context.Context, email string) (*model.SystemUser, error) {
	var user model.SystemUser
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(email)).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *systemUserRepo) Update(ctx context.Context, user *model.SystemUser) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(user).Error
}

func (r *systemUserRepo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.SystemUser{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *systemUserRepo) ListWithFilters(ctx context.Context, filters *SystemUserListFilters, offset, limit int) ([]model.SystemUser, int64, error) {
	var users []model.SystemUser
	var total int64

	db := r.db.WithContext(ctx).Model(&model.SystemUser{})

	if filters != nil {
		if filters.DepartmentID != "" {
			db = db.Where("department_id = ?", filters.DepartmentID)
		}
		if filters.RoleID != "" {
			db = db.Where("role_id = ?", filters.RoleID)
		}
		if filters.Status != "" {
			db = db.Where("status = ?", filters.Status)
		}
		if filters.DashboardAccess != "" {
			db = db.Where("dashboard_access = ?", filters.DashboardAccess)
		}
		if filters.Keyword != "" {
			like := containsPattern(filters.Keyword)
			db = db.Where(`(employee_id ILIKE ? ESCAPE '\' OR name ILIKE ? ESCAPE '\' OR email ILIKE ? ESCAPE '\' OR mobile ILIKE ? ESCAPE '\')`,
				like, like, like, like)
		}
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := withRefs(db).
		Offset(offset).Limit(limit).
		Order("created_date DESC").
		Find(&users).Error; err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

func (r *systemUserRepo) ListActive(ctx context.Context) ([]model.SystemUser, error) {
	var users []model.SystemUser
	err := withRefs(r.db.WithContext(ctx)).
		Where("status = ?", model.StatusActive).
		Order("name ASC").
		Find(&users).Error
	return users, err
}

func (r *systemUserRepo) ListAll(ctx context.Context) ([]model.SystemUser, error) {
	var users []model.SystemUser
	err := withRefs(r.db.WithContext(ctx)).
		Order("employee_id ASC").
		Find(&users).Error
	return users, err
}

func (r *systemUserRepo) Stats(ctx context.Context) (*SystemUserStats, error) {
	var stats SystemUserStats
	err := r.db.WithContext(ctx).
		Model(&model.SystemUser{}).
		Select(`COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = ?) AS active,
			COUNT(*) FILTER (WHERE status = ?) AS inactive,
			COUNT(*) FILTER (WHERE dashboard_access = ?) AS allowed,
			COUNT(*) FILTER (WHERE dashboard_access = ?) AS blocked,
			COUNT(*) FILTER (WHERE failed_login_attempts >= ?) AS locked_out`,
			model.StatusActive, model.StatusInactive,
			model.AccessAllowed, model.AccessBlocked,
			model.LockoutThreshold).
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern 关键字转为子串匹配的 LIKE 模式，通配符按字面匹配
func containsPattern(keyword string) string {
	return "%" + likeEscaper.Replace(keyword) + "%"
}
