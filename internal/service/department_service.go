package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/dto"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/model"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/repository"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/apperr"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

// DepartmentService 部门业务接口
type DepartmentService interface {
	Create(ctx context.Context, req *dto.CreateDepartmentRequest) (*dto.DepartmentResponse, error)
	GetByID(ctx context.Context, id string) (*dto.DepartmentResponse, error)
	List(ctx context.Context) ([]dto.DepartmentResponse, error)
	// ListWithRoles 并发读取部门与角色后在本地关联
	ListWithRoles(ctx context.Context) ([]dto.DepartmentResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateDepartmentRequest) (*dto.DepartmentResponse, error)
	// Delete 部门下仍有用户时拒绝；否则在同一事务中删除其全部角色与部门
	Delete(ctx context.Context, id string) error
}

type departmentService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewDepartmentService 创建 DepartmentService 实例
func NewDepartmentService(repo *repository.Repository, logger *zap.Logger) DepartmentService {
	return &departmentService{repo: repo, logger: logger}
}

// ────────────────────── Create ──────────────────────

func (s *departmentService) Create(ctx context.Context, req *dto.CreateDepartmentRequest) (*dto.DepartmentResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("department name is required")
	}

	dept := &model.Department{
		Name:        name,
		Description: strings.TrimSpace(req.Description),
	}
	if err := s.repo.Department.Create(ctx, dept); err != nil {
		s.logger.Error("创建部门失败", zap.Error(err))
		return nil, storeError(err)
	}

	s.logger.Info("部门已创建", zap.String("id", dept.ID), zap.String("name", dept.Name))
	return toDepartmentResponse(dept, nil), nil
}

// ────────────────────── GetByID ──────────────────────

func (s *departmentService) GetByID(ctx context.Context, id string) (*dto.DepartmentResponse, error) {
	dept, err := s.getDepartment(ctx, id)
	if err != nil {
		return nil, err
	}

	roles, err := s.repo.Role.ListByDepartment(ctx, id)
	if err != nil {
		s.logger.Error("查询部门角色失败", zap.String("id", id), zap.Error(err))
		return nil, storeError(err)
	}

	return toDepartmentResponse(dept, roles), nil
}

// ────────────────────── List ──────────────────────

func (s *departmentService) List(ctx context.Context) ([]dto.DepartmentResponse, error) {
	depts, err := s.repo.Department.List(ctx)
	if err != nil {
		s.logger.Error("列出部门失败", zap.Error(err))
		return nil, storeError(err)
	}

	result := make([]dto.DepartmentResponse, 0, len(depts))
	for i := range depts {
		result = append(result, *toDepartmentResponse(&depts[i], nil))
	}
	return result, nil
}

func (s *departmentService) ListWithRoles(ctx context.Context) ([]dto.DepartmentResponse, error) {
	var (
		depts []model.Department
		roles []model.Role
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		depts, err = s.repo.Department.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		roles, err = s.repo.Role.List(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("读取部门与角色失败", zap.Error(err))
		return nil, storeError(err)
	}

	byDept := make(map[string][]model.Role, len(depts))
	for _, r := range roles {
		byDept[r.DepartmentID] = append(byDept[r.DepartmentID], r)
	}

	result := make([]dto.DepartmentResponse, 0, len(depts))
	for i := range depts {
		result = append(result, *toDepartmentResponse(&depts[i], byDept[depts[i].ID]))
	}
	return result, nil
}

// ────────────────────── Update ──────────────────────

func (s *departmentService) Update(ctx context.Context, id string, req *dto.UpdateDepartmentRequest) (*dto.DepartmentResponse, error) {
	dept, err := s.getDepartment(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperr.Validation("department name is required")
		}
		dept.Name = name
	}
	if req.Description != nil {
		dept.Description = strings.TrimSpace(*req.Description)
	}

	if err := s.repo.Department.Update(ctx, dept); err != nil {
		s.logger.Error("更新部门失败", zap.String("id", id), zap.Error(err))
		return nil, storeError(err)
	}

	return toDepartmentResponse(dept, nil), nil
}

// ────────────────────── Delete ──────────────────────

func (s *departmentService) Delete(ctx context.Context, id string) error {
	if _, err := s.getDepartment(ctx, id); err != nil {
		return err
	}

	count, err := s.repo.Department.CountUsers(ctx, id)
	if err != nil {
		s.logger.Error("查询部门用户数失败", zap.String("id", id), zap.Error(err))
		return storeError(err)
	}
	if count > 0 {
		return ErrDepartmentHasUsers
	}

	if err := s.repo.Department.DeleteWithRoles(ctx, id); err != nil {
		if isNotFound(err) {
			return ErrDepartmentNotFound
		}
		s.logger.Error("删除部门失败", zap.String("id", id), zap.Error(err))
		return storeError(err)
	}

	s.logger.Info("部门及其角色已删除", zap.String("id", id))
	return nil
}

// ── 内部辅助方法 ──

func (s *departmentService) getDepartment(ctx context.Context, id string) (*model.Department, error) {
	dept, err := s.repo.Department.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrDepartmentNotFound
		}
		s.logger.Error("查询部门失败", zap.String("id", id), zap.Error(err))
		return nil, storeError(err)
	}
	return dept, nil
}

func toDepartmentResponse(dept *model.Department, roles []model.Role) *dto.DepartmentResponse {
	resp := &dto.DepartmentResponse{
		ID:          dept.ID,
		Name:        dept.Name,
		Description: dept.Description,
		CreatedAt:   formatTime(dept.CreatedAt),
		UpdatedAt:   formatTime(dept.UpdatedAt),
	}
	if roles != nil {
		resp.Roles = make([]dto.RoleResponse, 0, len(roles))
		for i := range roles {
			r := toRoleResponse(&roles[i])
			r.DepartmentName = dept.Name
			resp.Roles = append(resp.Roles, *r)
		}
	}
	return resp
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}
