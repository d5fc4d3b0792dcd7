package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/dto"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/model"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/repository"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/apperr"
)

// RoleService 角色业务接口
type RoleService interface {
	Create(ctx context.Context, req *dto.CreateRoleRequest) (*dto.RoleResponse, error)
	GetByID(ctx context.Context, id string) (*dto.RoleResponse, error)
	List(ctx context.Context, req *dto.RoleListRequest) ([]dto.RoleResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateRoleRequest) (*dto.RoleResponse, error)
	Delete(ctx context.Context, id string) error
}

type roleService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewRoleService 创建 RoleService 实例
func NewRoleService(repo *repository.Repository, logger *zap.Logger) RoleService {
	return &roleService{repo: repo, logger: logger}
}

// ────────────────────── Create ──────────────────────

func (s *roleService) Create(ctx context.Context, req *dto.CreateRoleRequest) (*dto.RoleResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("role name is required")
	}

	dept, err := s.repo.Department.GetByID(ctx, req.DepartmentID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrDepartmentNotFound
		}
		return nil, storeError(err)
	}

	role := &model.Role{
		Name:         name,
		Description:  strings.TrimSpace(req.Description),
		DepartmentID: dept.ID,
	}
	if err := s.repo.Role.Create(ctx, role); err != nil {
		s.logger.Error("创建角色失败", zap.Error(err))
		return nil, storeError(err)
	}

	resp := toRoleResponse(role)
	resp.DepartmentName = dept.Name
	return resp, nil
}

// ────────────────────── GetByID ──────────────────────

func (s *roleService) GetByID(ctx context.Context, id string) (*dto.RoleResponse, error) {
	role, err := s.getRole(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := toRoleResponse(role)
	if dept, err := s.repo.Department.GetByID(ctx, role.DepartmentID); err == nil {
		resp.DepartmentName = dept.Name
	}
	return resp, nil
}

// ────────────────────── List ──────────────────────

func (s *roleService) List(ctx context.Context, req *dto.RoleListRequest) ([]dto.RoleResponse, error) {
	var (
		roles []model.Role
		err   error
	)
	if req != nil && req.DepartmentID != "" {
		roles, err = s.repo.Role.ListByDepartment(ctx, req.DepartmentID)
	} else {
		roles, err = s.repo.Role.List(ctx)
	}
	if err != nil {
		s.logger.Error("列出角色失败", zap.Error(err))
		return nil, storeError(err)
	}

	depts, err := s.repo.Department.List(ctx)
	if err != nil {
		s.logger.Error("列出部门失败", zap.Error(err))
		return nil, storeError(err)
	}
	names := make(map[string]string, len(depts))
	for _, d := range depts {
		names[d.ID] = d.Name
	}

	result := make([]dto.RoleResponse, 0, len(roles))
	for i := range roles {
		r := toRoleResponse(&roles[i])
		r.DepartmentName = names[roles[i].DepartmentID]
		result = append(result, *r)
	}
	return result, nil
}

// ────────────────────── Update ──────────────────────

func (s *roleService) Update(ctx context.Context, id string, req *dto.UpdateRoleRequest) (*dto.RoleResponse, error) {
	role, err := s.getRole(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperr.Validation("role name is required")
		}
		role.Name = name
	}
	if req.Description != nil {
		role.Description = strings.TrimSpace(*req.Description)
	}

	deptName := ""
	if req.DepartmentID != nil && *req.DepartmentID != role.DepartmentID {
		// 用户的角色必须属于其部门，已被持有的角色不能迁移
		count, err := s.repo.Role.CountUsers(ctx, id)
		if err != nil {
			return nil, storeError(err)
		}
		if count > 0 {
			return nil, ErrRoleMoveWithUsers
		}
		dept, err := s.repo.Department.GetByID(ctx, *req.DepartmentID)
		if err != nil {
			if isNotFound(err) {
				return nil, ErrDepartmentNotFound
			}
			return nil, storeError(err)
		}
		role.DepartmentID = dept.ID
		deptName = dept.Name
	}

	if err := s.repo.Role.Update(ctx, role); err != nil {
		s.logger.Error("更新角色失败", zap.String("id", id), zap.Error(err))
		return nil, storeError(err)
	}

	resp := toRoleResponse(role)
	resp.DepartmentName = deptName
	if deptName == "" {
		if dept, err := s.repo.Department.GetByID(ctx, role.DepartmentID); err == nil {
			resp.DepartmentName = dept.Name
		}
	}
	return resp, nil
}

// ────────────────────── Delete ──────────────────────

func (s *roleService) Delete(ctx context.Context, id string) error {
	if _, err := s.getRole(ctx, id); err != nil {
		return err
	}

	count, err := s.repo.Role.CountUsers(ctx, id)
	if err != nil {
		s.logger.Error("查询角色用户数失败", zap.String("id", id), zap.Error(err))
		return storeError(err)
	}
	if count > 0 {
		return ErrRoleHasUsers
	}

	if err := s.repo.Role.Delete(ctx, id); err != nil {
		if isNotFound(err) {
			return ErrRoleNotFound
		}
		s.logger.Error("删除角色失败", zap.String("id", id), zap.Error(err))
		return storeError(err)
	}
	return nil
}

// ── 内部辅助方法 ──

func (s *roleService) getRole(ctx context.Context, id string) (*model.Role, error) {
	role, err := s.repo.Role.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrRoleNotFound
		}
		s.logger.Error("查询角色失败", zap.String("id", id), zap.Error(err))
		return nil, storeError(err)
	}
	return role, nil
}

func toRoleResponse(role *model.Role) *dto.RoleResponse {
	return &dto.RoleResponse{
		ID:           role.ID,
		Name:         role.Name,
		Description:  role.Description,
		DepartmentID: role.DepartmentID,
		CreatedAt:    formatTime(role.CreatedAt),
		UpdatedAt:    formatTime(role.UpdatedAt),
	}
}
