package service

import (
	"go.uber.org/zap"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/repository"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Department   DepartmentService
	Role         RoleService
	SystemUser   SystemUserService
	Identity     IdentityService
	Provisioning ProvisioningService
	Export       ExportService
}

// NewService 创建 Service 聚合
// 编排相关的三个接口共享同一个实例
func NewService(
	repo *repository.Repository,
	collab Collaborators,
	opts ProvisioningOptions,
	logger *zap.Logger,
) *Service {
	orch := newOrchestrator(repo, collab, opts, logger)
	return &Service{
		Department:   NewDepartmentService(repo, logger),
		Role:         NewRoleService(repo, logger),
		SystemUser:   orch,
		Identity:     orch,
		Provisioning: orch,
		Export:       NewExportService(repo, logger),
	}
}
