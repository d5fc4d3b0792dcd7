package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/dto"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/events"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/identity"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/model"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/notify"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/repository"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/apperr"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/credential"
	pkgredis "github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/redis"
)

// SystemUserService 系统用户开通编排接口
//
// 创建与删除按顺序调用身份目录与业务库，两者之间没有事务；
// 每次操作先写入开通意图日志并逐步标记，供 ProvisioningService 对账修复。
type SystemUserService interface {
	Create(ctx context.Context, req *dto.CreateSystemUserRequest) (*dto.CreateSystemUserResponse, error)
	GetByID(ctx context.Context, id string) (*dto.SystemUserResponse, error)
	GetByEmployeeID(ctx context.Context, employeeID string) (*dto.SystemUserResponse, error)
	List(ctx context.Context, req *dto.SystemUserListRequest) ([]dto.SystemUserResponse, int64, error)
	// ListActive 可作为直属上级的用户
	ListActive(ctx context.Context) ([]dto.SystemUserResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateSystemUserRequest) (*dto.SystemUserResponse, error)
	Delete(ctx context.Context, id string) error
	Statistics(ctx context.Context) (*dto.SystemUserStatisticsResponse, error)

	SetActive(ctx context.Context, id string, active bool) (*dto.SystemUserResponse, error)
	ToggleStatus(ctx context.Context, id string) (*dto.SystemUserResponse, error)
	SetBlocked(ctx context.Context, id string, blocked bool) (*dto.SystemUserResponse, error)
	ToggleBlocked(ctx context.Context, id string) (*dto.SystemUserResponse, error)

	ParseImportFile(reader io.Reader) ([]ImportUserRow, error)
	ImportUsers(ctx context.Context, rows []ImportUserRow) (*dto.ImportUserResponse, error)
}

// Locker 按业务键串行化创建请求
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

// Collaborators 编排层的外部协作方
type Collaborators struct {
	// Directory 为 nil 表示没有管理员会话：创建时跳过目录写入
	Directory identity.Directory
	// Mailer 为 nil 表示未配置邮件发送
	Mailer notify.Sender
	Events events.Publisher
	// Locker 为 nil 时仅依赖数据库唯一约束
	Locker Locker
}

// ProvisioningOptions 编排参数
type ProvisioningOptions struct {
	LoginURL       string
	LockTTL        time.Duration
	ReconcileGrace time.Duration
	// ReconcileBatch 单次对账处理的意图数量上限
	ReconcileBatch int
}

// orchestrator 同时实现 SystemUserService、IdentityService 与 ProvisioningService
type orchestrator struct {
	repo      *repository.Repository
	directory identity.Directory
	mailer    notify.Sender
	events    events.Publisher
	locker    Locker
	opts      ProvisioningOptions
	validate  *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

func newOrchestrator(repo *repository.Repository, c Collaborators, opts ProvisioningOptions, logger *zap.Logger) *orchestrator {
	if c.Events == nil {
		c.Events = events.Nop{}
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.ReconcileGrace <= 0 {
		opts.ReconcileGrace = 10 * time.Minute
	}
	if opts.ReconcileBatch <= 0 {
		opts.ReconcileBatch = 200
	}
	return &orchestrator{
		repo:      repo,
		directory: c.Directory,
		mailer:    c.Mailer,
		events:    c.Events,
		locker:    c.Locker,
		opts:      opts,
		validate:  validator.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// NewSystemUserService 创建 SystemUserService 实例
func NewSystemUserService(repo *repository.Repository, c Collaborators, opts ProvisioningOptions, logger *zap.Logger) SystemUserService {
	return newOrchestrator(repo, c, opts, logger)
}

// ────────────────────── Create ──────────────────────

func (s *orchestrator) Create(ctx context.Context, req *dto.CreateSystemUserRequest) (*dto.CreateSystemUserResponse, error) {
	in, err := s.normalizeCreate(req)
	if err != nil {
		return nil, err
	}

	dept, role, err := s.resolveDepartmentRole(ctx, in.DepartmentID, in.RoleID)
	if err != nil {
		return nil, err
	}

	var manager *model.SystemUser
	if in.LineManagerID != nil {
		if manager, err = s.resolveLineManager(ctx, *in.LineManagerID, ""); err != nil {
			return nil, err
		}
	}

	release, err := s.lockKeys(ctx, "system-user:employee:"+in.EmployeeID, "system-user:email:"+in.Email)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.checkUnique(ctx, in.EmployeeID, in.Email); err != nil {
		return nil, err
	}

	// 意图日志先于任何外部副作用落库
	intent := &model.ProvisioningIntent{
		Operation:  model.IntentCreate,
		EmployeeID: in.EmployeeID,
		Email:      in.Email,
		Status:     model.IntentPending,
	}
	if err := s.repo.Intent.Create(ctx, intent); err != nil {
		s.logger.Error("写入开通意图失败", zap.String("employee_id", in.EmployeeID), zap.Error(err))
		return nil, storeError(err)
	}

	tempPassword, err := credential.Generate()
	if err != nil {
		s.abandonIntent(ctx, intent, err)
		return nil, err
	}

	identityCreated := false
	if s.directory == nil {
		s.logger.Warn("未配置身份目录，跳过目录用户创建", zap.String("email", in.Email))
	} else {
		_, err := s.directory.CreateUser(ctx, identity.CreateUserInput{
			Email:             in.Email,
			Name:              in.Name,
			TemporaryPassword: tempPassword,
		})
		if err != nil {
			s.logger.Warn("创建目录用户失败", zap.String("email", in.Email), zap.Error(err))
			if identityRejected(err) {
				// 目录明确拒绝，未产生任何身份；已存在的同名账号不属于本次操作
				s.abandonIntent(ctx, intent, err)
			} else {
				s.failIntent(ctx, intent, err)
			}
			return nil, directoryError(err)
		}
		identityCreated = true
		intent.IdentityDone = true
		s.saveIntent(ctx, intent)
	}

	user := &model.SystemUser{
		EmployeeID:          in.EmployeeID,
		Name:                in.Name,
		Email:               in.Email,
		Mobile:              in.Mobile,
		DepartmentID:        dept.ID,
		RoleID:              role.ID,
		LineManagerID:       in.LineManagerID,
		Status:              model.StatusActive,
		DashboardAccess:     model.AccessAllowed,
		FailedLoginAttempts: 0,
		CreatedDate:         s.now(),
	}
	if err := s.repo.SystemUser.Create(ctx, user); err != nil {
		s.failIntent(ctx, intent, err)
		if identityCreated {
			s.logger.Error("业务记录写入失败，目录中遗留孤立身份，等待对账",
				zap.String("intent_id", intent.ID),
				zap.String("email", in.Email),
				zap.Error(err),
			)
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAccountExists.Wrap(err)
		}
		return nil, storeError(err)
	}

	intent.UserID = &user.ID
	intent.RecordDone = true
	intent.Status = model.IntentCompleted
	s.saveIntent(ctx, intent)

	user.Department = dept
	user.Role = role
	user.LineManager = manager

	s.logger.Info("系统用户已创建",
		zap.String("id", user.ID),
		zap.String("employee_id", user.EmployeeID),
		zap.Bool("identity_created", identityCreated),
	)

	sent := false
	if identityCreated {
		sent = s.sendWelcome(ctx, user, tempPassword)
	}

	s.publish(ctx, events.TypeUserCreated, user, map[string]string{
		"department": dept.Name,
		"role":       role.Name,
	})

	return &dto.CreateSystemUserResponse{
		User:             *toSystemUserResponse(user),
		IdentityCreated:  identityCreated,
		WelcomeEmailSent: sent,
	}, nil
}

// ────────────────────── Delete ──────────────────────

func (s *orchestrator) Delete(ctx context.Context, id string) error {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return err
	}

	intent := &model.ProvisioningIntent{
		Operation:  model.IntentDelete,
		UserID:     &user.ID,
		EmployeeID: user.EmployeeID,
		Email:      user.Email,
		Status:     model.IntentPending,
	}
	if err := s.repo.Intent.Create(ctx, intent); err != nil {
		s.logger.Error("写入开通意图失败", zap.String("id", id), zap.Error(err))
		return storeError(err)
	}

	// 目录删除失败不阻止业务记录删除
	if s.directory == nil {
		s.logger.Warn("未配置身份目录，跳过目录用户删除", zap.String("email", user.Email))
		intent.IdentityDone = true
	} else if err := s.directory.DeleteUser(ctx, user.Email); err != nil && !identity.IsNotFound(err) {
		s.logger.Error("删除目录用户失败，继续删除业务记录", zap.String("email", user.Email), zap.Error(err))
		intent.LastError = err.Error()
	} else {
		intent.IdentityDone = true
	}

	if err := s.repo.SystemUser.Delete(ctx, user.ID); err != nil {
		s.failIntent(ctx, intent, err)
		if isNotFound(err) {
			return ErrUserNotFound
		}
		s.logger.Error("删除系统用户失败", zap.String("id", id), zap.Error(err))
		return storeError(err)
	}

	intent.RecordDone = true
	if intent.IdentityDone {
		intent.Status = model.IntentCompleted
	} else {
		intent.Status = model.IntentFailed
	}
	s.saveIntent(ctx, intent)

	s.logger.Info("系统用户已删除", zap.String("id", id), zap.Bool("identity_removed", intent.IdentityDone))
	s.publish(ctx, events.TypeUserDeleted, user, nil)
	return nil
}

// ────────────────────── Reads ──────────────────────

func (s *orchestrator) GetByID(ctx context.Context, id string) (*dto.SystemUserResponse, error) {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return toSystemUserResponse(user), nil
}

func (s *orchestrator) GetByEmployeeID(ctx context.Context, employeeID string) (*dto.SystemUserResponse, error) {
	user, err := s.repo.SystemUser.GetByEmployeeID(ctx, strings.TrimSpace(employeeID))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("按工号查询用户失败", zap.String("employee_id", employeeID), zap.Error(err))
		return nil, storeError(err)
	}
	return toSystemUserResponse(user), nil
}

func (s *orchestrator) List(ctx context.Context, req *dto.SystemUserListRequest) ([]dto.SystemUserResponse, int64, error) {
	filters := &repository.SystemUserListFilters{
		DepartmentID:    req.DepartmentID,
		RoleID:          req.RoleID,
		Status:          req.Status,
		DashboardAccess: req.DashboardAccess,
		Keyword:         strings.TrimSpace(req.Keyword),
	}

	users, total, err := s.repo.SystemUser.ListWithFilters(ctx, filters, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("列出系统用户失败", zap.Error(err))
		return nil, 0, storeError(err)
	}

	return toSystemUserResponses(users), total, nil
}

func (s *orchestrator) ListActive(ctx context.Context) ([]dto.SystemUserResponse, error) {
	users, err := s.repo.SystemUser.ListActive(ctx)
	if err != nil {
		s.logger.Error("列出启用用户失败", zap.Error(err))
		return nil, storeError(err)
	}
	return toSystemUserResponses(users), nil
}

func (s *orchestrator) Statistics(ctx context.Context) (*dto.SystemUserStatisticsResponse, error) {
	stats, err := s.repo.SystemUser.Stats(ctx)
	if err != nil {
		s.logger.Error("统计系统用户失败", zap.Error(err))
		return nil, storeError(err)
	}
	return &dto.SystemUserStatisticsResponse{
		Total:     stats.Total,
		Active:    stats.Active,
		Inactive:  stats.Inactive,
		Allowed:   stats.Allowed,
		Blocked:   stats.Blocked,
		LockedOut: stats.LockedOut,
	}, nil
}

// ────────────────────── Update ──────────────────────

func (s *orchestrator) Update(ctx context.Context, id string, req *dto.UpdateSystemUserRequest) (*dto.SystemUserResponse, error) {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperr.Validation("name is required")
		}
		user.Name = name
	}
	if req.Mobile != nil {
		mobile := strings.TrimSpace(*req.Mobile)
		if mobile == "" {
			return nil, apperr.Validation("mobile is required")
		}
		user.Mobile = mobile
	}

	if req.DepartmentID != nil || req.RoleID != nil {
		deptID, roleID := user.DepartmentID, user.RoleID
		if req.DepartmentID != nil {
			deptID = *req.DepartmentID
		}
		if req.RoleID != nil {
			roleID = *req.RoleID
		}
		dept, role, err := s.resolveDepartmentRole(ctx, deptID, roleID)
		if err != nil {
			return nil, err
		}
		user.DepartmentID, user.RoleID = dept.ID, role.ID
	}

	if req.LineManagerID != nil {
		if managerID := strings.TrimSpace(*req.LineManagerID); managerID == "" {
			user.LineManagerID = nil
		} else {
			if _, err := s.resolveLineManager(ctx, managerID, user.ID); err != nil {
				return nil, err
			}
			user.LineManagerID = &managerID
		}
	}

	if err := s.repo.SystemUser.Update(ctx, user); err != nil {
		s.logger.Error("更新系统用户失败", zap.String("id", id), zap.Error(err))
		return nil, storeError(err)
	}

	return s.GetByID(ctx, id)
}

// ── 内部辅助方法 ──

// createInput 规范化后的创建参数
type createInput struct {
	EmployeeID    string
	Name          string
	Email         string
	Mobile        string
	DepartmentID  string
	RoleID        string
	LineManagerID *string
}

func (s *orchestrator) normalizeCreate(req *dto.CreateSystemUserRequest) (*createInput, error) {
	in := &createInput{
		EmployeeID:   strings.TrimSpace(req.EmployeeID),
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Mobile:       strings.TrimSpace(req.Mobile),
		DepartmentID: strings.TrimSpace(req.DepartmentID),
		RoleID:       strings.TrimSpace(req.RoleID),
	}
	if req.LineManagerID != nil {
		if id := strings.TrimSpace(*req.LineManagerID); id != "" {
			in.LineManagerID = &id
		}
	}

	required := []struct{ field, value string }{
		{"employee_id", in.EmployeeID},
		{"name", in.Name},
		{"email", in.Email},
		{"mobile", in.Mobile},
		{"department_id", in.DepartmentID},
		{"role_id", in.RoleID},
	}
	var missing []string
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.field)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}

	if err := s.checkEmail(in.Email); err != nil {
		return nil, err
	}
	return in, nil
}

func (s *orchestrator) checkEmail(email string) error {
	if err := s.validate.Var(email, "required,email"); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

// resolveDepartmentRole 校验部门存在且角色隶属于该部门
func (s *orchestrator) resolveDepartmentRole(ctx context.Context, departmentID, roleID string) (*model.Department, *model.Role, error) {
	dept, err := s.repo.Department.GetByID(ctx, departmentID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrDepartmentNotFound
		}
		return nil, nil, storeError(err)
	}

	role, err := s.repo.Role.GetByID(ctx, roleID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrRoleNotFound
		}
		return nil, nil, storeError(err)
	}
	if role.DepartmentID != dept.ID {
		return nil, nil, ErrRoleNotInDepartment
	}
	return dept, role, nil
}

// resolveLineManager 校验直属上级存在且不是用户本人
func (s *orchestrator) resolveLineManager(ctx context.Context, managerID, selfID string) (*model.SystemUser, error) {
	if selfID != "" && managerID == selfID {
		return nil, ErrLineManagerSelf
	}
	manager, err := s.repo.SystemUser.GetByID(ctx, managerID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrLineManagerNotFound
		}
		return nil, storeError(err)
	}
	return manager, nil
}

func (s *orchestrator) checkUnique(ctx context.Context, employeeID, email string) error {
	if _, err := s.repo.SystemUser.GetByEmployeeID(ctx, employeeID); err == nil {
		return ErrEmployeeIDExists
	} else if !isNotFound(err) {
		return storeError(err)
	}

	if _, err := s.repo.SystemUser.GetByEmail(ctx, email); err == nil {
		return ErrEmailExists
	} else if !isNotFound(err) {
		return storeError(err)
	}
	return nil
}

// lockKeys 依次获取多个键的锁，返回统一的释放函数
// Redis 不可用时降级为仅依赖数据库唯一约束
func (s *orchestrator) lockKeys(ctx context.Context, keys ...string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}

	type held struct{ key, token string }
	var acquired []held
	release := func() {
		for _, h := range acquired {
			if err := s.locker.Unlock(context.WithoutCancel(ctx), h.key, h.token); err != nil {
				s.logger.Warn("释放创建锁失败", zap.String("key", h.key), zap.Error(err))
			}
		}
	}

	for _, key := range keys {
		token, err := s.locker.Lock(ctx, key, s.opts.LockTTL)
		if err != nil {
			if errors.Is(err, pkgredis.ErrLockHeld) {
				release()
				return nil, ErrCreateInProgress
			}
			s.logger.Warn("获取创建锁失败，降级为数据库唯一约束", zap.String("key", key), zap.Error(err))
			continue
		}
		acquired = append(acquired, held{key: key, token: token})
	}
	return release, nil
}

func (s *orchestrator) getUser(ctx context.Context, id string) (*model.SystemUser, error) {
	user, err := s.repo.SystemUser.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("查询系统用户失败", zap.String("id", id), zap.Error(err))
		return nil, storeError(err)
	}
	return user, nil
}

// saveIntent 意图日志更新失败只记录日志
func (s *orchestrator) saveIntent(ctx context.Context, intent *model.ProvisioningIntent) {
	if err := s.repo.Intent.Update(context.WithoutCancel(ctx), intent); err != nil {
		s.logger.Warn("更新开通意图失败",
			zap.String("intent_id", intent.ID),
			zap.String("status", intent.Status),
			zap.Error(err),
		)
	}
}

func (s *orchestrator) failIntent(ctx context.Context, intent *model.ProvisioningIntent, cause error) {
	intent.Status = model.IntentFailed
	intent.LastError = cause.Error()
	s.saveIntent(ctx, intent)
}

// abandonIntent 外部副作用未发生即结束的意图直接关闭，不进入对账
func (s *orchestrator) abandonIntent(ctx context.Context, intent *model.ProvisioningIntent, cause error) {
	intent.Status = model.IntentReconciled
	intent.LastError = cause.Error()
	s.saveIntent(ctx, intent)
}

// identityRejected 目录明确拒绝了写入（而非超时或未知错误）
func identityRejected(err error) bool {
	switch identity.KindOf(err) {
	case identity.KindUsernameExists, identity.KindInvalidParameter, identity.KindInvalidPassword:
		return true
	}
	return false
}

// sendWelcome 发送欢迎邮件，失败只记录日志
func (s *orchestrator) sendWelcome(ctx context.Context, user *model.SystemUser, tempPassword string) bool {
	if s.mailer == nil {
		s.logger.Info("未配置邮件发送，跳过欢迎邮件", zap.String("email", user.Email))
		return false
	}

	email, err := notify.WelcomeEmail(user.Email, welcomeData(user, tempPassword, s.opts.LoginURL, false))
	if err != nil {
		s.logger.Warn("渲染欢迎邮件失败", zap.Error(err))
		return false
	}
	if _, err := s.mailer.Send(ctx, email); err != nil {
		s.logger.Warn("发送欢迎邮件失败", zap.String("email", user.Email), zap.Error(err))
		return false
	}
	return true
}

func (s *orchestrator) publish(ctx context.Context, eventType string, user *model.SystemUser, data map[string]string) {
	s.events.Publish(context.WithoutCancel(ctx), events.Event{
		Type:       eventType,
		UserID:     user.ID,
		EmployeeID: user.EmployeeID,
		Email:      user.Email,
		OccurredAt: s.now().UTC(),
		Data:       data,
	})
}

func welcomeData(user *model.SystemUser, tempPassword, loginURL string, resend bool) notify.WelcomeData {
	data := notify.WelcomeData{
		Name:              user.Name,
		Username:          user.Email,
		TemporaryPassword: tempPassword,
		LoginURL:          loginURL,
		Resend:            resend,
	}
	if user.Department != nil {
		data.Department = user.Department.Name
	}
	if user.Role != nil {
		data.Role = user.Role.Name
	}
	return data
}

func toSystemUserResponse(u *model.SystemUser) *dto.SystemUserResponse {
	resp := &dto.SystemUserResponse{
		ID:                  u.ID,
		EmployeeID:          u.EmployeeID,
		Name:                u.Name,
		Email:               u.Email,
		Mobile:              u.Mobile,
		DepartmentID:        u.DepartmentID,
		RoleID:              u.RoleID,
		LineManagerID:       u.LineManagerID,
		Status:              u.Status,
		DashboardAccess:     u.DashboardAccess,
		FailedLoginAttempts: u.FailedLoginAttempts,
		LockedOut:           u.LockedOut(),
		CreatedDate:         formatTime(u.CreatedDate),
		UpdatedAt:           formatTime(u.UpdatedAt),
	}
	if u.Department != nil {
		resp.DepartmentName = u.Department.Name
	}
	if u.Role != nil {
		resp.RoleName = u.Role.Name
	}
	if u.LineManager != nil {
		resp.LineManagerName = u.LineManager.Name
	}
	return resp
}

func toSystemUserResponses(users []model.SystemUser) []dto.SystemUserResponse {
	result := make([]dto.SystemUserResponse, 0, len(users))
	for i := range users {
		result = append(result, *toSystemUserResponse(&users[i]))
	}
	return result
}
