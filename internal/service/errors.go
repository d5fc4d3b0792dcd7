package service

import (
	"errors"

	"gorm.io/gorm"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/identity"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/apperr"
)

// ── 部门 / 角色 ──

var (
	ErrDepartmentNotFound  = apperr.New(apperr.KindNotFound, "department not found")
	ErrDepartmentHasUsers  = apperr.New(apperr.KindConflict, "cannot delete department: users are still assigned to it")
	ErrRoleNotFound        = apperr.New(apperr.KindNotFound, "role not found")
	ErrRoleNotInDepartment = apperr.New(apperr.KindValidation, "role does not belong to the selected department")
	ErrRoleHasUsers        = apperr.New(apperr.KindConflict, "cannot delete role: users are still assigned to it")
	ErrRoleMoveWithUsers   = apperr.New(apperr.KindConflict, "cannot move role to another department while users hold it")
)

// ── 系统用户 ──

var (
	ErrUserNotFound         = apperr.New(apperr.KindNotFound, "user not found")
	ErrLineManagerNotFound  = apperr.New(apperr.KindValidation, "line manager not found")
	ErrLineManagerSelf      = apperr.New(apperr.KindValidation, "a user cannot be their own line manager")
	ErrInvalidEmail         = apperr.New(apperr.KindValidation, "invalid email address")
	ErrEmployeeIDExists     = apperr.New(apperr.KindDuplicate, "employee ID already exists")
	ErrEmailExists          = apperr.New(apperr.KindDuplicate, "email already exists")
	ErrAccountExists        = apperr.New(apperr.KindDuplicate, "account already exists")
	ErrCreateInProgress     = apperr.New(apperr.KindConflict, "a user with this employee ID or email is already being created")
	ErrInactiveAccessChange = apperr.New(apperr.KindValidation, "cannot change dashboard access for inactive users")
)

// ── 身份目录 ──

var (
	ErrIdentityExists       = apperr.New(apperr.KindDuplicate, "email already registered")
	ErrIdentityNotFound     = apperr.New(apperr.KindNotFound, "user not found in authentication system")
	ErrIdentityInvalid      = apperr.New(apperr.KindValidation, "request rejected by authentication system")
	ErrIdentityUnavailable  = apperr.New(apperr.KindUpstream, "authentication system unavailable")
	ErrIdentityUnknown      = apperr.New(apperr.KindUpstream, "authentication system error")
	ErrAlreadyVerified      = apperr.New(apperr.KindValidation, "account already verified")
	ErrMailDisabled         = apperr.New(apperr.KindUpstream, "email delivery is not configured")
	ErrVerificationNotSent  = apperr.New(apperr.KindUpstream, "failed to send verification email")
	ErrDirectoryNotAttached = apperr.New(apperr.KindUpstream, "no administrative session for the authentication system")
)

// ── 批量导入 / 导出 ──

var (
	ErrImportNoData      = apperr.New(apperr.KindValidation, "the spreadsheet has no data rows (the first row is the header)")
	ErrImportTooManyRows = apperr.New(apperr.KindValidation, "the spreadsheet has too many rows")
	ErrImportBadHeader   = apperr.New(apperr.KindValidation, "the header row is missing required columns")
	ErrImportBadFile     = apperr.New(apperr.KindValidation, "the file is not a valid xlsx spreadsheet")
	ErrExportGenerate    = apperr.New(apperr.KindInternal, "failed to generate the spreadsheet")
)

// directoryError 将目录错误映射为业务错误
func directoryError(err error) error {
	switch identity.KindOf(err) {
	case identity.KindUserNotFound:
		return ErrIdentityNotFound.Wrap(err)
	case identity.KindUsernameExists:
		return ErrIdentityExists.Wrap(err)
	case identity.KindInvalidParameter, identity.KindInvalidPassword:
		return ErrIdentityInvalid.Wrap(err)
	case identity.KindUnavailable:
		return ErrIdentityUnavailable.Wrap(err)
	default:
		return ErrIdentityUnknown.Wrap(err)
	}
}

// storeError 包装业务库基础设施失败
func storeError(err error) error {
	return apperr.Upstream("data store error", err)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
