package model

import "time"

// 账号状态
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// 控制台访问权限
const (
	AccessAllowed = "allowed"
	AccessBlocked = "blocked"
)

// LockoutThreshold 失败登录次数达到该值时展示为锁定
const LockoutThreshold = 3

// SystemUser 系统用户表，对应 system_users
// Email 同时作为身份目录中的用户名
type SystemUser struct {
	ID              string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	EmployeeID      string  `gorm:"type:varchar(50);not null;uniqueIndex"          json:"employee_id"`
	Name            string  `gorm:"type:varchar(100);not null"                     json:"name"`
	Email           string  `gorm:"type:varchar(255);not null"                     json:"email"`
	Mobile          string  `gorm:"type:varchar(30);not null"                      json:"mobile"`
	DepartmentID    string  `gorm:"type:uuid;not null;index"                       json:"department_id"`
	RoleID          string  `gorm:"type:uuid;not null;index"                       json:"role_id"`
	LineManagerID   *string `gorm:"type:uuid"                                      json:"line_manager_id,omitempty"`
	Status          string  `gorm:"type:varchar(10);not null;default:'active'"     json:"status"`
	DashboardAccess string  `gorm:"type:varchar(10);not null;default:'allowed'"    json:"dashboard_access"`
	// AccessBeforeDeactivation 停用时记录的访问权限，重新启用时据此恢复
	AccessBeforeDeactivation *string   `gorm:"type:varchar(10)"                   json:"-"`
	FailedLoginAttempts      int       `gorm:"not null;default:0"                 json:"failed_login_attempts"`
	CreatedDate              time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_date"`
	UpdatedAt                time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	// 关联（只读投影使用）
	Department  *Department `gorm:"foreignKey:DepartmentID"  json:"-"`
	Role        *Role       `gorm:"foreignKey:RoleID"        json:"-"`
	LineManager *SystemUser `gorm:"foreignKey:LineManagerID" json:"-"`
}

// TableName 指定表名
func (SystemUser) TableName() string { return "system_users" }

// IsActive 是否处于启用状态
func (u *SystemUser) IsActive() bool { return u.Status == StatusActive }

// IsBlocked 控制台访问是否被阻止
func (u *SystemUser) IsBlocked() bool { return u.DashboardAccess == AccessBlocked }

// LockedOut 失败登录次数达到阈值（仅用于展示）
func (u *SystemUser) LockedOut() bool { return u.FailedLoginAttempts >= LockoutThreshold }
