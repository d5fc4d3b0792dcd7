package model

import "time"

// 开通意图操作
const (
	IntentCreate = "create"
	IntentDelete = "delete"
)

// 开通意图状态
const (
	IntentPending    = "pending"
	IntentCompleted  = "completed"
	IntentFailed     = "failed"
	IntentReconciled = "reconciled"
)

// ProvisioningIntent 开通意图日志，对应 provisioning_intents
// 跨身份目录与业务库的两步操作在执行前落一条记录，逐步标记完成，供对账修复
type ProvisioningIntent struct {
	ID           string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Operation    string    `gorm:"type:varchar(10);not null"                      json:"operation"`
	UserID       *string   `gorm:"type:uuid"                                      json:"user_id,omitempty"`
	EmployeeID   string    `gorm:"type:varchar(50);not null;default:''"           json:"employee_id"`
	Email        string    `gorm:"type:varchar(255);not null"                     json:"email"`
	Status       string    `gorm:"type:varchar(15);not null;default:'pending'"    json:"status"`
	IdentityDone bool      `gorm:"not null;default:false"                         json:"identity_done"`
	RecordDone   bool      `gorm:"not null;default:false"                         json:"record_done"`
	LastError    string    `gorm:"type:text;not null;default:''"                  json:"last_error,omitempty"`
	Attempts     int       `gorm:"not null;default:0"                             json:"attempts"`
	CreatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"updated_at"`
}

// TableName 指定表名
func (ProvisioningIntent) TableName() string { return "provisioning_intents" }

// IsOpen 未完成的意图需要对账
func (i *ProvisioningIntent) IsOpen() bool {
	return i.Status == IntentPending || i.Status == IntentFailed
}
