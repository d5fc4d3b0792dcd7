package model

// Department 部门表，对应 departments
type Department struct {
	ID          string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name        string `gorm:"type:varchar(100);not null"                     json:"name"`
	Description string `gorm:"type:text"                                      json:"description,omitempty"`
	BaseModel
}

// TableName 指定表名
func (Department) TableName() string { return "departments" }

// Role 角色表，对应 roles，隶属于某个部门
type Role struct {
	ID           string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name         string `gorm:"type:varchar(100);not null"                     json:"name"`
	Description  string `gorm:"type:text"                                      json:"description,omitempty"`
	DepartmentID string `gorm:"type:uuid;not null;index"                       json:"department_id"`
	BaseModel
}

// TableName 指定表名
func (Role) TableName() string { return "roles" }
