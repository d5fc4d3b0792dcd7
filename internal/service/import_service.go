package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/dto"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/model"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/apperr"
)

// ImportUserRow Excel 导入解析后的单行数据
type ImportUserRow struct {
	Row                   int
	EmployeeID            string
	Name                  string
	Email                 string
	Mobile                string
	DepartmentName        string
	RoleName              string
	LineManagerEmployeeID string
}

func (r ImportUserRow) empty() bool {
	return r.EmployeeID == "" && r.Name == "" && r.Email == "" && r.Mobile == "" &&
		r.DepartmentName == "" && r.RoleName == "" && r.LineManagerEmployeeID == ""
}

// ────────────────────── ParseImportFile ──────────────────────

const maxImportRows = 500

// 表头列名 → 字段键，支持灵活列序
var importHeaders = map[string]string{
	"employee_id":              "employee_id",
	"employee id":              "employee_id",
	"name":                     "name",
	"email":                    "email",
	"mobile":                   "mobile",
	"department":               "department",
	"role":                     "role",
	"line_manager_employee_id": "line_manager",
	"line manager employee id": "line_manager",
}

var requiredImportColumns = []string{"employee_id", "name", "email", "mobile", "department", "role"}

// ParseImportFile 解析导入 Excel 文件，返回解析后的行数据
func (s *orchestrator) ParseImportFile(reader io.Reader) ([]ImportUserRow, error) {
	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, ErrImportBadFile.Wrap(err)
	}
	defer f.Close()

	excelRows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, ErrImportBadFile.Wrap(err)
	}
	if len(excelRows) < 2 {
		return nil, ErrImportNoData
	}

	colIndex := parseHeaderIndex(excelRows[0])
	for _, col := range requiredImportColumns {
		if colIndex[col] < 0 {
			return nil, ErrImportBadHeader
		}
	}

	value := func(row []string, key string) string {
		if idx := colIndex[key]; idx >= 0 && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	var rows []ImportUserRow
	for i := 1; i < len(excelRows); i++ {
		row := excelRows[i]
		item := ImportUserRow{
			Row:                   i + 1,
			EmployeeID:            value(row, "employee_id"),
			Name:                  value(row, "name"),
			Email:                 value(row, "email"),
			Mobile:                value(row, "mobile"),
			DepartmentName:        value(row, "department"),
			RoleName:              value(row, "role"),
			LineManagerEmployeeID: value(row, "line_manager"),
		}
		if item.empty() {
			continue
		}
		rows = append(rows, item)
	}

	if len(rows) == 0 {
		return nil, ErrImportNoData
	}
	if len(rows) > maxImportRows {
		return nil, ErrImportTooManyRows
	}
	return rows, nil
}

// parseHeaderIndex 解析 Excel 表头，返回字段键 -> 列索引映射
func parseHeaderIndex(header []string) map[string]int {
	idx := map[string]int{"line_manager": -1}
	for _, col := range requiredImportColumns {
		idx[col] = -1
	}
	for i, h := range header {
		if key, ok := importHeaders[strings.ToLower(strings.TrimSpace(h))]; ok {
			idx[key] = i
		}
	}
	return idx
}

// ────────────────────── ImportUsers ──────────────────────

// ImportUsers 逐行执行完整的创建流程，单行失败不影响其他行
func (s *orchestrator) ImportUsers(ctx context.Context, rows []ImportUserRow) (*dto.ImportUserResponse, error) {
	resp := &dto.ImportUserResponse{Total: len(rows)}

	depts, err := s.repo.Department.List(ctx)
	if err != nil {
		s.logger.Error("加载部门列表失败", zap.Error(err))
		return nil, storeError(err)
	}
	roles, err := s.repo.Role.List(ctx)
	if err != nil {
		s.logger.Error("加载角色列表失败", zap.Error(err))
		return nil, storeError(err)
	}

	deptByName := make(map[string]*model.Department, len(depts))
	for i := range depts {
		deptByName[strings.ToLower(depts[i].Name)] = &depts[i]
	}
	// 角色名只在部门内唯一
	roleByKey := make(map[string]*model.Role, len(roles))
	for i := range roles {
		roleByKey[roles[i].DepartmentID+"/"+strings.ToLower(roles[i].Name)] = &roles[i]
	}

	fail := func(row int, reason string) {
		resp.Failed++
		resp.Errors = append(resp.Errors, dto.ImportUserError{Row: row, Reason: reason})
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dept, ok := deptByName[strings.ToLower(row.DepartmentName)]
		if !ok {
			fail(row.Row, fmt.Sprintf("department not found: %s", row.DepartmentName))
			continue
		}
		role, ok := roleByKey[dept.ID+"/"+strings.ToLower(row.RoleName)]
		if !ok {
			fail(row.Row, fmt.Sprintf("role %q not found in department %q", row.RoleName, dept.Name))
			continue
		}

		req := &dto.CreateSystemUserRequest{
			EmployeeID:   row.EmployeeID,
			Name:         row.Name,
			Email:        row.Email,
			Mobile:       row.Mobile,
			DepartmentID: dept.ID,
			RoleID:       role.ID,
		}

		// 直属上级可以是同一文件中靠前的行
		if row.LineManagerEmployeeID != "" {
			manager, err := s.repo.SystemUser.GetByEmployeeID(ctx, row.LineManagerEmployeeID)
			if err != nil {
				if isNotFound(err) {
					fail(row.Row, fmt.Sprintf("line manager not found: %s", row.LineManagerEmployeeID))
				} else {
					fail(row.Row, apperr.MessageOf(storeError(err), "internal error"))
				}
				continue
			}
			req.LineManagerID = &manager.ID
		}

		if _, err := s.Create(ctx, req); err != nil {
			fail(row.Row, apperr.MessageOf(err, "internal error"))
			continue
		}
		resp.Success++
	}

	s.logger.Info("批量导入完成",
		zap.Int("total", resp.Total),
		zap.Int("success", resp.Success),
		zap.Int("failed", resp.Failed),
	)
	return resp, nil
}
