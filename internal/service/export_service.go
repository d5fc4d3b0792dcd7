package service

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/repository"
)

// ExportService 导出业务接口
//
// 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
type ExportService interface {
	// ExportUsers 导出全部系统用户的富化列表
	ExportUsers(ctx context.Context) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, logger: logger}
}

var exportColumns = []struct {
	title string
	width float64
}{
	{"Employee ID", 14},
	{"Name", 22},
	{"Email", 30},
	{"Mobile", 16},
	{"Department", 18},
	{"Role", 18},
	{"Line Manager", 22},
	{"Status", 10},
	{"Dashboard Access", 16},
	{"Failed Logins", 13},
	{"Created", 22},
}

const exportSheet = "System Users"

func (s *exportService) ExportUsers(ctx context.Context) (*bytes.Buffer, string, error) {
	users, err := s.repo.SystemUser.ListAll(ctx)
	if err != nil {
		s.logger.Error("查询导出用户失败", zap.Error(err))
		return nil, "", storeError(err)
	}

	f := excelize.NewFile()
	defer f.Close()

	idx, _ := f.NewSheet(exportSheet)
	f.SetActiveSheet(idx)
	// 删除默认 Sheet1
	f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	for i, col := range exportColumns {
		name := colName(i)
		f.SetColWidth(exportSheet, name, name, col.width)
		f.SetCellValue(exportSheet, cell(name, 1), col.title)
	}
	f.SetCellStyle(exportSheet, "A1", cell(colName(len(exportColumns)-1), 1), headerStyle)
	f.SetPanes(exportSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	for i := range users {
		u := toSystemUserResponse(&users[i])
		values := []any{
			u.EmployeeID, u.Name, u.Email, u.Mobile,
			u.DepartmentName, u.RoleName, u.LineManagerName,
			u.Status, u.DashboardAccess, u.FailedLoginAttempts, u.CreatedDate,
		}
		row := i + 2
		for j, v := range values {
			f.SetCellValue(exportSheet, cell(colName(j), row), v)
		}
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerate.Wrap(err)
	}

	s.logger.Info("系统用户已导出", zap.Int("rows", len(users)))
	return buf, "system_users.xlsx", nil
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
