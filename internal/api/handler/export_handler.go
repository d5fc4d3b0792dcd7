package handler

import (
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/response"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// maxImportFileSize 导入文件大小上限
const maxImportFileSize = 5 << 20

// ExportUsers 导出系统用户
// GET /api/v1/system-users/export
func (h *SystemUserHandler) ExportUsers(c *gin.Context) {
	buf, filename, err := h.exportSvc.ExportUsers(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}

	// 设置下载响应头
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.QueryEscape(filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// ImportUsers 批量导入系统用户
// POST /api/v1/system-users/import (multipart, 字段名 file)
func (h *SystemUserHandler) ImportUsers(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, codeInvalidParams, "an .xlsx file is required in field \"file\"")
		return
	}
	if !strings.EqualFold(filepath.Ext(fh.Filename), ".xlsx") {
		response.BadRequest(c, codeInvalidParams, "only .xlsx files are supported")
		return
	}
	if fh.Size > maxImportFileSize {
		response.Error(c, http.StatusRequestEntityTooLarge, 41300, "file too large")
		return
	}

	f, err := fh.Open()
	if err != nil {
		badParams(c, err)
		return
	}
	defer f.Close()

	rows, err := h.userSvc.ParseImportFile(f)
	if err != nil {
		handleError(c, err)
		return
	}

	result, err := h.userSvc.ImportUsers(c.Request.Context(), rows)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, result)
}
