package dto

// 列表分页默认值
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PaginationRequest 列表查询分页参数，page 从 1 开始
type PaginationRequest struct {
	Page     int `form:"page"      binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// GetPage 未传时为第 1 页
func (p *PaginationRequest) GetPage() int {
	return max(p.Page, 1)
}

// GetPageSize 未传取默认值，超出上限按上限处理
func (p *PaginationRequest) GetPageSize() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	}
	return p.PageSize
}

func (p *PaginationRequest) GetOffset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}
