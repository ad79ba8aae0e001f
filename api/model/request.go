package model

import (
	"mime/multipart"
	"time"
)

// PaginationRequest 通用分页参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"`
}

// GetPage 返回页码，未指定时为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 返回每页条数，默认10，上限100
func (p *PaginationRequest) GetPageSize() int {
	switch {
	case p.PageSize <= 0:
		return 10
	case p.PageSize > 100:
		return 100
	default:
		return p.PageSize
	}
}

// DocumentUploadRequest 文档上传请求，multipart表单
type DocumentUploadRequest struct {
	File *multipart.FileHeader `form:"file" binding:"required"`
	Tags string                `form:"tags" json:"tags" binding:"omitempty"` // 逗号分隔
}

// DocumentStatusRequest 文档状态查询请求
type DocumentStatusRequest struct {
	ID string `uri:"id" binding:"required"`
}

// DocumentListRequest 文档列表查询请求
type DocumentListRequest struct {
	PaginationRequest
	StartTime *time.Time `form:"start_time" json:"start_time" binding:"omitempty"`
	EndTime   *time.Time `form:"end_time" json:"end_time" binding:"omitempty"`
	Status    string     `form:"status" json:"status" binding:"omitempty"`
	Tags      string     `form:"tags" json:"tags" binding:"omitempty"`
}

// DocumentDeleteRequest 文档删除请求
type DocumentDeleteRequest struct {
	ID string `uri:"id" binding:"required"`
}

// QARequest 问答请求
type QARequest struct {
	Question string `json:"question" binding:"required"`
}
