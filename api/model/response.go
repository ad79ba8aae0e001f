package model

import (
	"time"

	"github.com/ragkit/doc-rag/internal/metadata"
)

// Response 统一的响应包装
// code为0表示成功，业务错误用非零code加message表达
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
}

// NewSuccessResponse 构造成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{Message: "success", Data: data}
}

// NewErrorResponse 构造错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{Code: code, Message: message}
}

// DocumentUploadResponse 上传接口的响应体
// 同步处理时status为completed并携带入库的分块数，
// 异步处理时status为processing，分块数通过状态接口查询
type DocumentUploadResponse struct {
	FileID          string `json:"file_id"`
	FileName        string `json:"filename"`
	Status          string `json:"status"`
	ChunksProcessed int    `json:"chunks_processed"`
}

// DocumentStatusResponse 状态查询接口的响应体
type DocumentStatusResponse struct {
	FileID    string `json:"file_id"`
	Status    string `json:"status"`
	FileName  string `json:"filename"`
	Error     string `json:"error,omitempty"`
	Segments  int    `json:"segments,omitempty"` // 处理完成后的段落数
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// DocumentInfo 列表接口中的单条文档信息
type DocumentInfo struct {
	FileID     string                 `json:"file_id"`
	FileName   string                 `json:"filename"`
	Status     string                 `json:"status"`
	Tags       string                 `json:"tags"`
	UploadTime time.Time              `json:"upload_time"`
	Segments   int                    `json:"segments"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// DocumentListResponse 列表接口的响应体
type DocumentListResponse struct {
	Total     int            `json:"total"`
	Page      int            `json:"page"`
	PageSize  int            `json:"page_size"`
	Documents []DocumentInfo `json:"documents"`
}

// DocumentDeleteResponse 删除接口的响应体
type DocumentDeleteResponse struct {
	Success bool   `json:"success"`
	FileID  string `json:"file_id"`
}

// QASourceInfo 回答引用的单个来源，对应一个检索到的分块
type QASourceInfo struct {
	Source string `json:"source"`
	Page   string `json:"page"` // 页码，无页码的文档用行号或分块序号等替代值
}

// QAResponse 问答接口的响应体
type QAResponse struct {
	Question string         `json:"question"`
	Answer   string         `json:"answer"`
	Sources  []QASourceInfo `json:"sources"`
}

// ConvertToSourceInfo 把归一化来源转成响应格式
func ConvertToSourceInfo(sources []metadata.NormalizedSource) []QASourceInfo {
	result := make([]QASourceInfo, len(sources))
	for i, source := range sources {
		result[i] = QASourceInfo{
			Source: source.Source,
			Page:   source.Page,
		}
	}
	return result
}
