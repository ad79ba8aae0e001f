package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskProcessComplete 文档处理完整流程任务
	// 提取、分块、向量化和入库在同一个任务内完成
	TaskProcessComplete TaskType = "process_complete"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// Terminal 判断状态是否为终态
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task 任务基础结构
type Task struct {
	ID          string          `json:"id"`           // 任务唯一标识符
	Type        TaskType        `json:"type"`         // 任务类型
	DocumentID  string          `json:"document_id"`  // 关联的文档ID
	Status      TaskStatus      `json:"status"`       // 任务状态
	Payload     json.RawMessage `json:"payload"`      // 任务载荷数据
	Result      json.RawMessage `json:"result"`       // 任务结果数据
	Error       string          `json:"error"`        // 错误信息（如果处理失败）
	CreatedAt   time.Time       `json:"created_at"`   // 创建时间
	UpdatedAt   time.Time       `json:"updated_at"`   // 更新时间
	StartedAt   *time.Time      `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time      `json:"completed_at"` // 完成时间
	Attempts    int             `json:"attempts"`     // 尝试次数
	MaxRetries  int             `json:"max_retries"`  // 最大重试次数
}

// ProcessCompletePayload 完整处理流程任务载荷
type ProcessCompletePayload struct {
	DocumentID string            `json:"document_id"` // 文档ID
	FilePath   string            `json:"file_path"`   // 文件路径
	FileName   string            `json:"file_name"`   // 文件名
	FileType   string            `json:"file_type"`   // 文件类型
	ChunkSize  int               `json:"chunk_size"`  // 分块大小
	Overlap    int               `json:"overlap"`     // 重叠大小
	SplitType  string            `json:"split_type"`  // 分割类型
	Model      string            `json:"model"`       // 嵌入模型
	Metadata   map[string]string `json:"metadata"`    // 元数据
}

// ProcessCompleteResult 完整处理流程结果
type ProcessCompleteResult struct {
	DocumentID string `json:"document_id"` // 文档ID
	ChunkCount int    `json:"chunk_count"` // 入库的分块数量
	Error      string `json:"error"`       // 错误信息（如果有）
}
