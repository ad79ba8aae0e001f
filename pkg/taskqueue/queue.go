package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// 队列公共错误
var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrTaskTimeout    = errors.New("task timed out")
	ErrInvalidPayload = errors.New("invalid task payload")
)

// Queue 任务队列接口，负责任务的入队、查询和状态维护
type Queue interface {
	// Enqueue 将任务加入队列，返回任务ID
	Enqueue(ctx context.Context, taskType TaskType, documentID string, payload interface{}) (string, error)

	// EnqueueAt 在指定时间点执行任务
	EnqueueAt(ctx context.Context, taskType TaskType, documentID string, payload interface{}, processAt time.Time) (string, error)

	// EnqueueIn 延迟指定时长后执行任务
	EnqueueIn(ctx context.Context, taskType TaskType, documentID string, payload interface{}, delay time.Duration) (string, error)

	// GetTask 查询任务详情
	GetTask(ctx context.Context, taskID string) (*Task, error)

	// GetTasksByDocument 查询某个文档关联的全部任务
	GetTasksByDocument(ctx context.Context, documentID string) ([]*Task, error)

	// WaitForTask 阻塞等待任务进入终态，timeout为0表示不限时
	WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error)

	// DeleteTask 删除任务记录
	DeleteTask(ctx context.Context, taskID string) error

	// UpdateTaskStatus 更新任务状态和结果
	UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errorMsg string) error

	// NotifyTaskUpdate 广播任务状态变更
	NotifyTaskUpdate(ctx context.Context, taskID string) error

	// Close 关闭队列连接
	Close() error
}

// Handler 实际执行任务的处理器
type Handler interface {
	ProcessTask(ctx context.Context, task *Task) error

	// GetTaskTypes 返回处理器支持的任务类型
	GetTaskTypes() []TaskType
}

// Worker 运行一组Handler消费队列中的任务
type Worker interface {
	RegisterHandler(taskType TaskType, handler Handler)
	Start() error
	Stop()
}

// Config 队列配置
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int            // 并发消费数
	RetryLimit    int            // 单个任务最大重试次数
	RetryDelay    time.Duration  // 重试间隔
	Queues        map[string]int // 队列名到权重
}

// DefaultConfig 返回默认队列配置
func DefaultConfig() *Config {
	return &Config{
		RedisAddr:   "localhost:6379",
		Concurrency: 10,
		RetryLimit:  3,
		RetryDelay:  time.Minute,
		Queues: map[string]int{
			"critical": 6,
			"default":  3,
			"low":      1,
		},
	}
}

// Factory 队列实现的构造函数类型
type Factory func(cfg *Config) (Queue, error)

// MarshalPayload 将任务载荷序列化成JSON
func MarshalPayload(payload interface{}) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(payload)
}

// UnmarshalPayload 将JSON载荷解析到目标结构
func UnmarshalPayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
