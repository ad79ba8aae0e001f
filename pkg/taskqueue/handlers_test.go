package taskqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockQueue Queue接口的mock实现
type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Enqueue(ctx context.Context, taskType TaskType, documentID string, payload interface{}) (string, error) {
	args := m.Called(ctx, taskType, documentID, payload)
	return args.String(0), args.Error(1)
}

func (m *MockQueue) EnqueueAt(ctx context.Context, taskType TaskType, documentID string, payload interface{}, processAt time.Time) (string, error) {
	args := m.Called(ctx, taskType, documentID, payload, processAt)
	return args.String(0), args.Error(1)
}

func (m *MockQueue) EnqueueIn(ctx context.Context, taskType TaskType, documentID string, payload interface{}, delay time.Duration) (string, error) {
	args := m.Called(ctx, taskType, documentID, payload, delay)
	return args.String(0), args.Error(1)
}

func (m *MockQueue) GetTask(ctx context.Context, taskID string) (*Task, error) {
	args := m.Called(ctx, taskID)
	if task := args.Get(0); task != nil {
		return task.(*Task), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockQueue) GetTasksByDocument(ctx context.Context, documentID string) ([]*Task, error) {
	args := m.Called(ctx, documentID)
	if tasks := args.Get(0); tasks != nil {
		return tasks.([]*Task), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockQueue) WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error) {
	args := m.Called(ctx, taskID, timeout)
	if task := args.Get(0); task != nil {
		return task.(*Task), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockQueue) DeleteTask(ctx context.Context, taskID string) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}

func (m *MockQueue) UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errorMsg string) error {
	args := m.Called(ctx, taskID, status, result, errorMsg)
	return args.Error(0)
}

func (m *MockQueue) NotifyTaskUpdate(ctx context.Context, taskID string) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}

func (m *MockQueue) Close() error {
	args := m.Called()
	return args.Error(0)
}

func processTask(payload *ProcessCompletePayload) *Task {
	raw, _ := MarshalPayload(payload)
	return &Task{
		ID:         "task-1",
		Type:       TaskProcessComplete,
		DocumentID: payload.DocumentID,
		Status:     StatusProcessing,
		Payload:    raw,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

// TestDocumentProcessHandler 测试文档处理任务的完整执行路径
func TestDocumentProcessHandler(t *testing.T) {
	mockQueue := new(MockQueue)

	var gotDocumentID, gotFilePath string
	handler := NewDocumentProcessHandler(mockQueue, func(ctx context.Context, documentID string, filePath string) (int, error) {
		gotDocumentID = documentID
		gotFilePath = filePath
		return 7, nil
	}, logrus.New())

	task := processTask(&ProcessCompletePayload{
		DocumentID: "doc-1",
		FilePath:   "/data/uploads/doc-1.pdf",
		FileName:   "doc-1.pdf",
	})

	// 处理成功后应记录结果
	mockQueue.On("UpdateTaskStatus", mock.Anything, "task-1", StatusCompleted,
		&ProcessCompleteResult{DocumentID: "doc-1", ChunkCount: 7}, "").Return(nil)

	err := handler.ProcessTask(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, "doc-1", gotDocumentID)
	assert.Equal(t, "/data/uploads/doc-1.pdf", gotFilePath)
	mockQueue.AssertExpectations(t)
}

// TestDocumentProcessHandlerFailure 处理失败时错误应透传给工作者
func TestDocumentProcessHandlerFailure(t *testing.T) {
	mockQueue := new(MockQueue)

	processErr := errors.New("extraction failed")
	handler := NewDocumentProcessHandler(mockQueue, func(ctx context.Context, documentID string, filePath string) (int, error) {
		return 0, processErr
	}, logrus.New())

	task := processTask(&ProcessCompletePayload{
		DocumentID: "doc-1",
		FilePath:   "/data/uploads/doc-1.pdf",
	})

	err := handler.ProcessTask(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, processErr)

	// 失败时不应写入完成结果
	mockQueue.AssertNotCalled(t, "UpdateTaskStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// TestDocumentProcessHandlerInvalidPayload 非法载荷应直接失败
func TestDocumentProcessHandlerInvalidPayload(t *testing.T) {
	mockQueue := new(MockQueue)

	called := false
	handler := NewDocumentProcessHandler(mockQueue, func(ctx context.Context, documentID string, filePath string) (int, error) {
		called = true
		return 0, nil
	}, nil)

	// 载荷不是合法JSON
	task := &Task{
		ID:      "task-bad",
		Type:    TaskProcessComplete,
		Payload: []byte("{not json"),
	}

	err := handler.ProcessTask(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.False(t, called)

	// 文件路径为空同样非法
	task = processTask(&ProcessCompletePayload{DocumentID: "doc-1"})
	err = handler.ProcessTask(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.False(t, called)
}

// TestDocumentProcessHandlerTaskTypes 处理器声明的任务类型
func TestDocumentProcessHandlerTaskTypes(t *testing.T) {
	handler := NewDocumentProcessHandler(new(MockQueue), nil, nil)
	assert.Equal(t, []TaskType{TaskProcessComplete}, handler.GetTaskTypes())
}
