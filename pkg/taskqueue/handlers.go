package taskqueue

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ProcessFunc 文档摄入执行函数
// 由服务层提供，返回入库的分块数量
type ProcessFunc func(ctx context.Context, documentID string, filePath string) (int, error)

// DocumentProcessHandler 文档处理任务的处理器
// 在工作者进程内执行完整的摄入流程并记录结果
type DocumentProcessHandler struct {
	queue   Queue          // 任务队列，用于记录任务结果
	process ProcessFunc    // 具体的摄入执行函数
	logger  *logrus.Logger // 日志记录器
}

// NewDocumentProcessHandler 创建文档处理任务的处理器
func NewDocumentProcessHandler(queue Queue, process ProcessFunc, logger *logrus.Logger) *DocumentProcessHandler {
	if logger == nil {
		logger = logrus.New()
	}

	return &DocumentProcessHandler{
		queue:   queue,
		process: process,
		logger:  logger,
	}
}

// GetTaskTypes 返回此处理器支持的任务类型
func (h *DocumentProcessHandler) GetTaskTypes() []TaskType {
	return []TaskType{TaskProcessComplete}
}

// ProcessTask 处理文档处理任务
// 载荷非法时直接失败，不触发重试
func (h *DocumentProcessHandler) ProcessTask(ctx context.Context, task *Task) error {
	var payload ProcessCompletePayload
	if err := UnmarshalPayload(task.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if payload.FilePath == "" {
		return fmt.Errorf("%w: file path is empty", ErrInvalidPayload)
	}

	h.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"document_id": task.DocumentID,
		"file_name":   payload.FileName,
	}).Info("Processing document task")

	chunkCount, err := h.process(ctx, task.DocumentID, payload.FilePath)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"task_id":     task.ID,
			"document_id": task.DocumentID,
		}).Error("Document processing failed")
		return err
	}

	// 记录处理结果，失败只影响结果查询，不影响任务本身
	result := &ProcessCompleteResult{
		DocumentID: task.DocumentID,
		ChunkCount: chunkCount,
	}
	if err := h.queue.UpdateTaskStatus(ctx, task.ID, StatusCompleted, result, ""); err != nil {
		h.logger.WithError(err).WithField("task_id", task.ID).Warn("Failed to record task result")
	}

	h.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"document_id": task.DocumentID,
		"chunk_count": chunkCount,
	}).Info("Document task completed")

	return nil
}
