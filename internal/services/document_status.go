package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ragkit/doc-rag/internal/models"
	"github.com/ragkit/doc-rag/internal/repository"
	"github.com/sirupsen/logrus"
)

// DocumentStatusManager 管理文档处理的生命周期状态
// 状态机: uploaded -> processing -> completed/failed，失败的文档允许重新处理
type DocumentStatusManager struct {
	repo   repository.DocumentRepository
	logger *logrus.Logger

	// 串行化状态读取和更新，避免并发标记互相覆盖
	mu sync.Mutex
}

// NewDocumentStatusManager 创建文档状态管理器
func NewDocumentStatusManager(repo repository.DocumentRepository, logger *logrus.Logger) *DocumentStatusManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &DocumentStatusManager{
		repo:   repo,
		logger: logger,
	}
}

// MarkAsUploaded 登记新上传的文档，初始状态为uploaded
func (m *DocumentStatusManager) MarkAsUploaded(ctx context.Context, docID string, fileName string, filePath string, fileSize int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"doc_id":   docID,
		"filename": fileName,
	}).Info("Marking document as uploaded")

	now := time.Now()
	return m.repo.Create(&models.Document{
		ID:         docID,
		FileName:   fileName,
		FileType:   fileTypeOf(fileName),
		FilePath:   filePath,
		FileSize:   fileSize,
		Status:     models.DocStatusUploaded,
		UploadedAt: now,
		UpdatedAt:  now,
	})
}

// MarkAsProcessing 将文档标记为处理中
func (m *DocumentStatusManager) MarkAsProcessing(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkTransition(docID, models.DocStatusProcessing); err != nil {
		return err
	}

	m.logger.WithField("doc_id", docID).Info("Marking document as processing")
	return m.repo.UpdateStatus(docID, models.DocStatusProcessing, "")
}

// MarkAsCompleted 将文档标记为处理完成并记录段落数
func (m *DocumentStatusManager) MarkAsCompleted(ctx context.Context, docID string, segmentCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.repo.GetByID(docID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	if err := m.ValidateStateTransition(doc.Status, models.DocStatusCompleted); err != nil {
		return fmt.Errorf("%w: document %s is %s", err, docID, doc.Status)
	}

	m.logger.WithFields(logrus.Fields{
		"doc_id":        docID,
		"segment_count": segmentCount,
	}).Info("Marking document as completed")

	if err := m.repo.UpdateStatus(docID, models.DocStatusCompleted, ""); err != nil {
		return err
	}

	doc.Status = models.DocStatusCompleted
	doc.SegmentCount = segmentCount
	doc.Progress = 100
	return m.repo.Update(doc)
}

// MarkAsFailed 将文档标记为处理失败
// 不做状态校验，任何阶段的失败都要能落库
func (m *DocumentStatusManager) MarkAsFailed(ctx context.Context, docID string, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.repo.GetByID(docID); err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"doc_id": docID,
		"error":  errorMsg,
	}).Error("Marking document as failed")

	return m.repo.UpdateStatus(docID, models.DocStatusFailed, errorMsg)
}

// UpdateProgress 更新处理进度，仅处理中的文档有效
func (m *DocumentStatusManager) UpdateProgress(ctx context.Context, docID string, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.repo.GetByID(docID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	if doc.Status != models.DocStatusProcessing {
		return fmt.Errorf("cannot update progress: document %s is not in processing state", docID)
	}

	m.logger.WithFields(logrus.Fields{
		"doc_id":   docID,
		"progress": progress,
	}).Debug("Updating document progress")

	return m.repo.UpdateProgress(docID, progress)
}

// GetStatus 查询文档当前状态
func (m *DocumentStatusManager) GetStatus(ctx context.Context, docID string) (models.DocumentStatus, error) {
	doc, err := m.repo.GetByID(docID)
	if err != nil {
		return "", fmt.Errorf("failed to get document status: %w", err)
	}
	return doc.Status, nil
}

// GetDocument 查询完整的文档记录
func (m *DocumentStatusManager) GetDocument(ctx context.Context, docID string) (*models.Document, error) {
	return m.repo.GetByID(docID)
}

// ListDocuments 分页查询文档列表
func (m *DocumentStatusManager) ListDocuments(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error) {
	return m.repo.List(offset, limit, filters)
}

// DeleteDocument 删除文档记录及其段落
func (m *DocumentStatusManager) DeleteDocument(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.WithField("doc_id", docID).Info("Deleting document status record")
	return m.repo.Delete(docID)
}

// 各状态允许进入的下一个状态
var validStatusTransitions = map[models.DocumentStatus][]models.DocumentStatus{
	models.DocStatusUploaded: {
		models.DocStatusProcessing,
		models.DocStatusCompleted, // 同步处理的小文件直接完成
		models.DocStatusFailed,
	},
	models.DocStatusProcessing: {
		models.DocStatusCompleted,
		models.DocStatusFailed,
	},
	models.DocStatusCompleted: {},
	models.DocStatusFailed:    {models.DocStatusProcessing}, // 重试
}

// ValidateStateTransition 校验状态流转是否合法
func (m *DocumentStatusManager) ValidateStateTransition(from, to models.DocumentStatus) error {
	for _, allowed := range validStatusTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", models.ErrInvalidDocumentStatus, from, to)
}

// checkTransition 读取文档并校验到目标状态的流转
func (m *DocumentStatusManager) checkTransition(docID string, to models.DocumentStatus) error {
	doc, err := m.repo.GetByID(docID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	if err := m.ValidateStateTransition(doc.Status, to); err != nil {
		return fmt.Errorf("document %s: %w", docID, err)
	}
	return nil
}

// fileTypeOf 从文件名提取小写的扩展名(不含点号)
func fileTypeOf(fileName string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
}
