package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ragkit/doc-rag/internal/database"
	"github.com/ragkit/doc-rag/internal/models"
	"github.com/ragkit/doc-rag/pkg/taskqueue"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrTaskQueueDisabled 仓储未配置任务队列时任务相关操作返回此错误
var ErrTaskQueueDisabled = errors.New("task queue not initialized")

// docRepository 文档仓储的gorm实现
type docRepository struct {
	db        *gorm.DB
	taskQueue taskqueue.Queue
	ctx       context.Context
}

// NewDocumentRepository 使用全局数据库连接创建文档仓储
func NewDocumentRepository() DocumentRepository {
	return NewDocumentRepositoryWithDB(nil)
}

// NewDocumentRepositoryWithDB 使用指定数据库连接创建文档仓储，db为nil时取全局连接
func NewDocumentRepositoryWithDB(db *gorm.DB) DocumentRepository {
	return NewDocumentRepositoryWithQueue(db, nil)
}

// NewDocumentRepositoryWithQueue 创建关联任务队列的文档仓储
func NewDocumentRepositoryWithQueue(db *gorm.DB, queue taskqueue.Queue) DocumentRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &docRepository{
		db:        db,
		taskQueue: queue,
		ctx:       context.Background(),
	}
}

// Create 插入文档记录
func (r *docRepository) Create(doc *models.Document) error {
	if doc.ID == "" {
		return errors.New("document ID cannot be empty")
	}
	return r.db.Create(doc).Error
}

// Update 保存文档记录的全部字段
func (r *docRepository) Update(doc *models.Document) error {
	if doc.ID == "" {
		return errors.New("document ID cannot be empty")
	}
	return r.db.Save(doc).Error
}

// GetByID 按ID查询文档，不存在时返回models.ErrDocumentNotFound
func (r *docRepository) GetByID(id string) (*models.Document, error) {
	var doc models.Document
	if err := r.db.Where("id = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
		}
		return nil, err
	}
	return &doc, nil
}

// List 分页查询文档，filters支持status、tags、file_name和上传时间范围
func (r *docRepository) List(offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error) {
	query := applyDocumentFilters(r.db.Model(&models.Document{}), filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var docs []*models.Document
	err := query.Order("uploaded_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&docs).Error
	if err != nil {
		return nil, 0, err
	}

	return docs, total, nil
}

// applyDocumentFilters 把过滤条件转成查询子句
func applyDocumentFilters(query *gorm.DB, filters map[string]interface{}) *gorm.DB {
	if status := filterString(filters, "status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if tags := filterString(filters, "tags"); tags != "" {
		query = query.Where("tags LIKE ?", "%"+tags+"%")
	}
	if fileName := filterString(filters, "file_name"); fileName != "" {
		query = query.Where("file_name LIKE ?", "%"+fileName+"%")
	}
	if start := filterString(filters, "start_time"); start != "" {
		query = query.Where("uploaded_at >= ?", start)
	}
	if end := filterString(filters, "end_time"); end != "" {
		query = query.Where("uploaded_at <= ?", end)
	}
	return query
}

// filterString 取出过滤条件并统一成字符串
func filterString(filters map[string]interface{}, key string) string {
	if filters == nil {
		return ""
	}
	value, ok := filters[key]
	if !ok {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case models.DocumentStatus:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Delete 在事务中删除文档及其段落，并清理关联任务
func (r *docRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&models.DocumentSegment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", id).Delete(&models.Document{}).Error; err != nil {
			return err
		}

		if r.taskQueue != nil {
			ctx := r.getContext()
			tasks, err := r.taskQueue.GetTasksByDocument(ctx, id)
			if err == nil {
				for _, task := range tasks {
					// 任务可能已被清理，忽略删除失败
					_ = r.taskQueue.DeleteTask(ctx, task.ID)
				}
			}
		}

		return nil
	})
}

// UpdateStatus 更新文档状态，终态同时写入处理完成时间
func (r *docRepository) UpdateStatus(id string, status models.DocumentStatus, errorMsg string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if errorMsg != "" {
		updates["error"] = errorMsg
	}
	if status == models.DocStatusCompleted || status == models.DocStatusFailed {
		now := time.Now()
		updates["processed_at"] = &now
	}

	return r.db.Model(&models.Document{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdateProgress 更新处理进度，取值限定在0-100
func (r *docRepository) UpdateProgress(id string, progress int) error {
	if progress < 0 {
		progress = 0
	} else if progress > 100 {
		progress = 100
	}

	return r.db.Model(&models.Document{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"progress":   progress,
			"updated_at": time.Now(),
		}).Error
}

// SaveSegment 保存单个文档段落
func (r *docRepository) SaveSegment(segment *models.DocumentSegment) error {
	return r.db.Create(segment).Error
}

// SaveSegments 批量保存段落
func (r *docRepository) SaveSegments(segments []*models.DocumentSegment) error {
	if len(segments) == 0 {
		return nil
	}
	return r.db.CreateInBatches(segments, 100).Error
}

// GetSegments 按位置顺序返回文档的全部段落
func (r *docRepository) GetSegments(docID string) ([]*models.DocumentSegment, error) {
	var segments []*models.DocumentSegment
	err := r.db.Where("document_id = ?", docID).
		Order("position ASC").
		Find(&segments).Error
	return segments, err
}

// CountSegments 统计文档段落数量
func (r *docRepository) CountSegments(docID string) (int, error) {
	var count int64
	err := r.db.Model(&models.DocumentSegment{}).
		Where("document_id = ?", docID).
		Count(&count).Error
	return int(count), err
}

// DeleteSegments 删除文档的全部段落
func (r *docRepository) DeleteSegments(docID string) error {
	return r.db.Where("document_id = ?", docID).
		Delete(&models.DocumentSegment{}).Error
}

func (r *docRepository) getContext() context.Context {
	if r.ctx != nil {
		return r.ctx
	}
	return context.Background()
}

// GetDocumentTasks 返回文档关联的全部任务
func (r *docRepository) GetDocumentTasks(ctx context.Context, documentID string) ([]*taskqueue.Task, error) {
	if r.taskQueue == nil {
		return nil, ErrTaskQueueDisabled
	}
	return r.taskQueue.GetTasksByDocument(ctx, documentID)
}

// CreateTask 为文档入队任务并把文档置为处理中
func (r *docRepository) CreateTask(ctx context.Context, taskType taskqueue.TaskType, documentID string, payload interface{}) (string, error) {
	if r.taskQueue == nil {
		return "", ErrTaskQueueDisabled
	}

	if _, err := r.GetByID(documentID); err != nil {
		return "", err
	}

	taskID, err := r.taskQueue.Enqueue(ctx, taskType, documentID, payload)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	// 任务已入队，状态更新失败只记录
	if err := r.UpdateStatus(documentID, models.DocStatusProcessing, ""); err != nil {
		logrus.WithError(err).WithField("document_id", documentID).
			Warn("Failed to update document status after enqueue")
	}

	return taskID, nil
}

// DeleteTask 删除任务记录
func (r *docRepository) DeleteTask(ctx context.Context, taskID string) error {
	if r.taskQueue == nil {
		return ErrTaskQueueDisabled
	}
	return r.taskQueue.DeleteTask(ctx, taskID)
}
