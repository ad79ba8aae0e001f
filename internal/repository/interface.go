package repository

import (
	"context"

	"github.com/ragkit/doc-rag/internal/models"
	"github.com/ragkit/doc-rag/pkg/taskqueue"
)

// DocumentRepository 文档元数据和段落的存取接口
// 文档及段落记录落在关系库，处理任务走任务队列
type DocumentRepository interface {
	Create(doc *models.Document) error
	Update(doc *models.Document) error
	GetByID(id string) (*models.Document, error)

	// List 分页查询文档，filters支持status、tags、file_name和时间范围
	List(offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error)

	// Delete 删除文档及其段落，两者在同一事务内
	Delete(id string) error

	UpdateStatus(id string, status models.DocumentStatus, errorMsg string) error
	UpdateProgress(id string, progress int) error

	SaveSegment(segment *models.DocumentSegment) error
	SaveSegments(segments []*models.DocumentSegment) error
	GetSegments(docID string) ([]*models.DocumentSegment, error)
	CountSegments(docID string) (int, error)
	DeleteSegments(docID string) error

	// CreateTask 入队处理任务并把文档置为处理中
	CreateTask(ctx context.Context, taskType taskqueue.TaskType, documentID string, payload interface{}) (string, error)

	// GetDocumentTasks 查询文档关联的全部任务
	GetDocumentTasks(ctx context.Context, documentID string) ([]*taskqueue.Task, error)

	// DeleteTask 删除任务记录
	DeleteTask(ctx context.Context, taskID string) error
}
