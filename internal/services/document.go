package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/ragkit/doc-rag/internal/document"
	"github.com/ragkit/doc-rag/internal/embedding"
	"github.com/ragkit/doc-rag/internal/metadata"
	"github.com/ragkit/doc-rag/internal/models"
	"github.com/ragkit/doc-rag/internal/repository"
	"github.com/ragkit/doc-rag/internal/vectordb"
	"github.com/ragkit/doc-rag/pkg/storage"
	"github.com/ragkit/doc-rag/pkg/taskqueue"
	"github.com/sirupsen/logrus"
)

// defaultEmbedWorkers 向量化的并行请求数上限
const defaultEmbedWorkers = 4

// DocumentService 文档服务
// 负责协调文档提取、分块、打标、嵌入和入库
type DocumentService struct {
	storage       storage.Storage               // 文件存储服务
	splitter      document.Splitter             // 文本分块器
	tagger        *metadata.Tagger              // 元数据打标器
	embedder      embedding.Client              // 嵌入模型客户端
	batcher       embedding.BatchProcessor      // 并行分批向量化
	vectorDB      vectordb.Repository           // 向量数据库
	repo          repository.DocumentRepository // 文档元数据存储
	statusManager *DocumentStatusManager        // 文档状态管理器
	taskQueue     taskqueue.Queue               // 任务队列
	asyncEnabled  bool                          // 是否启用异步处理
	batchSize     int                           // 批处理大小
	timeout       time.Duration                 // 处理超时时间
	logger        *logrus.Logger                // 日志记录器
}

// IngestResult 文档摄入结果
type IngestResult struct {
	DocumentID      string // 文档ID
	ChunksProcessed int    // 处理的分块数量
}

// DocumentOption 文档服务配置选项
type DocumentOption func(*DocumentService)

// NewDocumentService 创建一个新的文档服务
func NewDocumentService(
	storage storage.Storage,
	splitter document.Splitter,
	embedder embedding.Client,
	vectorDB vectordb.Repository,
	opts ...DocumentOption,
) *DocumentService {
	srv := &DocumentService{
		storage:      storage,
		splitter:     splitter,
		tagger:       metadata.NewTagger(),
		embedder:     embedder,
		vectorDB:     vectorDB,
		batchSize:    16,              // 默认批处理大小
		timeout:      time.Minute * 5, // 默认超时时间
		logger:       logrus.New(),    // 默认日志记录器
		asyncEnabled: false,           // 默认不启用异步处理
	}

	for _, opt := range opts {
		opt(srv)
	}

	// 批处理大小由选项决定，所以批处理器在选项应用后创建
	if srv.batcher == nil {
		srv.batcher = embedding.NewBatchProcessor(embedder, srv.batchSize, defaultEmbedWorkers)
	}

	return srv
}

// WithBatchSize 设置批处理大小
func WithBatchSize(size int) DocumentOption {
	return func(s *DocumentService) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithTimeout 设置处理超时时间
func WithTimeout(timeout time.Duration) DocumentOption {
	return func(s *DocumentService) {
		s.timeout = timeout
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) DocumentOption {
	return func(s *DocumentService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDocumentRepository 设置文档仓储
func WithDocumentRepository(repo repository.DocumentRepository) DocumentOption {
	return func(s *DocumentService) {
		s.repo = repo
	}
}

// WithStatusManager 设置状态管理器
func WithStatusManager(manager *DocumentStatusManager) DocumentOption {
	return func(s *DocumentService) {
		s.statusManager = manager
	}
}

// WithTaskQueue 设置任务队列
func WithTaskQueue(queue taskqueue.Queue) DocumentOption {
	return func(s *DocumentService) {
		s.taskQueue = queue
		s.asyncEnabled = queue != nil
	}
}

// WithAsyncProcessing 设置是否启用异步处理
func WithAsyncProcessing(enabled bool) DocumentOption {
	return func(s *DocumentService) {
		s.asyncEnabled = enabled
	}
}

// AsyncEnabled 返回文档处理是否走异步任务队列
func (s *DocumentService) AsyncEnabled() bool {
	return s.asyncEnabled && s.taskQueue != nil
}

// Init 初始化文档服务
// 确保必要的依赖都已设置
func (s *DocumentService) Init() error {
	if s.repo == nil {
		s.repo = repository.NewDocumentRepository()
	}

	if s.statusManager == nil {
		s.statusManager = NewDocumentStatusManager(s.repo, s.logger)
	}

	return nil
}

// RegisterUpload 登记新上传的文档
// 在处理开始前先落库，保证状态查询和文档列表可见
func (s *DocumentService) RegisterUpload(ctx context.Context, fileID string, fileName string, filePath string, fileSize int64) error {
	if err := s.Init(); err != nil {
		return err
	}

	return s.statusManager.MarkAsUploaded(ctx, fileID, fileName, filePath, fileSize)
}

// ProcessDocument 处理文档(提取、分块、向量化、入库)
func (s *DocumentService) ProcessDocument(ctx context.Context, fileID string, filePath string) error {
	if err := s.Init(); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"file_id":   fileID,
		"file_path": filePath,
	}).Info("Starting document processing")

	if fileID == "" {
		return errors.New("fileID cannot be empty")
	}
	if filePath == "" {
		return errors.New("filePath cannot be empty")
	}

	// 如果启用异步处理并且任务队列已配置，使用任务队列处理
	if s.asyncEnabled && s.taskQueue != nil {
		return s.processDocumentAsync(ctx, fileID, filePath)
	}

	return s.processDocumentSync(ctx, fileID, filePath)
}

// processDocumentAsync 异步处理文档
// 将任务加入队列并立即返回
func (s *DocumentService) processDocumentAsync(ctx context.Context, fileID string, filePath string) error {
	s.logger.WithFields(logrus.Fields{
		"file_id":   fileID,
		"file_path": filePath,
	}).Info("Enqueuing document for async processing")

	// 更新文档状态为处理中
	if err := s.statusManager.MarkAsProcessing(ctx, fileID); err != nil {
		s.logger.WithError(err).Error("Failed to mark document as processing")
		// 继续处理，不中断
	}

	fileName := filepath.Base(filePath)
	fileType := filepath.Ext(fileName)
	if fileType != "" && fileType[0] == '.' {
		fileType = fileType[1:]
	}

	cfg := s.splitterConfig()
	payload := taskqueue.ProcessCompletePayload{
		DocumentID: fileID,
		FilePath:   filePath,
		FileName:   fileName,
		FileType:   fileType,
		ChunkSize:  cfg.ChunkSize,
		Overlap:    cfg.ChunkOverlap,
		SplitType:  "text",
		Model:      s.embedder.Name(),
		Metadata: map[string]string{
			"source":     "api",
			"created_by": "document_service",
		},
	}

	taskID, err := s.repo.CreateTask(ctx, taskqueue.TaskProcessComplete, fileID, payload)
	if err != nil {
		s.failDocument(ctx, fileID, fmt.Sprintf("failed to create processing task: %v", err))
		return fmt.Errorf("failed to create processing task: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"file_id": fileID,
		"task_id": taskID,
	}).Info("Document processing task created successfully")

	return nil
}

// splitterConfig 获取当前分块配置
func (s *DocumentService) splitterConfig() document.SplitterConfig {
	if cfg, ok := s.splitter.(interface{ Config() document.SplitterConfig }); ok {
		return cfg.Config()
	}
	return document.DefaultSplitterConfig()
}

// processDocumentSync 同步处理文档
// 直接在当前进程中处理文档
func (s *DocumentService) processDocumentSync(ctx context.Context, fileID string, filePath string) error {
	_, err := s.ProcessStoredDocument(ctx, fileID, filePath)
	return err
}

// ProcessStoredDocument 对存储中的文档执行完整的摄入流程
// 任务队列工作者也通过此方法执行异步任务，返回入库的分块数量
func (s *DocumentService) ProcessStoredDocument(ctx context.Context, fileID string, filePath string) (int, error) {
	if err := s.Init(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// 更新文档状态为处理中
	if err := s.statusManager.MarkAsProcessing(ctx, fileID); err != nil {
		s.logger.WithError(err).Error("Failed to mark document as processing")
		// 继续处理，不中断
	}

	reader, err := s.openDocument(filePath)
	if err != nil {
		s.failDocument(ctx, fileID, fmt.Sprintf("failed to open document: %v", err))
		return 0, fmt.Errorf("failed to open document: %w", err)
	}
	defer reader.Close()

	// 引用来源优先使用登记时的原始文件名，存储路径里只有生成的标识符
	fileName := filepath.Base(filePath)
	if doc, docErr := s.statusManager.GetDocument(ctx, fileID); docErr == nil && doc.FileName != "" {
		fileName = doc.FileName
	}

	result, err := s.Ingest(ctx, fileID, fileName, reader)
	if err != nil {
		s.failDocument(ctx, fileID, err.Error())
		return 0, err
	}

	// 文档处理完成，更新状态
	if err := s.statusManager.MarkAsCompleted(ctx, fileID, result.ChunksProcessed); err != nil {
		s.logger.WithError(err).Error("Failed to mark document as completed")
		// 虽然状态更新失败，但文档处理成功，所以不返回错误
	}

	s.logger.WithFields(logrus.Fields{
		"file_id":     fileID,
		"chunk_count": result.ChunksProcessed,
	}).Info("Document processing completed successfully")

	return result.ChunksProcessed, nil
}

// Ingest 摄入单个文档
// 提取文本、分块、打标、生成向量并一次性写入向量索引
// 任一分块写入失败时整个文档不入库
func (s *DocumentService) Ingest(ctx context.Context, fileID string, fileName string, r io.Reader) (*IngestResult, error) {
	if fileName == "" {
		return nil, errors.New("fileName cannot be empty")
	}

	// 根据扩展名选择提取器，不支持的格式直接返回类型化错误
	extractor, err := document.ExtractorFactory(fileName)
	if err != nil {
		return nil, err
	}

	units, err := extractor.Extract(r, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract document content: %w", err)
	}

	chunks, err := s.splitter.Split(units, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to split content: %w", err)
	}

	if len(chunks) == 0 {
		s.logger.WithField("file_name", fileName).Warn("Document produced no chunks")
		return &IngestResult{DocumentID: fileID, ChunksProcessed: 0}, nil
	}

	s.updateProgress(ctx, fileID, 20)

	records, err := s.buildRecords(ctx, fileID, chunks)
	if err != nil {
		return nil, err
	}

	// 整个文档的记录一次性写入，保证全有或全无
	if err := s.vectorDB.Upsert(records); err != nil {
		return nil, NewIndexWriteError(fileID, err)
	}

	s.updateProgress(ctx, fileID, 90)
	s.saveSegments(fileID, chunks, records)

	return &IngestResult{DocumentID: fileID, ChunksProcessed: len(chunks)}, nil
}

// buildRecords 为分块生成元数据和向量，构建入库记录
// 向量化交给批处理器按批并行执行
func (s *DocumentService) buildRecords(ctx context.Context, fileID string, chunks []document.Chunk) ([]vectordb.Record, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	vectors, err := s.batcher.Process(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(chunks), len(vectors))
	}

	s.updateProgress(ctx, fileID, 80)

	records := make([]vectordb.Record, len(chunks))
	for i, chunk := range chunks {
		if vectors[i] == nil {
			return nil, fmt.Errorf("no embedding returned for chunk %d", chunk.Index)
		}

		envelope, err := s.tagger.Tag(chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to tag chunk %d: %w", chunk.Index, err)
		}

		records[i] = vectordb.Record{
			ID:        fmt.Sprintf("%s_%d", fileID, chunk.Index),
			SourceID:  fileID,
			Content:   chunk.Content,
			Vector:    vectors[i],
			Metadata:  envelope.ToMap(),
			CreatedAt: time.Now(),
		}
	}

	return records, nil
}

// saveSegments 将分块记录保存到数据库
// 保存失败只记录日志，不影响主流程
func (s *DocumentService) saveSegments(fileID string, chunks []document.Chunk, records []vectordb.Record) {
	if s.repo == nil {
		return
	}

	segments := make([]*models.DocumentSegment, len(chunks))
	for i, chunk := range chunks {
		segments[i] = &models.DocumentSegment{
			DocumentID: fileID,
			SegmentID:  records[i].ID,
			Position:   chunk.Index,
			Page:       chunk.Page,
			Text:       chunk.Content,
			VectorID:   records[i].ID,
		}
	}

	if err := s.repo.SaveSegments(segments); err != nil {
		s.logger.WithError(err).Error("Failed to save segments to database")
	}
}

// openDocument 从存储中打开文档
func (s *DocumentService) openDocument(filePath string) (io.ReadCloser, error) {
	fileID := filepath.Base(filePath)
	fileID = fileID[:len(fileID)-len(filepath.Ext(fileID))]

	reader, err := s.storage.Get(fileID)
	if err != nil {
		s.logger.WithError(err).Debug("Failed to get file directly, trying with path")
		reader, err = s.storage.Get(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to get file from storage: %w", err)
		}
	}
	return reader, nil
}

// updateProgress 更新文档处理进度
// 进度更新失败只记录日志
func (s *DocumentService) updateProgress(ctx context.Context, fileID string, progress int) {
	if s.statusManager == nil || fileID == "" {
		return
	}
	if err := s.statusManager.UpdateProgress(ctx, fileID, progress); err != nil {
		s.logger.WithError(err).Warn("Failed to update document progress")
	}
}

// DeleteDocument 删除文档及其相关数据
func (s *DocumentService) DeleteDocument(ctx context.Context, fileID string) error {
	if err := s.Init(); err != nil {
		return err
	}

	s.logger.WithField("file_id", fileID).Info("Deleting document")

	// 1. 从向量数据库中删除
	if err := s.vectorDB.DeleteBySourceID(fileID); err != nil {
		s.logger.WithError(err).Error("Failed to delete document vectors")
		return fmt.Errorf("failed to delete document vectors: %w", err)
	}

	// 2. 从存储中删除文件
	if err := s.storage.Delete(fileID); err != nil {
		// 文件可能已被删除，记录错误但不中断流程
		s.logger.WithError(err).Warn("Failed to delete file from storage")
	}

	// 3. 删除文档状态记录
	if err := s.statusManager.DeleteDocument(ctx, fileID); err != nil {
		s.logger.WithError(err).Error("Failed to delete document status record")
		return fmt.Errorf("failed to delete document status record: %w", err)
	}

	// 4. 如果任务队列已配置，删除相关任务
	if s.taskQueue != nil {
		tasks, err := s.repo.GetDocumentTasks(ctx, fileID)
		if err == nil && len(tasks) > 0 {
			for _, task := range tasks {
				if err := s.repo.DeleteTask(ctx, task.ID); err != nil {
					s.logger.WithError(err).WithField("task_id", task.ID).Warn("Failed to delete document task")
				}
			}
		}
	}

	s.logger.WithField("file_id", fileID).Info("Document deleted successfully")
	return nil
}

// GetDocumentInfo 获取文档信息
func (s *DocumentService) GetDocumentInfo(ctx context.Context, fileID string) (map[string]interface{}, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}

	doc, err := s.statusManager.GetDocument(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	info := map[string]interface{}{
		"file_id":    doc.ID,
		"filename":   doc.FileName,
		"status":     string(doc.Status),
		"created_at": doc.UploadedAt.Format(time.RFC3339),
		"updated_at": doc.UpdatedAt.Format(time.RFC3339),
		"size":       doc.FileSize,
		"progress":   doc.Progress,
	}

	if doc.Error != "" {
		info["error"] = doc.Error
	}
	if doc.ProcessedAt != nil {
		info["processed_at"] = doc.ProcessedAt.Format(time.RFC3339)
	}
	if doc.Tags != "" {
		info["tags"] = doc.Tags
	}

	// 如果启用了异步处理，尝试获取相关任务信息
	if s.asyncEnabled && s.taskQueue != nil {
		tasks, err := s.repo.GetDocumentTasks(ctx, fileID)
		if err == nil && len(tasks) > 0 {
			latestTask := tasks[0]
			for _, task := range tasks {
				if task.UpdatedAt.After(latestTask.UpdatedAt) {
					latestTask = task
				}
			}

			info["task_id"] = latestTask.ID
			info["task_status"] = latestTask.Status
			info["task_created_at"] = latestTask.CreatedAt.Format(time.RFC3339)
			info["task_updated_at"] = latestTask.UpdatedAt.Format(time.RFC3339)

			if latestTask.StartedAt != nil {
				info["task_started_at"] = latestTask.StartedAt.Format(time.RFC3339)
			}
			if latestTask.CompletedAt != nil {
				info["task_completed_at"] = latestTask.CompletedAt.Format(time.RFC3339)
			}
			if latestTask.Error != "" {
				info["task_error"] = latestTask.Error
			}
		}
	}

	return info, nil
}

// CountDocumentSegments 统计文档段落数量
func (s *DocumentService) CountDocumentSegments(ctx context.Context, fileID string) (int, error) {
	if err := s.Init(); err != nil {
		return 0, err
	}

	return s.repo.CountSegments(fileID)
}

// ListDocuments 获取文档列表
func (s *DocumentService) ListDocuments(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error) {
	if err := s.Init(); err != nil {
		return nil, 0, err
	}

	return s.statusManager.ListDocuments(ctx, offset, limit, filters)
}

// UpdateDocumentTags 更新文档标签
func (s *DocumentService) UpdateDocumentTags(ctx context.Context, fileID string, tags string) error {
	if err := s.Init(); err != nil {
		return err
	}

	doc, err := s.statusManager.GetDocument(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	doc.Tags = tags
	return s.repo.Update(doc)
}

// failDocument 将文档标记为失败状态
func (s *DocumentService) failDocument(ctx context.Context, fileID string, errorMsg string) {
	if s.statusManager == nil {
		s.logger.Error("Cannot mark document as failed: status manager not initialized")
		return
	}

	if err := s.statusManager.MarkAsFailed(ctx, fileID, errorMsg); err != nil {
		s.logger.WithFields(logrus.Fields{
			"file_id": fileID,
			"error":   err,
		}).Error("Failed to mark document as failed")
	}
}
