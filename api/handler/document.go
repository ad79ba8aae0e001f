package handler

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ragkit/doc-rag/api/middleware"
	"github.com/ragkit/doc-rag/api/model"
	"github.com/ragkit/doc-rag/internal/services"
	"github.com/ragkit/doc-rag/pkg/storage"
	"github.com/sirupsen/logrus"
)

// 可上传的文件扩展名
var allowedUploadTypes = map[string]bool{
	".pdf":      true,
	".md":       true,
	".markdown": true,
	".txt":      true,
	".csv":      true,
}

// DocumentHandler 文档管理接口
type DocumentHandler struct {
	documentService *services.DocumentService
	fileStorage     storage.Storage
	logger          *logrus.Logger
}

// NewDocumentHandler 创建文档处理器
func NewDocumentHandler(documentService *services.DocumentService, fileStorage storage.Storage) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		fileStorage:     fileStorage,
		logger:          middleware.GetLogger(),
	}
}

// replyError 按统一响应格式返回错误
func replyError(c *gin.Context, status int, message string) {
	c.JSON(status, model.NewErrorResponse(status, message))
}

// UploadDocument 上传文档并触发摄入处理
// POST /api/documents
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	var req model.DocumentUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid document upload request")
		replyError(c, http.StatusBadRequest, "无效的请求参数")
		return
	}
	if req.File == nil {
		replyError(c, http.StatusBadRequest, "未提供文件")
		return
	}

	filename := req.File.Filename
	if !allowedUploadTypes[strings.ToLower(filepath.Ext(filename))] {
		replyError(c, http.StatusBadRequest, "不支持的文件类型，仅支持 .pdf, .md, .markdown, .txt, .csv")
		return
	}

	file, err := req.File.Open()
	if err != nil {
		h.logger.WithError(err).WithField("filename", filename).Error("Failed to open uploaded file")
		replyError(c, http.StatusInternalServerError, "无法打开上传的文件")
		return
	}
	defer file.Close()

	fileInfo, err := h.fileStorage.Save(file, filename)
	if err != nil {
		h.logger.WithError(err).WithField("filename", filename).Error("Failed to save file")
		replyError(c, http.StatusInternalServerError, "保存文件失败")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"file_id":  fileInfo.ID,
		"filename": fileInfo.Name,
		"path":     fileInfo.Path,
		"size":     fileInfo.Size,
	}).Info("File uploaded successfully")

	// 先落库登记，保证状态查询和列表立即可见
	if err := h.documentService.RegisterUpload(c.Request.Context(), fileInfo.ID, filename, fileInfo.Path, fileInfo.Size); err != nil {
		h.logger.WithError(err).WithField("file_id", fileInfo.ID).Error("Failed to register uploaded document")
		replyError(c, http.StatusInternalServerError, "登记上传文档失败")
		return
	}

	// 记录用户提交的标签，失败不影响上传流程
	if req.Tags != "" {
		if err := h.documentService.UpdateDocumentTags(c.Request.Context(), fileInfo.ID, req.Tags); err != nil {
			h.logger.WithError(err).WithField("file_id", fileInfo.ID).Warn("Failed to update document tags")
		}
	}

	// 配置了任务队列时入队后立即返回，否则同步处理完成后返回分块数
	if h.documentService.AsyncEnabled() {
		go h.processAsync(fileInfo.ID, fileInfo.Path)

		c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentUploadResponse{
			FileID:   fileInfo.ID,
			FileName: filename,
			Status:   "processing",
		}))
		return
	}

	chunks, err := h.documentService.ProcessStoredDocument(c.Request.Context(), fileInfo.ID, fileInfo.Path)
	if err != nil {
		h.logger.WithError(err).WithField("file_id", fileInfo.ID).Error("Failed to process document")
		replyError(c, http.StatusInternalServerError, "处理文档失败")
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentUploadResponse{
		FileID:          fileInfo.ID,
		FileName:        filename,
		Status:          "completed",
		ChunksProcessed: chunks,
	}))
}

// processAsync 在独立协程里跑完整的摄入流程
// 处理失败由服务层落到文档状态上，这里只记日志
func (h *DocumentHandler) processAsync(fileID, filePath string) {
	h.logger.WithField("file_id", fileID).Info("Starting document processing")

	if err := h.documentService.ProcessDocument(context.Background(), fileID, filePath); err != nil {
		h.logger.WithError(err).WithField("file_id", fileID).Error("Failed to process document")
		return
	}
	h.logger.WithField("file_id", fileID).Info("Document processed successfully")
}

// GetDocumentStatus 查询文档处理状态
// GET /api/documents/:id/status
func (h *DocumentHandler) GetDocumentStatus(c *gin.Context) {
	var req model.DocumentStatusRequest
	if err := c.ShouldBindUri(&req); err != nil {
		replyError(c, http.StatusBadRequest, "无效的文档ID")
		return
	}

	docInfo, err := h.documentService.GetDocumentInfo(c.Request.Context(), req.ID)
	if err != nil {
		h.logger.WithError(err).WithField("file_id", req.ID).Error("Failed to get document info")
		middleware.HandleError(c, middleware.NewNotFoundError("未找到文档或获取信息失败"))
		return
	}

	// 段落数查不到不影响状态返回
	segments, err := h.documentService.CountDocumentSegments(c.Request.Context(), req.ID)
	if err != nil {
		h.logger.WithError(err).WithField("file_id", req.ID).Warn("Failed to count document segments")
	}

	resp := model.DocumentStatusResponse{
		FileID:    req.ID,
		Status:    docInfo["status"].(string),
		FileName:  docInfo["filename"].(string),
		Segments:  segments,
		CreatedAt: docInfo["created_at"].(string),
		UpdatedAt: docInfo["updated_at"].(string),
	}
	if errMsg, ok := docInfo["error"]; ok {
		resp.Error = errMsg.(string)
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// ListDocuments 分页查询文档列表
// GET /api/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	var req model.DocumentListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		replyError(c, http.StatusBadRequest, "无效的查询参数")
		return
	}

	filters := make(map[string]interface{})
	if req.Status != "" {
		filters["status"] = req.Status
	}
	if req.Tags != "" {
		filters["tags"] = req.Tags
	}
	if req.StartTime != nil {
		filters["start_time"] = req.StartTime.Format(time.RFC3339)
	}
	if req.EndTime != nil {
		filters["end_time"] = req.EndTime.Format(time.RFC3339)
	}

	offset := (req.GetPage() - 1) * req.GetPageSize()
	docs, total, err := h.documentService.ListDocuments(c.Request.Context(), offset, req.GetPageSize(), filters)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list documents")
		replyError(c, http.StatusInternalServerError, "获取文档列表失败")
		return
	}

	documents := make([]model.DocumentInfo, len(docs))
	for i, doc := range docs {
		documents[i] = model.DocumentInfo{
			FileID:     doc.ID,
			FileName:   doc.FileName,
			Status:     string(doc.Status),
			Tags:       doc.Tags,
			UploadTime: doc.UploadedAt,
			Segments:   doc.SegmentCount,
		}
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentListResponse{
		Total:     int(total),
		Page:      req.GetPage(),
		PageSize:  req.GetPageSize(),
		Documents: documents,
	}))
}

// DeleteDocument 删除文档及其段落和向量
// DELETE /api/documents/:id
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	var req model.DocumentDeleteRequest
	if err := c.ShouldBindUri(&req); err != nil {
		replyError(c, http.StatusBadRequest, "无效的文档ID")
		return
	}

	if err := h.documentService.DeleteDocument(c.Request.Context(), req.ID); err != nil {
		h.logger.WithError(err).WithField("file_id", req.ID).Error("Failed to delete document")
		replyError(c, http.StatusInternalServerError, "删除文档失败")
		return
	}

	h.logger.WithField("file_id", req.ID).Info("Document deleted successfully")

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentDeleteResponse{
		Success: true,
		FileID:  req.ID,
	}))
}
