package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ragkit/doc-rag/api/middleware"
	"github.com/ragkit/doc-rag/api/model"
	"github.com/ragkit/doc-rag/internal/services"
	"github.com/sirupsen/logrus"
)

// QAHandler 处理问答相关的API请求
type QAHandler struct {
	qaService *services.QAService
	logger    *logrus.Logger
}

func NewQAHandler(qaService *services.QAService) *QAHandler {
	return &QAHandler{
		qaService: qaService,
		logger:    middleware.GetLogger(),
	}
}

// AnswerQuestion 处理问答请求
// POST /api/qa
func (h *QAHandler) AnswerQuestion(c *gin.Context) {
	var req model.QARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid question request")
		replyError(c, http.StatusBadRequest, "无效的请求参数")
		return
	}
	if req.Question == "" {
		middleware.HandleError(c, middleware.NewValidationError("问题不能为空"))
		return
	}

	h.logger.WithField("question", req.Question).Info("Answering question")

	answer, err := h.qaService.Ask(c.Request.Context(), req.Question)
	if err != nil {
		h.logger.WithError(err).WithField("question", req.Question).Error("Failed to answer question")

		// 生成阶段的失败属于上游模型问题，返回网关错误
		status := http.StatusInternalServerError
		var genErr *services.GenerationError
		if errors.As(err, &genErr) {
			status = http.StatusBadGateway
		}
		replyError(c, status, "处理问题时出错: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.QAResponse{
		Question: req.Question,
		Answer:   answer.Answer,
		Sources:  model.ConvertToSourceInfo(answer.Sources),
	}))
}
