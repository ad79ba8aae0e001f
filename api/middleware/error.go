package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ragkit/doc-rag/api/model"
	"github.com/sirupsen/logrus"
)

// 应用错误类型标识
const (
	ErrorTypeValidation   = "VALIDATION_ERROR"   // 输入验证错误
	ErrorTypeUnauthorized = "UNAUTHORIZED_ERROR" // 未授权错误
	ErrorTypeForbidden    = "FORBIDDEN_ERROR"    // 禁止访问错误
	ErrorTypeNotFound     = "NOT_FOUND_ERROR"    // 资源不存在错误
	ErrorTypeInternal     = "INTERNAL_ERROR"     // 内部服务器错误
	ErrorTypeBusiness     = "BUSINESS_ERROR"     // 业务逻辑错误
)

// AppError 带类型和HTTP状态码的应用错误
type AppError struct {
	Type    string // 错误类型标识
	Message string // 面向客户端的错误消息
	Details string // 补充的详细信息
	Code    int    // 对应的HTTP状态码
}

func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewValidationError 创建输入验证错误
func NewValidationError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// NewUnauthorizedError 创建未授权错误
func NewUnauthorizedError(message string) AppError {
	return AppError{
		Type:    ErrorTypeUnauthorized,
		Message: message,
		Code:    http.StatusUnauthorized,
	}
}

// NewForbiddenError 创建禁止访问错误
func NewForbiddenError(message string) AppError {
	return AppError{
		Type:    ErrorTypeForbidden,
		Message: message,
		Code:    http.StatusForbidden,
	}
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(message string) AppError {
	return AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

// NewInternalError 创建内部服务器错误
func NewInternalError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusInternalServerError,
	}
}

// NewBusinessError 创建业务逻辑错误
func NewBusinessError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeBusiness,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// HandleError 把错误交给ErrorMiddleware统一处理
// 处理器调用后应立即return
func HandleError(c *gin.Context, err error) {
	_ = c.Error(err)
}

// ErrorMiddleware 统一错误处理中间件
// 恢复panic，并把HandleError登记的错误转换为对应的JSON响应
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(logrus.Fields{
					"error": r,
					"stack": string(debug.Stack()),
					"path":  c.Request.URL.Path,
				}).Error("Panic recovered in API request")

				resp := model.NewErrorResponse(
					http.StatusInternalServerError,
					"An unexpected error occurred",
				)
				if gin.Mode() == gin.DebugMode {
					resp.Message = fmt.Sprintf("Panic: %v", r)
				}
				resp.TraceID = traceIDFrom(c)

				c.AbortWithStatusJSON(http.StatusInternalServerError, resp)
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		traceID := traceIDFrom(c)

		var appErr AppError
		if errors.As(err, &appErr) {
			log.WithFields(logrus.Fields{
				"error_type": appErr.Type,
				"trace_id":   traceID,
				"path":       c.Request.URL.Path,
			}).Error(appErr.Message)

			resp := model.NewErrorResponse(appErr.Code, appErr.Message)
			resp.TraceID = traceID
			c.JSON(appErr.Code, resp)
			c.Abort()
			return
		}

		// 未分类的错误一律按内部错误处理
		log.WithFields(logrus.Fields{
			"trace_id": traceID,
			"path":     c.Request.URL.Path,
		}).Error(err.Error())

		resp := model.NewErrorResponse(http.StatusInternalServerError, "Internal server error")
		if gin.Mode() == gin.DebugMode {
			resp.Message = err.Error()
		}
		resp.TraceID = traceID

		c.JSON(http.StatusInternalServerError, resp)
		c.Abort()
	}
}

// traceIDFrom 取出SetTraceID中间件写入的追踪ID
func traceIDFrom(c *gin.Context) string {
	if v, ok := c.Get("TraceID"); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
