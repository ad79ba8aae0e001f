package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ragkit/doc-rag/api/handler"
	"github.com/ragkit/doc-rag/api/middleware"
)

// SetupRouter 组装HTTP路由和全局中间件
func SetupRouter(
	docHandler *handler.DocumentHandler,
	qaHandler *handler.QAHandler,
) *gin.Engine {
	router := gin.Default()

	router.Use(middleware.Logger())
	router.Use(middleware.ErrorMiddleware())
	router.Use(middleware.SetTraceID())
	router.Use(Cors())

	// 调试模式下记录请求体和响应体
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
		router.Use(middleware.ResponseLogger())
	}

	api := router.Group("/api")
	{
		docs := api.Group("/documents")
		{
			docs.POST("", docHandler.UploadDocument)
			docs.GET("", docHandler.ListDocuments)
			docs.GET("/:id/status", docHandler.GetDocumentStatus)
			docs.DELETE("/:id", docHandler.DeleteDocument)
		}

		api.POST("/qa", qaHandler.AnswerQuestion)

		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}

	return router
}

// Cors 跨域中间件，预检请求直接返回204
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.Writer.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Credentials", "true")
		header.Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		header.Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
