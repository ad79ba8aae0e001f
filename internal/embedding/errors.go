package embedding

import "fmt"

// 嵌入调用的错误码
const (
	ErrCodeInvalidAPIKey  = 1001 // API密钥无效
	ErrCodeInvalidRequest = 1002 // 请求参数不合法
	ErrCodeNetworkError   = 1003 // 网络连接失败
	ErrCodeRateLimited    = 1004 // 触发限流
	ErrCodeServerError    = 1005 // 服务端错误
	ErrCodeTimeout        = 1006 // 请求超时
	ErrCodeEmptyInput     = 1007 // 输入文本为空
)

// 常用错误消息
const (
	ErrMsgInvalidAPIKey = "invalid API key"
	ErrMsgRateLimited   = "too many requests, rate limit exceeded"
	ErrMsgEmptyInput    = "input text cannot be empty"
)

// EmbeddingError 带错误码的嵌入调用错误
type EmbeddingError struct {
	Code    int
	Message string
}

func (e EmbeddingError) Error() string {
	return fmt.Sprintf("embedding error (code=%d): %s", e.Code, e.Message)
}

// NewEmbeddingError 创建嵌入调用错误
func NewEmbeddingError(code int, message string) EmbeddingError {
	return EmbeddingError{Code: code, Message: message}
}
