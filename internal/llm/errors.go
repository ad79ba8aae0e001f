package llm

import (
	"errors"
	"fmt"
)

// 大模型调用的错误码
const (
	ErrCodeInvalidAPIKey  = 1001 // API密钥无效
	ErrCodeInvalidRequest = 1002 // 请求参数不合法
	ErrCodeNetworkError   = 1003 // 网络连接失败
	ErrCodeRateLimited    = 1004 // 触发限流
	ErrCodeServerError    = 1005 // 服务端错误
	ErrCodeTimeout        = 1006 // 请求超时
	ErrCodeEmptyPrompt    = 1007 // 提示词为空
	ErrCodeContentFilter  = 1008 // 命中内容安全过滤
	ErrCodeModelOverload  = 1009 // 模型过载
	ErrCodeContextTooLong = 1010 // 上下文超出模型窗口
)

// 常用错误消息
const (
	ErrMsgInvalidAPIKey = "invalid API key"
	ErrMsgRateLimited   = "too many requests, rate limit exceeded"
	ErrMsgEmptyPrompt   = "prompt cannot be empty"
	ErrMsgContentFilter = "content filtered due to safety concerns"
)

// LLMError 带错误码的大模型调用错误
type LLMError struct {
	Code    int
	Message string
}

func (e LLMError) Error() string {
	return fmt.Sprintf("llm error (code=%d): %s", e.Code, e.Message)
}

// NewLLMError 创建大模型调用错误
func NewLLMError(code int, message string) LLMError {
	return LLMError{Code: code, Message: message}
}

// WrapError 把底层错误包装为LLMError
// 已经是LLMError的保持原错误码不变
func WrapError(err error, code int) LLMError {
	if err == nil {
		return LLMError{Code: code, Message: "unknown error"}
	}

	var llmErr LLMError
	if errors.As(err, &llmErr) {
		return llmErr
	}

	return LLMError{Code: code, Message: err.Error()}
}
