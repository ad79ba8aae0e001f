package llm

import "time"

// MessageRole 消息角色类型
type MessageRole string

const (
	// RoleSystem 系统角色
	RoleSystem MessageRole = "system"
	// RoleUser 用户角色
	RoleUser MessageRole = "user"
	// RoleAssistant 助手角色
	RoleAssistant MessageRole = "assistant"
	// RoleTool 工具角色
	RoleTool MessageRole = "tool"
)

// Message 对话消息结构
type Message struct {
	Role    MessageRole `json:"role"`           // 角色
	Content string      `json:"content"`        // 内容
	Name    string      `json:"name,omitempty"` // 可选名称标识
}

// AzureChatRequest Azure OpenAI聊天补全请求结构
type AzureChatRequest struct {
	Messages    []Message `json:"messages"`              // 消息列表
	MaxTokens   *int      `json:"max_tokens,omitempty"`  // 最大生成Token数
	Temperature *float32  `json:"temperature,omitempty"` // 采样温度
	TopP        *float32  `json:"top_p,omitempty"`       // 核采样概率阈值
	Stream      bool      `json:"stream,omitempty"`      // 是否流式输出
}

// AzureChatResponse Azure OpenAI聊天补全响应结构
type AzureChatResponse struct {
	ID      string            `json:"id"`      // 响应ID
	Object  string            `json:"object"`  // 对象类型
	Model   string            `json:"model"`   // 实际使用的模型
	Choices []AzureChatChoice `json:"choices"` // 生成结果列表
	Usage   AzureChatUsage    `json:"usage"`   // 资源使用情况
	Error   *AzureAPIError    `json:"error,omitempty"`
}

// AzureChatChoice 生成结果
type AzureChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason"` // 结束原因
	Message      Message `json:"message"`       // 消息内容
}

// AzureChatUsage 资源使用情况
type AzureChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`     // 输入token数
	CompletionTokens int `json:"completion_tokens"` // 输出token数
	TotalTokens      int `json:"total_tokens"`      // 总token数
}

// AzureAPIError API错误信息
type AzureAPIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response 统一的响应结构
type Response struct {
	Text       string    // 生成的文本
	Messages   []Message // 消息列表（如果是对话）
	TokenCount int       // 使用的token数
	ModelName  string    // 使用的模型名称
	FinishTime time.Time // 完成时间
	Error      error     // 如果出错，则包含错误信息
}

// Model 常用模型部署名称
const (
	ModelGPT4o     = "gpt-4o"       // GPT-4o模型（默认）
	ModelGPT4oMini = "gpt-4o-mini"  // GPT-4o-mini模型（较快，成本更低）
	ModelGPT4Turbo = "gpt-4-turbo"  // GPT-4 Turbo模型
	ModelGPT35     = "gpt-35-turbo" // GPT-3.5 Turbo模型
)
