package embedding

// AzureEmbeddingRequest Azure OpenAI嵌入API请求结构
type AzureEmbeddingRequest struct {
	Input          []string `json:"input"`                // 需要嵌入的文本列表
	Dimensions     int      `json:"dimensions,omitempty"` // 可选的向量维度
	EncodingFormat string   `json:"encoding_format,omitempty"`
	User           string   `json:"user,omitempty"` // 可选的用户标识符
}

// AzureEmbeddingResponse Azure OpenAI嵌入API响应结构
type AzureEmbeddingResponse struct {
	Object string               `json:"object"`
	Data   []AzureEmbeddingData `json:"data"`  // 嵌入结果列表
	Model  string               `json:"model"` // 实际使用的模型
	Usage  AzureEmbeddingUsage  `json:"usage"` // 资源使用情况
}

// AzureEmbeddingData 单条嵌入结果
type AzureEmbeddingData struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`     // 对应输入文本的位置
	Embedding []float32 `json:"embedding"` // 嵌入向量
}

// AzureEmbeddingUsage 资源使用情况
type AzureEmbeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// AzureErrorResponse Azure OpenAI错误响应结构
type AzureErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
