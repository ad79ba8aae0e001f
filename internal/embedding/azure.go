package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	// 默认API版本
	defaultAPIVersion = "2024-12-01-preview"

	// 默认嵌入模型部署名称
	defaultDeployment = "text-embedding-3-small"

	// 单次请求的最大文本数
	maxBatchInputs = 2048
)

// AzureOpenAIClient Azure OpenAI嵌入API客户端
type AzureOpenAIClient struct {
	apiKey     string       // API密钥
	endpoint   string       // 资源端点
	deployment string       // 模型部署名称
	apiVersion string       // API版本
	httpClient *http.Client // HTTP客户端
	maxRetries int          // 最大重试次数
	dimensions int          // 向量维度

	// 文本到向量的本地缓存，未启用时为nil
	cache *gocache.Cache
}

// NewAzureOpenAIClient 创建新的Azure OpenAI嵌入客户端
func NewAzureOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}
	if cfg.BaseURL == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, "azure openai endpoint is required")
	}

	deployment := cfg.Model
	if deployment == "" {
		deployment = defaultDeployment
	}

	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}

	client := &AzureOpenAIClient{
		apiKey:     cfg.APIKey,
		endpoint:   strings.TrimRight(cfg.BaseURL, "/"),
		deployment: deployment,
		apiVersion: apiVersion,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		dimensions: cfg.Dimensions,
	}

	if cfg.EnableCache {
		client.cache = gocache.New(30*time.Minute, 10*time.Minute)
	}

	return client, nil
}

// Name 返回模型部署名称
func (c *AzureOpenAIClient) Name() string {
	return c.deployment
}

// Dimensions 返回向量维度
func (c *AzureOpenAIClient) Dimensions() int {
	return c.dimensions
}

// Embed 生成单条文本的向量表示
func (c *AzureOpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}

	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, NewEmbeddingError(ErrCodeServerError, "no embedding vectors returned")
	}
	return vectors[0], nil
}

// EmbedBatch 批量生成文本的向量表示
// 返回的向量顺序与输入文本顺序一一对应
func (c *AzureOpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > maxBatchInputs {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest,
			fmt.Sprintf("batch size %d exceeds maximum of %d inputs", len(texts), maxBatchInputs))
	}

	for _, text := range texts {
		if text == "" {
			return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
		}
	}

	result := make([][]float32, len(texts))

	// 命中缓存的文本不再请求API
	pending := make([]int, 0, len(texts))
	for i, text := range texts {
		if c.cache != nil {
			if cached, ok := c.cache.Get(text); ok {
				result[i] = cached.([]float32)
				continue
			}
		}
		pending = append(pending, i)
	}

	if len(pending) == 0 {
		return result, nil
	}

	inputs := make([]string, len(pending))
	for j, i := range pending {
		inputs[j] = texts[i]
	}

	reqData := AzureEmbeddingRequest{
		Input:          inputs,
		EncodingFormat: "float",
	}
	if c.dimensions > 0 && supportsDimensions(c.deployment) {
		reqData.Dimensions = c.dimensions
	}

	var resp AzureEmbeddingResponse
	if err := c.sendRequest(ctx, reqData, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) != len(inputs) {
		return nil, NewEmbeddingError(ErrCodeServerError,
			fmt.Sprintf("expected %d embeddings, got %d", len(inputs), len(resp.Data)))
	}

	// 响应条目按index对回请求顺序，越界或重复的index说明响应已不可信
	seen := make([]bool, len(pending))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(pending) {
			return nil, NewEmbeddingError(ErrCodeServerError,
				fmt.Sprintf("embedding response index %d out of range [0, %d)", item.Index, len(pending)))
		}
		if seen[item.Index] {
			return nil, NewEmbeddingError(ErrCodeServerError,
				fmt.Sprintf("duplicate embedding response index %d", item.Index))
		}
		seen[item.Index] = true

		idx := pending[item.Index]
		result[idx] = item.Embedding
		if c.cache != nil {
			c.cache.Set(texts[idx], item.Embedding, gocache.DefaultExpiration)
		}
	}
	return result, nil
}

// supportsDimensions 判断部署的模型是否支持自定义维度
// 只有text-embedding-3系列支持dimensions参数
func supportsDimensions(deployment string) bool {
	return strings.Contains(deployment, "text-embedding-3")
}

// embeddingsURL 构造嵌入API的完整URL
func (c *AzureOpenAIClient) embeddingsURL() string {
	return fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s",
		c.endpoint, c.deployment, c.apiVersion)
}

// sendRequest 发送API请求并解析响应
func (c *AzureOpenAIClient) sendRequest(ctx context.Context, reqData interface{}, respObj interface{}) error {
	jsonData, err := json.Marshal(reqData)
	if err != nil {
		return NewEmbeddingError(ErrCodeInvalidRequest, fmt.Sprintf("failed to marshal request: %v", err))
	}

	url := c.embeddingsURL()

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// 指数退避重试
			select {
			case <-ctx.Done():
				return NewEmbeddingError(ErrCodeTimeout, ctx.Err().Error())
			case <-time.After(time.Duration(1<<attempt) * 100 * time.Millisecond):
			}
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
		if reqErr != nil {
			return NewEmbeddingError(ErrCodeInvalidRequest, fmt.Sprintf("failed to create request: %v", reqErr))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("api-key", c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, lastErr = c.httpClient.Do(req)
		if lastErr == nil && resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			break
		}
		if resp != nil {
			resp.Body.Close()
			resp = nil
		}
	}

	if lastErr != nil {
		return NewEmbeddingError(ErrCodeNetworkError, fmt.Sprintf("request failed: %v", lastErr))
	}
	if resp == nil {
		return NewEmbeddingError(ErrCodeRateLimited, ErrMsgRateLimited)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewEmbeddingError(ErrCodeServerError, fmt.Sprintf("failed to read response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr AzureErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return NewEmbeddingError(statusToErrCode(resp.StatusCode),
				fmt.Sprintf("API error: %s (%s)", apiErr.Error.Message, apiErr.Error.Code))
		}
		return NewEmbeddingError(statusToErrCode(resp.StatusCode),
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body)))
	}

	if err := json.Unmarshal(body, respObj); err != nil {
		return NewEmbeddingError(ErrCodeServerError, fmt.Sprintf("failed to unmarshal response: %v", err))
	}
	return nil
}

// statusToErrCode 将HTTP状态码映射为错误码
func statusToErrCode(status int) int {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrCodeInvalidAPIKey
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimited
	case status >= 500:
		return ErrCodeServerError
	default:
		return ErrCodeInvalidRequest
	}
}

func init() {
	RegisterClient("azure-openai", NewAzureOpenAIClient)
}
