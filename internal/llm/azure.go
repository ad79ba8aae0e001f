package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AzureOpenAIClient Azure OpenAI聊天补全客户端实现
type AzureOpenAIClient struct {
	apiKey      string       // API密钥
	endpoint    string       // 资源端点
	deployment  string       // 模型部署名称
	apiVersion  string       // API版本
	httpClient  *http.Client // HTTP客户端
	maxRetries  int          // 最大重试次数
	maxTokens   int          // 最大生成Token数
	temperature float32      // 温度参数
	topP        float32      // topP参数
}

// NewAzureOpenAIClient 创建新的Azure OpenAI大模型客户端
func NewAzureOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}
	if cfg.BaseURL == "" {
		return nil, NewLLMError(ErrCodeInvalidRequest, "azure openai endpoint is required")
	}

	deployment := cfg.Model
	if deployment == "" {
		deployment = ModelGPT4o
	}

	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "2024-12-01-preview"
	}

	client := &AzureOpenAIClient{
		apiKey:      cfg.APIKey,
		endpoint:    strings.TrimRight(cfg.BaseURL, "/"),
		deployment:  deployment,
		apiVersion:  apiVersion,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		maxRetries:  cfg.MaxRetries,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
	}

	return client, nil
}

// Name 返回模型部署名称
func (c *AzureOpenAIClient) Name() string {
	return c.deployment
}

// Generate 根据提示词生成回答
func (c *AzureOpenAIClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if prompt == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	opts := &GenerateOptions{}
	for _, opt := range options {
		opt(opts)
	}

	messages := []Message{
		{Role: RoleUser, Content: prompt},
	}

	req := c.buildRequest(messages, opts.MaxTokens, opts.Temperature, opts.TopP)
	return c.complete(ctx, req)
}

// Chat 进行多轮对话
func (c *AzureOpenAIClient) Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "messages cannot be empty")
	}

	opts := &ChatOptions{}
	for _, opt := range options {
		opt(opts)
	}

	req := c.buildRequest(messages, opts.MaxTokens, opts.Temperature, opts.TopP)
	return c.complete(ctx, req)
}

// buildRequest 构造聊天补全请求，未指定的参数回落到客户端默认值
func (c *AzureOpenAIClient) buildRequest(messages []Message, maxTokens *int, temperature, topP *float32) *AzureChatRequest {
	req := &AzureChatRequest{
		Messages: messages,
	}

	if maxTokens != nil {
		req.MaxTokens = maxTokens
	} else if c.maxTokens > 0 {
		tokens := c.maxTokens
		req.MaxTokens = &tokens
	}

	if temperature != nil {
		req.Temperature = temperature
	} else {
		temp := c.temperature
		req.Temperature = &temp
	}

	if topP != nil {
		req.TopP = topP
	} else if c.topP > 0 {
		p := c.topP
		req.TopP = &p
	}

	return req
}

// complete 调用聊天补全API并解析结果
func (c *AzureOpenAIClient) complete(ctx context.Context, reqData *AzureChatRequest) (*Response, error) {
	var resp AzureChatResponse
	if err := c.sendRequest(ctx, reqData, &resp); err != nil {
		return nil, err
	}

	if resp.Error != nil {
		return nil, NewLLMError(ErrCodeServerError,
			fmt.Sprintf("API error: %s (%s)", resp.Error.Message, resp.Error.Code))
	}
	if len(resp.Choices) == 0 {
		return nil, NewLLMError(ErrCodeServerError, "no choices returned")
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return nil, NewLLMError(ErrCodeContentFilter, ErrMsgContentFilter)
	}

	return &Response{
		Text:       choice.Message.Content,
		Messages:   []Message{choice.Message},
		TokenCount: resp.Usage.TotalTokens,
		ModelName:  resp.Model,
		FinishTime: time.Now(),
	}, nil
}

// completionsURL 构造聊天补全API的完整URL
func (c *AzureOpenAIClient) completionsURL() string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		c.endpoint, c.deployment, c.apiVersion)
}

// sendRequest 发送API请求并解析响应
func (c *AzureOpenAIClient) sendRequest(ctx context.Context, reqData interface{}, respObj interface{}) error {
	jsonData, err := json.Marshal(reqData)
	if err != nil {
		return NewLLMError(ErrCodeInvalidRequest, fmt.Sprintf("failed to marshal request: %v", err))
	}

	url := c.completionsURL()

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// 指数退避重试
			select {
			case <-ctx.Done():
				return NewLLMError(ErrCodeTimeout, ctx.Err().Error())
			case <-time.After(time.Duration(1<<attempt) * 100 * time.Millisecond):
			}
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
		if reqErr != nil {
			return NewLLMError(ErrCodeInvalidRequest, fmt.Sprintf("failed to create request: %v", reqErr))
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
		return WrapError(lastErr, ErrCodeNetworkError)
	}
	if resp == nil {
		return NewLLMError(ErrCodeRateLimited, ErrMsgRateLimited)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewLLMError(ErrCodeServerError, fmt.Sprintf("failed to read response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		var apiResp AzureChatResponse
		if json.Unmarshal(body, &apiResp) == nil && apiResp.Error != nil {
			return NewLLMError(httpStatusToErrCode(resp.StatusCode),
				fmt.Sprintf("API error: %s (%s)", apiResp.Error.Message, apiResp.Error.Code))
		}
		return NewLLMError(httpStatusToErrCode(resp.StatusCode),
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body)))
	}

	if err := json.Unmarshal(body, respObj); err != nil {
		return NewLLMError(ErrCodeServerError, fmt.Sprintf("failed to unmarshal response: %v", err))
	}
	return nil
}

// httpStatusToErrCode 将HTTP状态码映射为错误码
func httpStatusToErrCode(status int) int {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrCodeInvalidAPIKey
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimited
	case status == http.StatusServiceUnavailable:
		return ErrCodeModelOverload
	case status >= 500:
		return ErrCodeServerError
	default:
		return ErrCodeInvalidRequest
	}
}

func init() {
	RegisterClient("azure-openai", NewAzureOpenAIClient)
}
