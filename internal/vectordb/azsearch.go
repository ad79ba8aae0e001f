package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// Azure AI Search REST API版本
	azureSearchAPIVersion = "2023-11-01"

	// 向量字段名称
	azureFieldContentVector = "contentVector"

	// 删除操作一次最多拉取的文档数
	azureDeleteBatchSize = 1000
)

// AzureSearchRepository 基于Azure AI Search的向量索引实现
// 通过REST API完成文档写入和向量检索
type AzureSearchRepository struct {
	endpoint   string
	apiKey     string
	indexName  string
	dimension  int
	httpClient *http.Client
	maxRetries int
}

// azureDocument 索引中的文档结构
type azureDocument struct {
	SearchAction  string    `json:"@search.action,omitempty"`
	ID            string    `json:"id"`
	Content       string    `json:"content,omitempty"`
	ContentVector []float32 `json:"contentVector,omitempty"`
	URL           string    `json:"url,omitempty"`
	Filepath      string    `json:"filepath,omitempty"`
	Title         string    `json:"title,omitempty"`
	Tags          string    `json:"tags,omitempty"`
}

// azureIndexBatch 批量索引请求体
type azureIndexBatch struct {
	Value []azureDocument `json:"value"`
}

// azureIndexResult 批量索引响应体
type azureIndexResult struct {
	Value []struct {
		Key          string `json:"key"`
		Status       bool   `json:"status"`
		ErrorMessage string `json:"errorMessage"`
		StatusCode   int    `json:"statusCode"`
	} `json:"value"`
}

// azureVectorQuery 向量查询参数
type azureVectorQuery struct {
	Kind   string    `json:"kind"`
	Vector []float32 `json:"vector"`
	Fields string    `json:"fields"`
	K      int       `json:"k"`
}

// azureSearchRequest 检索请求体
type azureSearchRequest struct {
	Select        string             `json:"select,omitempty"`
	Filter        string             `json:"filter,omitempty"`
	Top           int                `json:"top,omitempty"`
	VectorQueries []azureVectorQuery `json:"vectorQueries,omitempty"`
}

// azureSearchResponse 检索响应体
type azureSearchResponse struct {
	Value []struct {
		Score    float32 `json:"@search.score"`
		ID       string  `json:"id"`
		Content  string  `json:"content"`
		URL      string  `json:"url"`
		Filepath string  `json:"filepath"`
		Title    string  `json:"title"`
		Tags     string  `json:"tags"`
	} `json:"value"`
}

// NewAzureSearchRepository 创建Azure AI Search向量索引客户端
func NewAzureSearchRepository(config Config) (Repository, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("azure search endpoint is required")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("azure search api key is required")
	}
	if config.IndexName == "" {
		return nil, fmt.Errorf("azure search index name is required")
	}
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	repo := &AzureSearchRepository{
		endpoint:   strings.TrimRight(config.Endpoint, "/"),
		apiKey:     config.APIKey,
		indexName:  config.IndexName,
		dimension:  config.Dimension,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
	}

	if config.CreateIfNotExists {
		if err := repo.ensureIndex(); err != nil {
			return nil, fmt.Errorf("failed to ensure index exists: %w", err)
		}
	}

	return repo, nil
}

// ensureIndex 检查索引是否存在，不存在则创建
func (r *AzureSearchRepository) ensureIndex() error {
	url := fmt.Sprintf("%s/indexes/%s?api-version=%s", r.endpoint, r.indexName, azureSearchAPIVersion)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	r.setHeaders(req)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	if resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status checking index: %d: %s", resp.StatusCode, string(body))
	}

	return r.createIndex()
}

// createIndex 创建索引，字段结构与写入的文档对应
func (r *AzureSearchRepository) createIndex() error {
	schema := map[string]interface{}{
		"name": r.indexName,
		"fields": []map[string]interface{}{
			{"name": "id", "type": "Edm.String", "key": true, "filterable": true},
			{"name": "content", "type": "Edm.String", "searchable": true},
			{"name": "url", "type": "Edm.String", "filterable": true},
			{"name": "filepath", "type": "Edm.String", "filterable": true},
			{"name": "title", "type": "Edm.String", "searchable": true},
			{"name": "tags", "type": "Edm.String"},
			{
				"name":                "contentVector",
				"type":                "Collection(Edm.Single)",
				"searchable":          true,
				"dimensions":          r.dimension,
				"vectorSearchProfile": "default-profile",
			},
		},
		"vectorSearch": map[string]interface{}{
			"algorithms": []map[string]interface{}{
				{"name": "default-hnsw", "kind": "hnsw"},
			},
			"profiles": []map[string]interface{}{
				{"name": "default-profile", "algorithm": "default-hnsw"},
			},
		},
	}

	url := fmt.Sprintf("%s/indexes/%s?api-version=%s", r.endpoint, r.indexName, azureSearchAPIVersion)
	return r.sendRequest(context.Background(), http.MethodPut, url, schema, nil)
}

// Upsert 批量写入记录
func (r *AzureSearchRepository) Upsert(records []Record) error {
	if len(records) == 0 {
		return nil
	}

	batch := azureIndexBatch{Value: make([]azureDocument, 0, len(records))}
	for i := range records {
		if err := ValidateVector(records[i].Vector, r.dimension); err != nil {
			return fmt.Errorf("upsert rejected: invalid vector for record %s: %w", records[i].ID, err)
		}

		rec := records[i]
		doc := azureDocument{
			SearchAction:  "mergeOrUpload",
			ID:            rec.ID,
			Content:       rec.Content,
			ContentVector: rec.Vector,
			URL:           rec.Metadata["url"],
			Filepath:      rec.Metadata["filepath"],
			Title:         rec.Metadata["title"],
			Tags:          rec.Metadata["tags"],
		}
		if doc.Filepath == "" {
			doc.Filepath = rec.SourceID
		}
		batch.Value = append(batch.Value, doc)
	}

	url := fmt.Sprintf("%s/indexes/%s/docs/index?api-version=%s", r.endpoint, r.indexName, azureSearchAPIVersion)

	var result azureIndexResult
	if err := r.sendRequest(context.Background(), http.MethodPost, url, batch, &result); err != nil {
		return err
	}

	var failed []string
	for _, item := range result.Value {
		if !item.Status {
			failed = append(failed, fmt.Sprintf("%s: %s", item.Key, item.ErrorMessage))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("index batch partially failed (%d of %d): %s",
			len(failed), len(result.Value), strings.Join(failed, "; "))
	}
	return nil
}

// Search 向量相似度检索
func (r *AzureSearchRepository) Search(vector []float32, topK int) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []SearchResult{}, nil
	}

	reqBody := azureSearchRequest{
		Select: "id,content,url,filepath,title,tags",
		Top:    topK,
		VectorQueries: []azureVectorQuery{
			{
				Kind:   "vector",
				Vector: vector,
				Fields: azureFieldContentVector,
				K:      topK,
			},
		},
	}

	url := fmt.Sprintf("%s/indexes/%s/docs/search?api-version=%s", r.endpoint, r.indexName, azureSearchAPIVersion)

	var resp azureSearchResponse
	if err := r.sendRequest(context.Background(), http.MethodPost, url, reqBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	results := make([]SearchResult, 0, len(resp.Value))
	for _, doc := range resp.Value {
		meta := map[string]string{
			"url":      doc.URL,
			"filepath": doc.Filepath,
			"title":    doc.Title,
			"tags":     doc.Tags,
		}
		results = append(results, SearchResult{
			Content:  doc.Content,
			Score:    doc.Score,
			Metadata: meta,
		})
	}

	SortSearchResults(results)
	return results, nil
}

// DeleteBySourceID 删除指定文档的所有记录
// 先按filepath过滤出记录ID，再批量删除
func (r *AzureSearchRepository) DeleteBySourceID(sourceID string) error {
	filter := fmt.Sprintf("filepath eq '%s'", strings.ReplaceAll(sourceID, "'", "''"))

	searchURL := fmt.Sprintf("%s/indexes/%s/docs/search?api-version=%s", r.endpoint, r.indexName, azureSearchAPIVersion)
	indexURL := fmt.Sprintf("%s/indexes/%s/docs/index?api-version=%s", r.endpoint, r.indexName, azureSearchAPIVersion)

	for {
		var resp azureSearchResponse
		reqBody := azureSearchRequest{
			Select: "id",
			Filter: filter,
			Top:    azureDeleteBatchSize,
		}
		if err := r.sendRequest(context.Background(), http.MethodPost, searchURL, reqBody, &resp); err != nil {
			return fmt.Errorf("failed to list documents for deletion: %w", err)
		}
		if len(resp.Value) == 0 {
			return nil
		}

		batch := azureIndexBatch{Value: make([]azureDocument, 0, len(resp.Value))}
		for _, doc := range resp.Value {
			batch.Value = append(batch.Value, azureDocument{
				SearchAction: "delete",
				ID:           doc.ID,
			})
		}
		if err := r.sendRequest(context.Background(), http.MethodPost, indexURL, batch, nil); err != nil {
			return fmt.Errorf("failed to delete documents: %w", err)
		}
		if len(resp.Value) < azureDeleteBatchSize {
			return nil
		}
	}
}

// Count 获取索引中的文档总数
func (r *AzureSearchRepository) Count() (int, error) {
	url := fmt.Sprintf("%s/indexes/%s/docs/$count?api-version=%s", r.endpoint, r.indexName, azureSearchAPIVersion)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	r.setHeaders(req)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read count response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status counting documents: %d: %s", resp.StatusCode, string(body))
	}

	count, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(string(body), "\xef\xbb\xbf")))
	if err != nil {
		return 0, fmt.Errorf("failed to parse document count: %w", err)
	}
	return count, nil
}

// GetDimension 返回向量维数
func (r *AzureSearchRepository) GetDimension() int {
	return r.dimension
}

// Close 关闭客户端
func (r *AzureSearchRepository) Close() error {
	return nil
}

// setHeaders 设置认证请求头
func (r *AzureSearchRepository) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", r.apiKey)
	req.Header.Set("Accept", "application/json")
}

// sendRequest 发送API请求并解析响应，服务端错误时指数退避重试
func (r *AzureSearchRepository) sendRequest(ctx context.Context, method, url string, reqData interface{}, respObj interface{}) error {
	jsonData, err := json.Marshal(reqData)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(1<<attempt) * 100 * time.Millisecond):
			}
		}

		req, reqErr := http.NewRequestWithContext(ctx, method, url, bytes.NewBuffer(jsonData))
		if reqErr != nil {
			return fmt.Errorf("failed to create request: %w", reqErr)
		}
		r.setHeaders(req)

		resp, lastErr = r.httpClient.Do(req)
		if lastErr == nil && resp.StatusCode < 500 {
			break
		}
		if resp != nil {
			resp.Body.Close()
			resp = nil
		}
	}

	if lastErr != nil {
		return fmt.Errorf("request failed after %d attempts: %w", r.maxRetries+1, lastErr)
	}
	if resp == nil {
		return fmt.Errorf("request failed after %d attempts", r.maxRetries+1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("azure search API error: status %d: %s", resp.StatusCode, string(body))
	}

	if respObj != nil && len(body) > 0 {
		if err := json.Unmarshal(body, respObj); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

func init() {
	RegisterRepository("azuresearch", NewAzureSearchRepository)
}
