package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEmbeddingServer 启动返回固定向量的模拟嵌入服务
func newEmbeddingServer(t *testing.T, dimension int) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NotEmpty(t, r.Header.Get("api-key"))

		var req AzureEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := AzureEmbeddingResponse{
			Object: "list",
			Model:  "text-embedding-3-small",
			Data:   make([]AzureEmbeddingData, len(req.Input)),
		}
		for i := range req.Input {
			vector := make([]float32, dimension)
			vector[0] = float32(i + 1)
			resp.Data[i] = AzureEmbeddingData{
				Object:    "embedding",
				Index:     i,
				Embedding: vector,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, baseURL string) Client {
	t.Helper()

	client, err := NewAzureOpenAIClient(
		WithAPIKey("test-key"),
		WithBaseURL(baseURL),
		WithModel("text-embedding-3-small"),
		WithDimensions(8),
		WithTimeout(5*time.Second),
		WithMaxRetries(2),
	)
	require.NoError(t, err)
	return client
}

func TestAzureClientCachesEmbeddings(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)

		var req AzureEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := AzureEmbeddingResponse{Data: make([]AzureEmbeddingData, len(req.Input))}
		for i := range req.Input {
			resp.Data[i] = AzureEmbeddingData{Index: i, Embedding: make([]float32, 8)}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewAzureOpenAIClient(
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
		WithModel("text-embedding-3-small"),
		WithDimensions(8),
		WithCache(true),
	)
	require.NoError(t, err)

	_, err = client.EmbedBatch(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), requests.Load())

	// 全部命中缓存时不应产生新请求
	vectors, err := client.EmbedBatch(context.Background(), []string{"beta", "alpha"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, int32(1), requests.Load())

	// 部分命中时只请求未缓存的文本
	_, err = client.EmbedBatch(context.Background(), []string{"alpha", "gamma"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), requests.Load())
}

func TestAzureClientEmbed(t *testing.T) {
	server := newEmbeddingServer(t, 8)
	client := newTestClient(t, server.URL)

	vector, err := client.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Len(t, vector, 8)
	assert.Equal(t, "text-embedding-3-small", client.Name())
}

func TestAzureClientEmbedBatch(t *testing.T) {
	server := newEmbeddingServer(t, 8)
	client := newTestClient(t, server.URL)

	texts := []string{"first", "second", "third"}
	vectors, err := client.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	// 向量顺序与输入文本顺序一致
	for i, vec := range vectors {
		assert.Len(t, vec, 8)
		assert.Equal(t, float32(i+1), vec[0])
	}
}

func TestAzureClientEmptyInput(t *testing.T) {
	server := newEmbeddingServer(t, 8)
	client := newTestClient(t, server.URL)

	_, err := client.Embed(context.Background(), "")
	require.Error(t, err)

	var embErr EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, ErrCodeEmptyInput, embErr.Code)

	vectors, err := client.EmbedBatch(context.Background(), []string{})
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestAzureClientMissingCredentials(t *testing.T) {
	_, err := NewAzureOpenAIClient(WithBaseURL("https://example.openai.azure.com"))
	require.Error(t, err)

	var embErr EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, ErrCodeInvalidAPIKey, embErr.Code)

	_, err = NewAzureOpenAIClient(WithAPIKey("key"))
	require.Error(t, err)
}

func TestAzureClientRetriesServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		resp := AzureEmbeddingResponse{
			Data: []AzureEmbeddingData{{Index: 0, Embedding: []float32{1, 2, 3}}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	vector, err := client.Embed(context.Background(), "retry me")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vector)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestAzureClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(AzureErrorResponse{
			Error: struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			}{Code: "401", Message: "Access denied due to invalid subscription key"},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.Embed(context.Background(), "unauthorized")
	require.Error(t, err)

	var embErr EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, ErrCodeInvalidAPIKey, embErr.Code)
}

// TestAzureClientRejectsBadResponseIndex 响应条目index越界或重复时整体报错
// 而不是留下空向量
func TestAzureClientRejectsBadResponseIndex(t *testing.T) {
	badData := [][]AzureEmbeddingData{
		// index越界
		{
			{Index: 0, Embedding: make([]float32, 8)},
			{Index: 5, Embedding: make([]float32, 8)},
		},
		// index重复
		{
			{Index: 0, Embedding: make([]float32, 8)},
			{Index: 0, Embedding: make([]float32, 8)},
		},
	}

	for _, data := range badData {
		data := data
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(AzureEmbeddingResponse{Data: data})
		}))

		client := newTestClient(t, server.URL)
		_, err := client.EmbedBatch(context.Background(), []string{"first", "second"})
		require.Error(t, err)

		var embErr EmbeddingError
		require.ErrorAs(t, err, &embErr)
		assert.Equal(t, ErrCodeServerError, embErr.Code)

		server.Close()
	}
}

func TestClientRegistry(t *testing.T) {
	server := newEmbeddingServer(t, 4)

	client, err := NewClient("azure-openai",
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
	)
	require.NoError(t, err)
	assert.NotNil(t, client)

	_, err = NewClient("unregistered")
	assert.Error(t, err)
}
