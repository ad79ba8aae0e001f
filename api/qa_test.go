package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ragkit/doc-rag/api/model"
	"github.com/ragkit/doc-rag/internal/metadata"
	"github.com/ragkit/doc-rag/internal/services"
	"github.com/ragkit/doc-rag/internal/vectordb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedVectorDB 直接向向量索引写入一条记录，绕过上传流程
func seedVectorDB(t *testing.T, env *testEnv, docID, title, content, page string) {
	t.Helper()

	pageNum := 0
	if page != "" {
		n, err := strconv.Atoi(page)
		require.NoError(t, err)
		pageNum = n
	}
	tags, err := metadata.EncodeChunkTag(1, pageNum)
	require.NoError(t, err)

	record := vectordb.Record{
		ID:       docID + "_1",
		SourceID: docID,
		Content:  content,
		Vector:   []float32{1, 0, 0, 0},
		Metadata: map[string]string{
			metadata.KeyURL:      docID,
			metadata.KeyFilepath: docID,
			metadata.KeyTitle:    title,
			metadata.KeyTags:     tags,
		},
		CreatedAt: time.Now(),
	}
	require.NoError(t, env.VectorDB.Upsert([]vectordb.Record{record}))
}

// askQuestion 请求问答接口并解码响应
func askQuestion(t *testing.T, env *testEnv, question string) (*httptest.ResponseRecorder, model.QAResponse) {
	t.Helper()

	body, err := json.Marshal(model.QARequest{Question: question})
	require.NoError(t, err)

	w := performRequest(env.Router, http.MethodPost, "/api/qa", body, "application/json")

	var resp struct {
		Code int              `json:"code"`
		Data model.QAResponse `json:"data"`
	}
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp.Data
}

func TestAnswerQuestionValidation(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()

	// 缺少问题字段
	w := performRequest(env.Router, http.MethodPost, "/api/qa", []byte(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 非法JSON
	w = performRequest(env.Router, http.MethodPost, "/api/qa", []byte(`{not json`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestAnswerWithEmptyIndex 空索引时返回降级回答而不是错误
func TestAnswerWithEmptyIndex(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()

	w, data := askQuestion(t, env, "What does the handbook say?")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, services.NoDocumentsAnswer, data.Answer)
	assert.NotNil(t, data.Sources)
	assert.Empty(t, data.Sources)
}

func TestAnswerWithSeededDocuments(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()

	seedVectorDB(t, env, "doc-handbook", "handbook.pdf", "Employees receive 25 vacation days per year.", "12")

	w, data := askQuestion(t, env, "How many vacation days do employees get?")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "This is the generated answer.", data.Answer)
	require.Len(t, data.Sources, 1)
	assert.Equal(t, "handbook.pdf", data.Sources[0].Source)
	assert.Equal(t, "12", data.Sources[0].Page)
}

// TestAnswerGenerationFailure 大模型失败映射为502
func TestAnswerGenerationFailure(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()

	seedVectorDB(t, env, "doc-1", "notes.txt", "Some indexed content.", "")
	env.LLM.setFail(true)

	w, _ := askQuestion(t, env, "What is in the notes?")
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var resp model.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusBadGateway, resp.Code)
}

// TestAnswerUsesCache 相同问题的第二次请求命中缓存，不再调用大模型
func TestAnswerUsesCache(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()

	seedVectorDB(t, env, "doc-cache", "cache.txt", "Cached content for repeat questions.", "")

	w, first := askQuestion(t, env, "What is cached?")
	require.Equal(t, http.StatusOK, w.Code)

	// 大模型不可用时缓存仍然生效
	env.LLM.setFail(true)
	w, second := askQuestion(t, env, "What is cached?")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, first.Sources, second.Sources)
}

// TestAnswerSourcesWithoutPage 没有页码概念的来源使用占位值
func TestAnswerSourcesWithoutPage(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()

	seedVectorDB(t, env, "doc-plain", "plain.txt", "Plain text content without pages.", "")

	w, data := askQuestion(t, env, "What is in the plain text?")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, data.Sources, 1)
	assert.Equal(t, "plain.txt", data.Sources[0].Source)
	assert.Equal(t, metadata.PageNone, data.Sources[0].Page)
}
