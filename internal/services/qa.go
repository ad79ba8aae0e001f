package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ragkit/doc-rag/internal/cache"
	"github.com/ragkit/doc-rag/internal/embedding"
	"github.com/ragkit/doc-rag/internal/llm"
	"github.com/ragkit/doc-rag/internal/metadata"
	"github.com/ragkit/doc-rag/internal/vectordb"
	"github.com/sirupsen/logrus"
)

// NoDocumentsAnswer 知识库为空或检索不可用时的降级回答
const NoDocumentsAnswer = "I cannot answer this question because no documents have been loaded into the knowledge base yet."

// Answer 问答结果
type Answer struct {
	Answer  string                      `json:"answer"`  // 回答内容
	Sources []metadata.NormalizedSource `json:"sources"` // 引用来源
}

// QAService 问答服务
// 负责协调向量检索、提示词组装和大模型生成
type QAService struct {
	embedder    embedding.Client     // 嵌入模型客户端
	vectorDB    vectordb.Repository  // 向量数据库
	llm         llm.Client           // 大模型客户端
	reconciler  *metadata.Reconciler // 来源归一化器
	cache       cache.Cache          // 缓存
	cacheTTL    time.Duration        // 缓存有效期
	searchLimit int                  // 检索结果数量限制
	logger      *logrus.Logger       // 日志记录器
}

// QAOption 问答服务配置选项
type QAOption func(*QAService)

// NewQAService 创建问答服务实例
func NewQAService(
	embedder embedding.Client,
	vectorDB vectordb.Repository,
	llmClient llm.Client,
	cache cache.Cache,
	opts ...QAOption,
) *QAService {
	logger := logrus.New()

	service := &QAService{
		embedder:    embedder,
		vectorDB:    vectorDB,
		llm:         llmClient,
		reconciler:  metadata.NewReconciler(logger),
		cache:       cache,
		cacheTTL:    24 * time.Hour, // 默认缓存24小时
		searchLimit: 5,              // 默认检索5个相关文档
		logger:      logger,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

// WithCacheTTL 设置缓存时间
func WithCacheTTL(ttl time.Duration) QAOption {
	return func(s *QAService) {
		s.cacheTTL = ttl
	}
}

// WithSearchLimit 设置检索结果数量
func WithSearchLimit(limit int) QAOption {
	return func(s *QAService) {
		if limit > 0 {
			s.searchLimit = limit
		}
	}
}

// WithQALogger 设置日志记录器
func WithQALogger(logger *logrus.Logger) QAOption {
	return func(s *QAService) {
		if logger != nil {
			s.logger = logger
			s.reconciler = metadata.NewReconciler(logger)
		}
	}
}

// Ask 回答问题
// 检索失败或知识库为空时返回固定的降级回答和空来源列表，
// 生成失败则返回类型化错误
func (s *QAService) Ask(ctx context.Context, question string) (*Answer, error) {
	if question == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}

	// 1. 尝试从缓存获取
	cacheKey := cache.GenerateCacheKey("qa", question)
	if answer, found := s.getCachedAnswer(cacheKey); found {
		return answer, nil
	}

	// 2. 将问题转换为向量
	vector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	// 3. 检索相关文档
	// 检索不可用按空结果处理，问题本身仍能得到降级回答
	results, err := s.vectorDB.Search(vector, s.searchLimit)
	if err != nil {
		s.logger.WithError(err).Error("Vector search failed, returning degraded answer")
		results = nil
	}

	if len(results) == 0 {
		answer := &Answer{
			Answer:  NoDocumentsAnswer,
			Sources: []metadata.NormalizedSource{},
		}
		s.cacheAnswer(cacheKey, answer)
		return answer, nil
	}

	// 4. 组装提示词，所有检索结果都进入上下文
	documents := make([]llm.ContextDocument, len(results))
	metas := make([]map[string]string, len(results))
	for i, result := range results {
		documents[i] = llm.ContextDocument{
			Title:   result.Metadata[metadata.KeyTitle],
			Content: result.Content,
			Score:   result.Score,
		}
		metas[i] = result.Metadata
	}
	prompt := llm.BuildPrompt(documents, question)

	// 5. 调用大模型生成回答
	response, err := s.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, NewGenerationError(err)
	}

	// 6. 归一化引用来源，检索结果和来源一一对应
	sources := s.reconciler.ResolveAll(metas)

	answer := &Answer{
		Answer:  response.Text,
		Sources: sources,
	}

	// 7. 缓存结果
	s.cacheAnswer(cacheKey, answer)

	return answer, nil
}

// getCachedAnswer 从缓存获取完整的问答结果
func (s *QAService) getCachedAnswer(cacheKey string) (*Answer, bool) {
	cached, found, err := s.cache.Get(cacheKey)
	if err != nil || !found {
		return nil, false
	}

	var answer Answer
	if err := json.Unmarshal([]byte(cached), &answer); err != nil {
		// 缓存内容损坏时忽略，走完整流程
		s.logger.WithError(err).Warn("Failed to unmarshal cached answer")
		return nil, false
	}

	if answer.Sources == nil {
		answer.Sources = []metadata.NormalizedSource{}
	}
	return &answer, true
}

// cacheAnswer 缓存问答结果
// 缓存失败只记录日志
func (s *QAService) cacheAnswer(cacheKey string, answer *Answer) {
	data, err := json.Marshal(answer)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to marshal answer for caching")
		return
	}
	if err := s.cache.Set(cacheKey, string(data), s.cacheTTL); err != nil {
		s.logger.WithError(err).Warn("Failed to cache answer")
	}
}

// ClearCache 清除问答缓存
func (s *QAService) ClearCache() error {
	return s.cache.Clear()
}
