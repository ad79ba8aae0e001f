package services

import "fmt"

// IndexWriteError 向量索引写入失败错误
// 保留底层原因，文档摄入失败时向调用方传递
type IndexWriteError struct {
	DocumentID string // 关联的文档ID
	Err        error  // 底层错误
}

// Error 实现error接口
func (e *IndexWriteError) Error() string {
	return fmt.Sprintf("failed to write document %s to vector index: %v", e.DocumentID, e.Err)
}

// Unwrap 返回底层错误
func (e *IndexWriteError) Unwrap() error {
	return e.Err
}

// NewIndexWriteError 创建索引写入错误
func NewIndexWriteError(documentID string, err error) *IndexWriteError {
	return &IndexWriteError{DocumentID: documentID, Err: err}
}

// GenerationError 回答生成失败错误
// 与检索失败区分开，检索失败会降级而生成失败直接上报
type GenerationError struct {
	Err error // 底层错误
}

// Error 实现error接口
func (e *GenerationError) Error() string {
	return fmt.Sprintf("failed to generate answer: %v", e.Err)
}

// Unwrap 返回底层错误
func (e *GenerationError) Unwrap() error {
	return e.Err
}

// NewGenerationError 创建生成错误
func NewGenerationError(err error) *GenerationError {
	return &GenerationError{Err: err}
}
