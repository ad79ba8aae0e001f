package models

import "errors"

// 存储层哨兵错误，上层通过errors.Is判断
var (
	// ErrDocumentNotFound 按ID查询不到文档记录
	ErrDocumentNotFound = errors.New("document not found")

	// ErrInvalidDocumentStatus 文档状态流转不合法
	ErrInvalidDocumentStatus = errors.New("invalid document status transition")
)
