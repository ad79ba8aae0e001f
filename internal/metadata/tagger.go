package metadata

import (
	"path/filepath"

	"github.com/ragkit/doc-rag/internal/document"
)

// Tagger 元数据打标器
// 为分块生成入库前的元数据信封
type Tagger struct{}

// NewTagger 创建新的元数据打标器
func NewTagger() *Tagger {
	return &Tagger{}
}

// Tag 为分块生成元数据信封
// 相同输入总是产生相同的信封，重复入库幂等
func (t *Tagger) Tag(chunk document.Chunk) (Envelope, error) {
	tags, err := EncodeChunkTag(chunk.Index, chunk.Page)
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{
		URL:      chunk.SourceID,
		Filepath: chunk.SourceID,
		Title:    displayTitle(chunk.SourceID),
		Tags:     tags,
	}, nil
}

// displayTitle 从来源标识推导展示名称
func displayTitle(sourceID string) string {
	if sourceID == "" {
		return ""
	}
	return filepath.Base(sourceID)
}
