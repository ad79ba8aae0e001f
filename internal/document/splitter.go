package document

import (
	"fmt"
)

// SplitterConfig 分块器配置
type SplitterConfig struct {
	ChunkSize    int // 分块最大长度（字符数）
	ChunkOverlap int // 相邻分块的重叠长度（字符数）
}

// DefaultSplitterConfig 返回默认分块器配置
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		ChunkSize:    1000,
		ChunkOverlap: 100,
	}
}

// Chunk 文档分块
// 索引和检索的基本单位，创建后不再修改
type Chunk struct {
	Content  string // 分块文本内容
	SourceID string // 来源文档标识
	Index    int    // 在文档中的序号（1起始）
	Page     int    // 页码，0表示来源格式没有页码概念
}

// Splitter 文本分块器接口
// 负责将提取出的文本单元分割成适合向量化的分块
type Splitter interface {
	// Split 将文本单元分割成分块序列
	Split(units []Unit, sourceID string) ([]Chunk, error)
}

// TextSplitter 实现递归边界感知的文本分块器
// 优先在段落边界切分，其次句子边界，再次单词边界，
// 相同输入和参数下切分结果完全确定
type TextSplitter struct {
	config SplitterConfig
}

// NewTextSplitter 创建新的文本分块器
func NewTextSplitter(config SplitterConfig) (*TextSplitter, error) {
	if config.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize)
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d",
			config.ChunkSize, config.ChunkOverlap)
	}
	return &TextSplitter{config: config}, nil
}

// Config 返回分块配置
func (s *TextSplitter) Config() SplitterConfig {
	return s.config
}

// Split 将文本单元分割成分块序列
// 分块序号跨单元连续递增，每个分块继承所属单元的页码
func (s *TextSplitter) Split(units []Unit, sourceID string) ([]Chunk, error) {
	var chunks []Chunk

	index := 0
	for _, unit := range units {
		for _, piece := range s.splitText(unit.Text) {
			index++
			chunks = append(chunks, Chunk{
				Content:  piece,
				SourceID: sourceID,
				Index:    index,
				Page:     unit.Page,
			})
		}
	}

	return chunks, nil
}

// splitText 将单段文本分割成长度不超过ChunkSize的片段
// 相邻片段之间保留ChunkOverlap个字符的重叠；
// 片段是原文的精确子串，去除重叠后拼接可无损还原原文
func (s *TextSplitter) splitText(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= s.config.ChunkSize {
		return []string{text}
	}

	var pieces []string
	start := 0
	for start < len(runes) {
		end := start + s.config.ChunkSize
		if end >= len(runes) {
			pieces = append(pieces, string(runes[start:]))
			break
		}

		// 在窗口内寻找最佳切分点
		cut := s.findBoundary(runes, start, end)
		pieces = append(pieces, string(runes[start:cut]))

		// 下一个片段从切分点回退重叠长度处开始
		next := cut - s.config.ChunkOverlap
		if next <= start {
			next = cut
		}
		start = next
	}

	return pieces
}

// findBoundary 在runes[start:end]内从后向前寻找切分点
// 优先级：段落边界 > 句子边界 > 单词边界 > 硬切分
// 切分点不早于窗口中点，避免产生过碎的分块
func (s *TextSplitter) findBoundary(runes []rune, start, end int) int {
	min := start + s.config.ChunkSize/2

	// 段落边界：连续两个换行符之后
	for i := end; i > min; i-- {
		if runes[i-1] == '\n' && i >= 2 && runes[i-2] == '\n' {
			return i
		}
	}

	// 句子边界：句末标点之后
	for i := end; i > min; i-- {
		if isSentenceEnd(runes[i-1]) {
			return i
		}
	}

	// 单词边界：空白符之后
	for i := end; i > min; i-- {
		if runes[i-1] == ' ' || runes[i-1] == '\n' || runes[i-1] == '\t' {
			return i
		}
	}

	// 找不到任何自然边界，按长度硬切分
	return end
}

// isSentenceEnd 判断字符是否为句末标点
func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？', '；':
		return true
	}
	return false
}
