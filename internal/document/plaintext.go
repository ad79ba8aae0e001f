package document

import (
	"fmt"
	"io"
)

// PlainTextExtractor 纯文本提取器
// 整个文件作为一个没有页码的文本单元
type PlainTextExtractor struct{}

// NewPlainTextExtractor 创建一个新的纯文本提取器
func NewPlainTextExtractor() Extractor {
	return &PlainTextExtractor{}
}

// Format 返回提取器处理的格式
func (e *PlainTextExtractor) Format() Format {
	return FormatText
}

// Extract 读取全部内容并作为单个文本单元返回
func (e *PlainTextExtractor) Extract(r io.Reader, filename string) ([]Unit, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read text content: %v", err)
	}

	text := string(content)
	if text == "" {
		return []Unit{}, nil
	}

	return []Unit{{Text: text}}, nil
}
