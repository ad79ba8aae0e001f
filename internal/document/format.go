package document

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Format 文档格式类型
// 不同格式有不同的提取策略
type Format string

const (
	// FormatText 平面文本格式（txt、markdown）
	FormatText Format = "text"
	// FormatPaginated 分页格式（pdf），提取时保留页码
	FormatPaginated Format = "paginated"
	// FormatTabular 表格格式（csv），每行作为一个提取单元
	FormatTabular Format = "tabular"
)

// Unit 格式提取出的文本单元
// 分块器以单元为边界进行分割，块继承所属单元的页码
type Unit struct {
	Text string // 单元文本内容
	Page int    // 页码（1起始），0表示该格式没有页码概念
}

// Extractor 文档内容提取器接口
// 负责将不同格式的文档提取为有序的文本单元
type Extractor interface {
	// Extract 从Reader提取文本单元
	// filename用于确定文档类型
	Extract(r io.Reader, filename string) ([]Unit, error)

	// Format 返回提取器处理的格式
	Format() Format
}

// UnsupportedFormatError 不支持的文件格式错误
// 携带被拒绝的扩展名，原样返回给调用方
type UnsupportedFormatError struct {
	Ext string // 被拒绝的文件扩展名
}

// Error 实现error接口
func (e *UnsupportedFormatError) Error() string {
	if e.Ext == "" {
		return "unsupported document format: file has no extension"
	}
	return fmt.Sprintf("unsupported document format: %s", e.Ext)
}

// DetectFormat 根据文件扩展名检测文档格式
// 不会根据内容猜测格式，无法识别的扩展名返回UnsupportedFormatError
func DetectFormat(filename string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".txt", ".md", ".markdown":
		return FormatText, nil
	case ".pdf":
		return FormatPaginated, nil
	case ".csv":
		return FormatTabular, nil
	default:
		return "", &UnsupportedFormatError{Ext: ext}
	}
}

// ExtractorFactory 提取器工厂函数，根据文件类型创建对应的提取器
func ExtractorFactory(filename string) (Extractor, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatPaginated:
		return NewPDFExtractor(), nil
	case FormatTabular:
		return NewCSVExtractor(), nil
	default:
		ext := strings.ToLower(filepath.Ext(filename))
		if ext == ".md" || ext == ".markdown" {
			return NewMarkdownExtractor(), nil
		}
		return NewPlainTextExtractor(), nil
	}
}
