package document

import (
	"fmt"
	"io"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// MarkdownExtractor Markdown文档提取器
// 渲染后剥离标记，整个文档作为一个没有页码的文本单元
type MarkdownExtractor struct{}

// NewMarkdownExtractor 创建新的Markdown提取器
func NewMarkdownExtractor() Extractor {
	return &MarkdownExtractor{}
}

// Format 返回提取器处理的格式
func (e *MarkdownExtractor) Format() Format {
	return FormatText
}

// Extract 从Reader提取Markdown纯文本内容
func (e *MarkdownExtractor) Extract(r io.Reader, filename string) ([]Unit, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read markdown content: %v", err)
	}

	if len(content) == 0 {
		return []Unit{}, nil
	}

	// 创建Markdown解析器
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	mdParser := parser.NewWithExtensions(extensions)

	// 解析Markdown内容
	doc := mdParser.Parse(content)

	// 渲染为HTML后提取纯文本
	htmlFlags := html.CommonFlags
	renderer := html.NewRenderer(html.RendererOptions{Flags: htmlFlags})
	htmlContent := markdown.Render(doc, renderer)

	plainText := extractTextFromHTML(string(htmlContent))
	if plainText == "" {
		return []Unit{}, nil
	}

	return []Unit{{Text: plainText}}, nil
}

// extractTextFromHTML 从HTML中提取纯文本
// 注意：这是一个简化的实现，更复杂的情况可能需要使用HTML解析库
func extractTextFromHTML(htmlText string) string {
	// 替换常见的HTML元素为空格或换行符
	replacements := []struct {
		Old string
		New string
	}{
		{"<br>", "\n"},
		{"<br/>", "\n"},
		{"<br />", "\n"},
		{"<p>", ""},
		{"</p>", "\n\n"},
		{"<li>", "- "},
		{"</li>", "\n"},
		{"<ul>", "\n"},
		{"</ul>", "\n"},
		{"<ol>", "\n"},
		{"</ol>", "\n"},
		{"<h1>", "\n\n"},
		{"</h1>", "\n\n"},
		{"<h2>", "\n\n"},
		{"</h2>", "\n\n"},
		{"<h3>", "\n\n"},
		{"</h3>", "\n\n"},
		{"<h4>", "\n\n"},
		{"</h4>", "\n\n"},
		{"<h5>", "\n\n"},
		{"</h5>", "\n\n"},
		{"<h6>", "\n\n"},
		{"</h6>", "\n\n"},
	}

	result := htmlText
	for _, r := range replacements {
		result = strings.ReplaceAll(result, r.Old, r.New)
	}

	// 移除所有HTML标签
	for {
		start := strings.Index(result, "<")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], ">")
		if end == -1 {
			break
		}
		result = result[:start] + " " + result[start+end+1:]
	}

	return normalizeWhitespace(result)
}

// normalizeWhitespace 规范化文本中的空白符
// 保留段落边界（空行），其余连续空白折叠为单个空格
func normalizeWhitespace(text string) string {
	paragraphs := strings.Split(text, "\n\n")

	var result []string
	for _, p := range paragraphs {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			result = append(result, p)
		}
	}

	return strings.Join(result, "\n\n")
}
