package document

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFExtractor PDF文档提取器
// 按页提取文本，每页作为一个携带页码的文本单元
type PDFExtractor struct{}

// NewPDFExtractor 创建一个新的PDF提取器
func NewPDFExtractor() Extractor {
	return &PDFExtractor{}
}

// Format 返回提取器处理的格式
func (e *PDFExtractor) Format() Format {
	return FormatPaginated
}

// Extract 从Reader提取PDF文本，按页返回文本单元
func (e *PDFExtractor) Extract(r io.Reader, filename string) ([]Unit, error) {
	// pdfcpu的内容提取需要文件路径，先落盘到临时文件
	tmpFile, err := os.CreateTemp("", "pdf_extract_*.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		return nil, fmt.Errorf("failed to write temp pdf: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp pdf: %v", err)
	}

	return extractPDFPages(tmpFile.Name())
}

// extractPDFPages 逐页提取PDF文本内容
func extractPDFPages(filePath string) ([]Unit, error) {
	// 创建临时目录用于存放提取的文本
	tmpDir, err := os.MkdirTemp("", "pdfcpu_extract_")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	// 使用默认配置
	conf := model.NewDefaultConfiguration()

	// 提取文本到临时目录，每页一个txt文件
	if err := api.ExtractContentFile(filePath, tmpDir, nil, conf); err != nil {
		return nil, fmt.Errorf("failed to extract text from PDF: %v", err)
	}

	files, err := os.ReadDir(tmpDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read extracted text dir: %v", err)
	}

	// 从文件名解析页码，按页码排序
	type pageFile struct {
		page int
		name string
	}
	var pageFiles []pageFile
	for _, f := range files {
		if !strings.HasSuffix(f.Name(), ".txt") {
			continue
		}
		pageFiles = append(pageFiles, pageFile{
			page: parsePageNumber(f.Name()),
			name: f.Name(),
		})
	}
	sort.Slice(pageFiles, func(i, j int) bool {
		if pageFiles[i].page != pageFiles[j].page {
			return pageFiles[i].page < pageFiles[j].page
		}
		return pageFiles[i].name < pageFiles[j].name
	})

	var units []Unit
	for i, pf := range pageFiles {
		data, err := os.ReadFile(filepath.Join(tmpDir, pf.name))
		if err != nil {
			continue
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			continue
		}
		page := pf.page
		if page == 0 {
			page = i + 1 // 文件名中没有页码时退回到顺序号
		}
		units = append(units, Unit{Text: text, Page: page})
	}

	if len(units) == 0 {
		return nil, fmt.Errorf("no text content found in PDF")
	}
	return units, nil
}

// parsePageNumber 从提取文件名中解析页码
// pdfcpu生成的文件名以页码结尾，例如 *_Content_page_3.txt
func parsePageNumber(name string) int {
	name = strings.TrimSuffix(name, ".txt")

	// 取末尾连续数字
	end := len(name)
	start := end
	for start > 0 && name[start-1] >= '0' && name[start-1] <= '9' {
		start--
	}
	if start == end {
		return 0
	}

	page, err := strconv.Atoi(name[start:end])
	if err != nil {
		return 0
	}
	return page
}
