package document

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// CSVExtractor CSV文档提取器
// 每行作为一个预分割的文本单元，行号（1起始）充当页码
type CSVExtractor struct{}

// NewCSVExtractor 创建一个新的CSV提取器
func NewCSVExtractor() Extractor {
	return &CSVExtractor{}
}

// Format 返回提取器处理的格式
func (e *CSVExtractor) Format() Format {
	return FormatTabular
}

// Extract 逐行读取CSV，每行转换为一个文本单元
func (e *CSVExtractor) Extract(r io.Reader, filename string) ([]Unit, error) {
	reader := csv.NewReader(r)
	// 允许行与行之间字段数不一致
	reader.FieldsPerRecord = -1

	var units []Unit
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %v", row+1, err)
		}
		row++

		text := strings.TrimSpace(strings.Join(record, ", "))
		if text == "" {
			continue
		}
		units = append(units, Unit{Text: text, Page: row})
	}

	if units == nil {
		units = []Unit{}
	}
	return units, nil
}
