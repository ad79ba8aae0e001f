package metadata

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// 元数据映射中使用的字段名
// 与向量索引的模式保持一致
const (
	KeySource   = "source"    // 显式来源标识
	KeyURL      = "url"       // 来源URL
	KeyFilepath = "filepath"  // 来源文件路径
	KeyAltPath  = "file_path" // 部分索引模式使用的备选路径字段
	KeyTitle    = "title"     // 展示名称
	KeyTags     = "tags"      // 打包的结构化子元数据
	KeyPage     = "page"      // 显式页码
)

// PageNone 没有页码概念的格式使用的占位值
const PageNone = "n/a"

// Envelope 分块的元数据信封
// 索引模式只有四个命名字段，超出的结构化信息打包进Tags字段
type Envelope struct {
	URL      string `json:"url"`      // 来源标识
	Filepath string `json:"filepath"` // 来源文件路径
	Title    string `json:"title"`    // 展示名称
	Tags     string `json:"tags"`     // 序列化的ChunkTag
}

// ToMap 将信封转换为索引存储使用的字段映射
func (e Envelope) ToMap() map[string]string {
	m := map[string]string{
		KeyURL:      e.URL,
		KeyFilepath: e.Filepath,
		KeyTitle:    e.Title,
	}
	if e.Tags != "" {
		m[KeyTags] = e.Tags
	}
	return m
}

// ChunkTag 打包进单个自由字段的结构化子元数据
// 索引模式约束：命名字段之外的信息只能走这一个字段
type ChunkTag struct {
	Index int    `json:"chunk_index"` // 分块在文档中的序号（1起始）
	Page  string `json:"page"`        // 页码，无页码时为"n/a"
}

// EncodeChunkTag 将分块序号和页码编码为打包字段内容
// page为0表示来源格式没有页码概念
func EncodeChunkTag(index int, page int) (string, error) {
	tag := ChunkTag{
		Index: index,
		Page:  PageNone,
	}
	if page > 0 {
		tag.Page = strconv.Itoa(page)
	}

	data, err := json.Marshal(tag)
	if err != nil {
		return "", fmt.Errorf("failed to encode chunk tag: %v", err)
	}
	return string(data), nil
}

// DecodeChunkTag 解析打包字段内容
// 内容缺失或非法时返回错误，由调用方决定回退策略
func DecodeChunkTag(raw string) (ChunkTag, error) {
	if raw == "" {
		return ChunkTag{}, fmt.Errorf("chunk tag is empty")
	}

	var tag ChunkTag
	if err := json.Unmarshal([]byte(raw), &tag); err != nil {
		return ChunkTag{}, fmt.Errorf("malformed chunk tag: %v", err)
	}
	return tag, nil
}
