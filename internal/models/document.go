package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentStatus 文档处理状态
type DocumentStatus string

const (
	// DocStatusUploaded 已上传，等待处理
	DocStatusUploaded DocumentStatus = "uploaded"
	// DocStatusProcessing 处理中
	DocStatusProcessing DocumentStatus = "processing"
	// DocStatusCompleted 处理完成
	DocStatusCompleted DocumentStatus = "completed"
	// DocStatusFailed 处理失败
	DocStatusFailed DocumentStatus = "failed"
)

// Document 上传文档的元数据记录
type Document struct {
	ID           string         `gorm:"primaryKey"`
	FileName     string         `gorm:"not null"`
	FileType     string         `gorm:"not null"`           // 小写扩展名，如pdf、txt
	FilePath     string         `gorm:"not null"`           // 存储层中的路径
	FileSize     int64          `gorm:"not null"`           // 字节数
	Status       DocumentStatus `gorm:"not null;index"`
	UploadedAt   time.Time      `gorm:"not null;index"`
	ProcessedAt  *time.Time     `gorm:"index"`              // 进入终态的时间
	UpdatedAt    time.Time      `gorm:"not null;index"`
	Progress     int            `gorm:"not null;default:0"` // 0-100
	Error        string         `gorm:"type:text"`
	SegmentCount int            `gorm:"not null;default:0"`
	Tags         string         `gorm:"type:varchar(255)"` // 逗号分隔
	Metadata     datatypes.JSON `gorm:"type:json"`
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now()
	}
	d.UpdatedAt = time.Now()
	return nil
}

func (d *Document) BeforeUpdate(tx *gorm.DB) error {
	d.UpdatedAt = time.Now()
	return nil
}

func (Document) TableName() string {
	return "documents"
}

// DocumentSegment 文档切分出的文本段落
// 向量数据本身在向量索引里，这里只保留可回溯的原文和定位信息
type DocumentSegment struct {
	ID         uint           `gorm:"primaryKey;autoIncrement"`
	DocumentID string         `gorm:"not null;index"`
	SegmentID  string         `gorm:"not null;uniqueIndex"`
	Position   int            `gorm:"not null"`           // 段落在文档中的序号
	Page       int            `gorm:"default:0"`          // 来源页码，无页码时为0
	Text       string         `gorm:"type:text;not null"`
	CreatedAt  time.Time      `gorm:"not null"`
	UpdatedAt  time.Time      `gorm:"not null"`
	Metadata   datatypes.JSON `gorm:"type:json"`
	VectorID   string         `gorm:"size:50"` // 向量索引中的ID
}

func (s *DocumentSegment) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

func (s *DocumentSegment) BeforeUpdate(tx *gorm.DB) error {
	s.UpdatedAt = time.Now()
	return nil
}

func (DocumentSegment) TableName() string {
	return "document_segments"
}
