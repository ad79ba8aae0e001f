package storage

import (
	"errors"
	"io"
)

// ErrFileNotFound 按ID找不到文件
var ErrFileNotFound = errors.New("file not found")

// FileInfo 已保存文件的元数据
type FileInfo struct {
	ID       string // 文件唯一标识
	Name     string // 上传时的原始文件名
	Size     int64  // 文件大小(字节)
	MimeType string // MIME类型
	Path     string // 存储内部路径，含义由实现决定
}

// Storage 上传文件的存储接口
// 本地文件系统和MinIO各有一个实现
type Storage interface {
	// Save 保存文件内容并分配唯一ID
	Save(reader io.Reader, filename string) (FileInfo, error)

	// Get 按ID读取文件内容，调用方负责Close
	Get(id string) (io.ReadCloser, error)

	// Delete 按ID删除文件
	Delete(id string) error

	// List 列出存储中的全部文件
	List() ([]FileInfo, error)

	// Exists 判断文件是否存在
	Exists(id string) (bool, error)
}
