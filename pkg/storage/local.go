package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalStorage 本地文件系统存储
// 文件按 年/月/日/<id><ext> 的目录结构落盘
type LocalStorage struct {
	basePath string
}

// LocalConfig 本地存储配置
type LocalConfig struct {
	Path string // 存储根目录
}

// NewLocalStorage 创建本地存储实例并确保根目录存在
func NewLocalStorage(cfg LocalConfig) (*LocalStorage, error) {
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{basePath: absPath}, nil
}

// Save 保存文件并返回分配的ID和相对路径
func (s *LocalStorage) Save(reader io.Reader, filename string) (FileInfo, error) {
	id := uuid.New().String()
	ext := filepath.Ext(filename)

	datePath := time.Now().Format(filepath.Join("2006", "01", "02"))
	dirPath := filepath.Join(s.basePath, datePath)
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return FileInfo{}, fmt.Errorf("failed to create directory: %w", err)
	}

	relPath := filepath.Join(datePath, id+ext)
	file, err := os.Create(filepath.Join(s.basePath, relPath))
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	size, err := io.Copy(file, reader)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to write file: %w", err)
	}

	return FileInfo{
		ID:       id,
		Name:     filename,
		Size:     size,
		MimeType: getMimeType(filename),
		Path:     relPath,
	}, nil
}

// Get 按ID读取文件内容
func (s *LocalStorage) Get(id string) (io.ReadCloser, error) {
	path, err := s.locate(id)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete 按ID删除文件
func (s *LocalStorage) Delete(id string) error {
	path, err := s.locate(id)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// List 遍历存储目录列出全部文件
func (s *LocalStorage) List() ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		relPath, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		name := d.Name()
		files = append(files, FileInfo{
			ID:       strings.TrimSuffix(name, filepath.Ext(name)),
			Name:     name,
			Size:     info.Size(),
			MimeType: getMimeType(name),
			Path:     relPath,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return files, nil
}

// Exists 判断ID对应的文件是否存在
func (s *LocalStorage) Exists(id string) (bool, error) {
	_, err := s.locate(id)
	if errors.Is(err, ErrFileNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// errStopWalk 找到目标后用于提前结束遍历
var errStopWalk = errors.New("stop walk")

// locate 在目录树中查找ID对应的文件路径
func (s *LocalStorage) locate(id string) (string, error) {
	var match string

	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		name := d.Name()
		if strings.TrimSuffix(name, filepath.Ext(name)) == id {
			match = path
			return errStopWalk
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		return "", fmt.Errorf("error searching for file: %w", err)
	}

	if match == "" {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	return match, nil
}

// getMimeType 按扩展名判断MIME类型
func getMimeType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
