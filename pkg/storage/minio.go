package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStorage 对象存储实现，对象按 年/月/日/<id><ext> 命名
type MinioStorage struct {
	client *minio.Client
	bucket string
}

// MinioConfig MinIO连接配置
type MinioConfig struct {
	Endpoint  string // 服务端点
	AccessKey string // 访问密钥ID
	SecretKey string // 秘密访问密钥
	UseSSL    bool   // 是否使用TLS
	Bucket    string // 存储桶名称
}

// NewMinioStorage 创建MinIO存储实例，存储桶不存在时自动创建
func NewMinioStorage(cfg MinioConfig) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinioStorage{client: client, bucket: cfg.Bucket}, nil
}

// Save 上传文件内容并分配唯一ID
func (s *MinioStorage) Save(reader io.Reader, filename string) (FileInfo, error) {
	id := uuid.New().String()
	ext := filepath.Ext(filename)
	objectName := fmt.Sprintf("%s/%s%s", time.Now().Format("2006/01/02"), id, ext)
	contentType := getMimeType(filename)

	// 大小传-1走流式上传，不把文件整个读进内存
	info, err := s.client.PutObject(
		context.Background(),
		s.bucket,
		objectName,
		reader,
		-1,
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to upload file: %w", err)
	}

	return FileInfo{
		ID:       id,
		Name:     filename,
		Size:     info.Size,
		MimeType: contentType,
		Path:     objectName,
	}, nil
}

// Get 按ID读取对象内容
func (s *MinioStorage) Get(id string) (io.ReadCloser, error) {
	objectName, err := s.objectNameByID(id)
	if err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(context.Background(), s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return obj, nil
}

// Delete 按ID删除对象
func (s *MinioStorage) Delete(id string) error {
	objectName, err := s.objectNameByID(id)
	if err != nil {
		return err
	}

	if err := s.client.RemoveObject(context.Background(), s.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// List 列出存储桶中的全部对象
func (s *MinioStorage) List() ([]FileInfo, error) {
	var files []FileInfo

	for object := range s.client.ListObjects(
		context.Background(),
		s.bucket,
		minio.ListObjectsOptions{Recursive: true},
	) {
		if object.Err != nil {
			return nil, fmt.Errorf("error listing objects: %w", object.Err)
		}

		name := filepath.Base(object.Key)
		files = append(files, FileInfo{
			ID:       strings.TrimSuffix(name, filepath.Ext(name)),
			Name:     name,
			Size:     object.Size,
			MimeType: getMimeType(name),
			Path:     object.Key,
		})
	}

	return files, nil
}

// Exists 判断ID对应的对象是否存在
func (s *MinioStorage) Exists(id string) (bool, error) {
	_, err := s.objectNameByID(id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrFileNotFound) {
		return false, nil
	}
	return false, err
}

// objectNameByID 遍历存储桶找到ID对应的对象名
// 对象按ID命名，逐日期前缀列举即可定位
func (s *MinioStorage) objectNameByID(id string) (string, error) {
	for object := range s.client.ListObjects(
		context.Background(),
		s.bucket,
		minio.ListObjectsOptions{Recursive: true},
	) {
		if object.Err != nil {
			return "", fmt.Errorf("error listing objects: %w", object.Err)
		}

		name := filepath.Base(object.Key)
		if strings.TrimSuffix(name, filepath.Ext(name)) == id {
			return object.Key, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrFileNotFound, id)
}
