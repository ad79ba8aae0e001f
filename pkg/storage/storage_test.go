package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocalStorage(t *testing.T) *LocalStorage {
	t.Helper()

	s, err := NewLocalStorage(LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)
	return s
}

func TestLocalStorageSave(t *testing.T) {
	s := newTestLocalStorage(t)

	info, err := s.Save(strings.NewReader("季度报告正文"), "report.txt")
	require.NoError(t, err)

	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "report.txt", info.Name)
	assert.Equal(t, "text/plain", info.MimeType)
	assert.True(t, strings.HasSuffix(info.Path, info.ID+".txt"))

	// 文件确实落盘且带日期目录前缀
	_, err = os.Stat(filepath.Join(s.basePath, info.Path))
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(info.Path, string(filepath.Separator)))
}

func TestLocalStorageGet(t *testing.T) {
	s := newTestLocalStorage(t)

	info, err := s.Save(strings.NewReader("retrievable content"), "doc.md")
	require.NoError(t, err)

	reader, err := s.Get(info.ID)
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "retrievable content", string(data))
}

func TestLocalStorageGetUnknownID(t *testing.T) {
	s := newTestLocalStorage(t)

	_, err := s.Get("no-such-id")
	require.ErrorIs(t, err, ErrFileNotFound)
}

func TestLocalStorageListAndExists(t *testing.T) {
	s := newTestLocalStorage(t)

	first, err := s.Save(strings.NewReader("one"), "a.txt")
	require.NoError(t, err)
	_, err = s.Save(strings.NewReader("two"), "b.csv")
	require.NoError(t, err)

	files, err := s.List()
	require.NoError(t, err)
	require.Len(t, files, 2)

	exists, err := s.Exists(first.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.Exists("non-existent-id")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStorageDelete(t *testing.T) {
	s := newTestLocalStorage(t)

	info, err := s.Save(strings.NewReader("to be removed"), "tmp.txt")
	require.NoError(t, err)

	require.NoError(t, s.Delete(info.ID))

	exists, err := s.Exists(info.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	require.ErrorIs(t, s.Delete(info.ID), ErrFileNotFound)
}

func TestLocalStorageMimeTypes(t *testing.T) {
	cases := map[string]string{
		"a.pdf":      "application/pdf",
		"b.md":       "text/markdown",
		"c.MARKDOWN": "text/markdown",
		"d.txt":      "text/plain",
		"e.csv":      "text/csv",
		"f.bin":      "application/octet-stream",
	}
	for filename, want := range cases {
		assert.Equal(t, want, getMimeType(filename), filename)
	}
}

// TestMinioStorage 需要本地MinIO服务，通过环境变量MINIO_TEST_ENDPOINT启用
func TestMinioStorage(t *testing.T) {
	endpoint := os.Getenv("MINIO_TEST_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_TEST_ENDPOINT not set, skipping MinIO storage tests")
	}

	s, err := NewMinioStorage(MinioConfig{
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "doc-rag-test",
	})
	require.NoError(t, err)

	info, err := s.Save(strings.NewReader("minio object content"), "object.txt")
	require.NoError(t, err)
	defer s.Delete(info.ID)

	reader, err := s.Get(info.ID)
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "minio object content", string(data))

	exists, err := s.Exists(info.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.Delete(info.ID))
	exists, err = s.Exists(info.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}
