package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"example.com/socialwall/internal/models"
)

// MockObject is a stored blob in MockStorage.
type MockObject struct {
	Data        []byte
	ContentType string
	UpdatedAt   time.Time
}

// MockStorage keeps buckets in memory for testing.
type MockStorage struct {
	mu      sync.Mutex
	Buckets map[string]map[string]MockObject

	ShouldFail     bool // fail every call
	ShouldFailList bool // fail only List
}

// NewMock initializes an empty mock storage
func NewMock() *MockStorage {
	return &MockStorage{Buckets: make(map[string]map[string]MockObject)}
}

func (m *MockStorage) Upload(ctx context.Context, bucket, key string, body io.Reader, opts UploadOptions) error {
	if m.ShouldFail {
		return errors.New("mock: upload failed")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.Buckets[bucket]
	if !ok {
		b = make(map[string]MockObject)
		m.Buckets[bucket] = b
	}
	if _, exists := b[key]; exists && !opts.Overwrite {
		return fmt.Errorf("%s/%s: %w", bucket, key, models.ErrExists)
	}
	b[key] = MockObject{Data: data, ContentType: opts.ContentType, UpdatedAt: time.Now().UTC()}
	return nil
}

func (m *MockStorage) List(ctx context.Context, bucket, prefix string) ([]models.StoredFile, error) {
	if m.ShouldFail || m.ShouldFailList {
		return nil, errors.New("mock: list failed")
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var files []models.StoredFile
	for key, obj := range m.Buckets[bucket] {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		name := strings.TrimPrefix(key, prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		files = append(files, models.StoredFile{
			Name:      name,
			Key:       key,
			Size:      int64(len(obj.Data)),
			UpdatedAt: obj.UpdatedAt,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (m *MockStorage) PublicURL(bucket, key string) string {
	return "https://storage.test/" + bucket + "/" + escapeKey(key)
}

// Object returns a stored object, if any.
func (m *MockStorage) Object(bucket, key string) (MockObject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.Buckets[bucket][key]
	return obj, ok
}

// Count returns the number of objects in bucket.
func (m *MockStorage) Count(bucket string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Buckets[bucket])
}
