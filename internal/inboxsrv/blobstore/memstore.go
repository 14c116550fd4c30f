package blobstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/devatlas/devatlas/internal/common/apperrors"
)

type memObject struct {
	data         []byte
	lastModified time.Time
}

// MemStore is an in-memory Store used in tests and local development.
type MemStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]memObject
}

func NewMemStore() *MemStore {
	return &MemStore{
		buckets: make(map[string]map[string]memObject),
	}
}

func (m *MemStore) Get(_ context.Context, bucket, key string) ([]byte, apperrors.Error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.buckets[bucket][key]
	if !ok {
		return nil, ErrObjectNotFound.Msg("get " + bucket + "/" + key)
	}
	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	return data, nil
}

func (m *MemStore) Put(_ context.Context, bucket, key string, data []byte) apperrors.Error {
	m.putAt(bucket, key, data, time.Now())
	return nil
}

// PutAt stores an object with an explicit last-modified time so tests can
// control listing order.
func (m *MemStore) PutAt(bucket, key string, data []byte, lastModified time.Time) {
	m.putAt(bucket, key, data, lastModified)
}

func (m *MemStore) putAt(bucket, key string, data []byte, lastModified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[bucket]
	if !ok {
		b = make(map[string]memObject)
		m.buckets[bucket] = b
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	b[key] = memObject{data: stored, lastModified: lastModified}
}

func (m *MemStore) Copy(_ context.Context, srcBucket, srcKey, dstBucket, dstKey string) apperrors.Error {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.buckets[srcBucket][srcKey]
	if !ok {
		return ErrObjectNotFound.Msg("copy " + srcBucket + "/" + srcKey)
	}
	b, ok := m.buckets[dstBucket]
	if !ok {
		b = make(map[string]memObject)
		m.buckets[dstBucket] = b
	}
	stored := make([]byte, len(obj.data))
	copy(stored, obj.data)
	b[dstKey] = memObject{data: stored, lastModified: time.Now()}
	return nil
}

func (m *MemStore) Delete(_ context.Context, bucket, key string) apperrors.Error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.buckets[bucket], key)
	return nil
}

func (m *MemStore) List(_ context.Context, bucket, prefix string) ([]ObjectInfo, apperrors.Error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var objects []ObjectInfo
	for key, obj := range m.buckets[bucket] {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		objects = append(objects, ObjectInfo{
			Key:          key,
			LastModified: obj.lastModified,
			Size:         int64(len(obj.data)),
		})
	}
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Key < objects[j].Key
	})
	return objects, nil
}

func (m *MemStore) EnsureCredentials(_ context.Context) apperrors.Error {
	return nil
}

var _ Store = (*MemStore)(nil)
