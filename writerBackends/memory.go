package writerbackends

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps objects in process memory. It backs local runs without
// cloud credentials and stands in for real storage in tests.
type MemoryStore struct {
	bucket string

	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	signs   int
	putHook func(key string) error
}

func NewMemory(bucket string) *MemoryStore {
	if bucket == "" {
		bucket = "memory"
	}
	return &MemoryStore{bucket: bucket, objects: make(map[string][]byte)}
}

// FailPuts makes Put return the hook's error for keys it rejects.
func (m *MemoryStore) FailPuts(hook func(key string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putHook = hook
}

func (m *MemoryStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putHook != nil {
		if err := m.putHook(key); err != nil {
			return err
		}
	}
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) SignRead(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signs++
	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("object %s not found", key)
	}
	expires := time.Now().Add(ttl).Unix()
	return fmt.Sprintf("memory://%s/%s?expires=%d", m.bucket, url.PathEscape(key), expires), nil
}

// Object returns a copy of the stored bytes.
func (m *MemoryStore) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return append([]byte(nil), data...), ok
}

// Keys lists stored keys in sorted order.
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Calls reports how many Put and SignRead calls were made.
func (m *MemoryStore) Calls() (puts, signs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts, m.signs
}
