package writerbackends

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	m := NewMemory("bucket")
	require.NoError(t, m.Put(t.Context(), "b.jpg", []byte("b")))
	require.NoError(t, m.Put(t.Context(), "a.jpg", []byte("a")))

	u, err := m.SignRead(t.Context(), "a.jpg", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, u, "memory://bucket/a.jpg?expires=")

	_, err = m.SignRead(t.Context(), "missing.jpg", time.Hour)
	assert.Error(t, err)

	data, ok := m.Object("b.jpg")
	assert.True(t, ok)
	assert.Equal(t, []byte("b"), data)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, m.Keys())

	puts, signs := m.Calls()
	assert.Equal(t, 2, puts)
	assert.Equal(t, 2, signs)
}

func TestMemoryStoreFailPuts(t *testing.T) {
	m := NewMemory("")
	boom := errors.New("quota exceeded")
	m.FailPuts(func(key string) error {
		if key == "bad.jpg" {
			return boom
		}
		return nil
	})

	assert.ErrorIs(t, m.Put(t.Context(), "bad.jpg", []byte("x")), boom)
	require.NoError(t, m.Put(t.Context(), "good.jpg", []byte("x")))
	assert.Equal(t, []string{"good.jpg"}, m.Keys())
}
