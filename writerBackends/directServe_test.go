package writerbackends

import (
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagerelay/utils"
)

var signingKey = []byte("directserve-signing-key-0123456789abcdef")

func TestDirectServeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDirectServe(dir, "https://img.example.com/", signingKey)
	require.NoError(t, err)

	require.NoError(t, store.Put(t.Context(), "thumb-rec1.jpg", []byte("first")))
	require.NoError(t, store.Put(t.Context(), "thumb-rec1.jpg", []byte("second")))

	onDisk, err := os.ReadFile(filepath.Join(dir, "thumb-rec1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(onDisk))

	signed, err := store.SignRead(t.Context(), "thumb-rec1.jpg", time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(signed, "https://img.example.com/files/thumb-rec1.jpg?token="))

	u, err := url.Parse(signed)
	require.NoError(t, err)
	f, err := store.Open("thumb-rec1.jpg", u.Query().Get("token"))
	require.NoError(t, err)
	defer f.Close()
	content, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "second", string(content))

	_, err = store.Open("other.jpg", u.Query().Get("token"))
	assert.ErrorIs(t, err, utils.ErrInvalidSubject)
}

func TestDirectServeExpiredToken(t *testing.T) {
	store, err := NewDirectServe(t.TempDir(), "http://localhost", signingKey)
	require.NoError(t, err)
	require.NoError(t, store.Put(t.Context(), "a.jpg", []byte("x")))

	signed, err := store.SignRead(t.Context(), "a.jpg", -time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)

	_, err = store.Open("a.jpg", u.Query().Get("token"))
	assert.ErrorIs(t, err, utils.ErrTokenExpired)
}

func TestDirectServeRejectsTraversal(t *testing.T) {
	store, err := NewDirectServe(t.TempDir(), "http://localhost", signingKey)
	require.NoError(t, err)

	for _, key := range []string{"", "../escape.jpg", "nested/a.jpg", `..\a.jpg`, ".."} {
		t.Run(key, func(t *testing.T) {
			assert.ErrorIs(t, store.Put(t.Context(), key, []byte("x")), ErrInvalidKey)
		})
	}
}

func TestNewDirectServeShortKey(t *testing.T) {
	_, err := NewDirectServe(t.TempDir(), "http://localhost", []byte("short"))
	assert.ErrorIs(t, err, utils.ErrKeyTooShort)
}
