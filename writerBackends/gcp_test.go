package writerbackends

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagerelay/credentials"
)

func testServiceKey(t *testing.T) *credentials.ServiceKey {
	t.Helper()
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(rsaKey)
	require.NoError(t, err)
	pemKey := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))

	doc := map[string]string{
		"type":           "service_account",
		"project_id":     "demo",
		"private_key_id": "k1",
		"private_key":    pemKey,
		"client_email":   "svc@demo.iam.gserviceaccount.com",
		"client_id":      "1",
		"token_uri":      "https://oauth2.googleapis.com/token",
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	return &credentials.ServiceKey{
		Type:        doc["type"],
		ProjectID:   doc["project_id"],
		ClientEmail: doc["client_email"],
		PrivateKey:  pemKey,
		JSON:        raw,
	}
}

func TestGCSSignRead(t *testing.T) {
	store, err := NewGCS(t.Context(), "demo", "images", testServiceKey(t))
	require.NoError(t, err)
	defer store.Close()

	signed, err := store.SignRead(t.Context(), "optimized-image-rec1.jpg", 7*24*time.Hour-time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "storage.googleapis.com", u.Host)
	assert.Contains(t, u.Path, "images/optimized-image-rec1.jpg")
	assert.Equal(t, "GOOG4-RSA-SHA256", u.Query().Get("X-Goog-Algorithm"))
	assert.Contains(t, u.Query().Get("X-Goog-Credential"), "svc@demo.iam.gserviceaccount.com")
}
