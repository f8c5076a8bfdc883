package credentials

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrIncompleteKey = errors.New("service key requires client_email and private_key")

// ServiceKey is the subset of a Google service account key the storage
// backend needs. JSON keeps the decoded document for client construction.
type ServiceKey struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`

	JSON []byte `json:"-"`
}

// DecodeServiceKey decodes a base64 encoded service account JSON document.
// Padded and unpadded encodings are both accepted.
func DecodeServiceKey(encoded string) (*ServiceKey, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("service key is empty")
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			return nil, fmt.Errorf("service key is not valid base64: %w", err)
		}
	}

	key := &ServiceKey{}
	if err := json.Unmarshal(raw, key); err != nil {
		return nil, fmt.Errorf("service key is not valid JSON: %w", err)
	}
	if key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, ErrIncompleteKey
	}
	key.JSON = raw
	return key, nil
}
