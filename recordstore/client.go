package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"imagerelay/logger"
	"imagerelay/models"
	"imagerelay/utils"
)

// DefaultTimeout bounds one update call.
const DefaultTimeout = 5 * time.Second

// maxErrorBody caps how much of an error response is kept for the message.
const maxErrorBody = 2048

// StatusError reports a non-2xx response from the record store.
type StatusError struct {
	Code       int
	StatusText string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("record store returned %d %s: %s", e.Code, e.StatusText, e.Body)
	}
	return fmt.Sprintf("record store returned %d %s", e.Code, e.StatusText)
}

// Client issues partial row updates against an Airtable-compatible API.
// It holds no per-request state and is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

func New(baseURL string, httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		timeout: timeout,
	}
}

type patchBody struct {
	Fields map[string]any `json:"fields"`
}

// RecordURL is the PATCH endpoint for target.
func (c *Client) RecordURL(target models.UpdateTarget) string {
	return fmt.Sprintf("%s/%s/%s/%s", c.baseURL,
		url.PathEscape(target.BaseID),
		url.PathEscape(target.TableName),
		url.PathEscape(target.RecordID))
}

// Update writes target.Fields onto the row in one PATCH call.
func (c *Client) Update(ctx context.Context, target models.UpdateTarget) error {
	payload, err := json.Marshal(patchBody{Fields: target.Fields})
	if err != nil {
		return fmt.Errorf("failed to marshal update payload: %w", err)
	}
	endpoint := c.RecordURL(target)

	return utils.RunWithDeadline(ctx, c.timeout, "record update", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create update request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+target.AccessToken)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "imagerelay/1.0")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("update request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return &StatusError{
				Code:       resp.StatusCode,
				StatusText: http.StatusText(resp.StatusCode),
				Body:       strings.TrimSpace(string(body)),
			}
		}
		_, _ = io.Copy(io.Discard, resp.Body)

		logger.Debugf("updated record %s in %s/%s (%d fields)", target.RecordID, target.BaseID, target.TableName, len(target.Fields))
		return nil
	})
}
