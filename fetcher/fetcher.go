package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"imagerelay/logger"
	"imagerelay/utils"
)

// DefaultTimeout bounds a source image download.
const DefaultTimeout = 10 * time.Second

var (
	ErrTooLarge       = errors.New("response body exceeds size limit")
	ErrUnsupportedURL = errors.New("only http and https URLs are supported")
)

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Code       int
	StatusText string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d %s", e.Code, e.StatusText)
}

// Fetcher downloads whole response bodies. It is safe for concurrent use.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// New returns a Fetcher. A nil client uses a fresh http.Client; maxBytes <= 0
// disables the size cap.
func New(client *http.Client, maxBytes int64) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{client: client, maxBytes: maxBytes}
}

// Fetch retrieves rawURL under timeout and returns the buffered body.
// Expiry yields utils.ErrTimeout, non-2xx responses a *StatusError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid image url: %w", err)
	}
	if scheme := strings.ToLower(u.Scheme); scheme != "http" && scheme != "https" {
		return nil, ErrUnsupportedURL
	}

	return utils.WithDeadline(ctx, timeout, "fetch "+u.Host, func(ctx context.Context) ([]byte, error) {
		return f.get(ctx, u.String())
	})
}

func (f *Fetcher) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	res, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error executing request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &StatusError{Code: res.StatusCode, StatusText: http.StatusText(res.StatusCode)}
	}

	if f.maxBytes > 0 && res.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: declared %d bytes", ErrTooLarge, res.ContentLength)
	}

	var body io.Reader = res.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(res.Body, f.maxBytes+1)
	}
	buf, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	if f.maxBytes > 0 && int64(len(buf)) > f.maxBytes {
		return nil, ErrTooLarge
	}

	logger.Debugf("fetched %d bytes from %s", len(buf), res.Request.URL.Host)
	return buf, nil
}
