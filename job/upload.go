package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"imagerelay/models"
	"imagerelay/utils"
)

// storedKeys collects object keys as uploads complete, in completion order.
type storedKeys struct {
	mu   sync.Mutex
	keys []string
}

func (s *storedKeys) add(key string) {
	s.mu.Lock()
	s.keys = append(s.keys, key)
	s.mu.Unlock()
}

func (s *storedKeys) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...)
}

// storeAndSign writes r.Bytes under r.ObjectKey and fills in the signed URL.
// Put and sign each run under their own deadline. The key is added to stored
// as soon as the Put succeeds.
func (p *Pipeline) storeAndSign(ctx context.Context, r *models.VariantResult, ttl time.Duration, stored *storedKeys) error {
	start := time.Now()
	err := utils.RunWithDeadline(ctx, p.timeouts.Put, "upload", func(ctx context.Context) error {
		return p.store.Put(ctx, r.ObjectKey, r.Bytes)
	})
	if err != nil {
		p.metrics.ObserveStage(StageUploading.String(), "error", time.Since(start))
		return fail(models.KindStore, StageUploading, fmt.Errorf("failed to upload %s: %w", r.ObjectKey, err))
	}
	stored.add(r.ObjectKey)

	expiry := p.now().Add(ttl)
	url, err := utils.WithDeadline(ctx, p.timeouts.Sign, "sign", func(ctx context.Context) (string, error) {
		return p.store.SignRead(ctx, r.ObjectKey, ttl)
	})
	if err != nil {
		p.metrics.ObserveStage(StageUploading.String(), "error", time.Since(start))
		return fail(models.KindStore, StageUploading, fmt.Errorf("failed to sign %s: %w", r.ObjectKey, err))
	}
	p.metrics.ObserveStage(StageUploading.String(), "ok", time.Since(start))

	r.SignedURL = url
	r.Expiry = expiry
	return nil
}
