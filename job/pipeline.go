package job

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"imagerelay/encoder"
	"imagerelay/logger"
	"imagerelay/metrics"
	"imagerelay/models"
	writerbackends "imagerelay/writerBackends"
)

// Fetcher downloads a source image.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error)
}

// Updater writes field values to one record.
type Updater interface {
	Update(ctx context.Context, target models.UpdateTarget) error
}

// Timeouts bounds each network operation independently. The record update
// deadline belongs to the Updater.
type Timeouts struct {
	Fetch time.Duration
	Put   time.Duration
	Sign  time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{Fetch: 10 * time.Second, Put: 30 * time.Second, Sign: 10 * time.Second}
}

// Deps are the collaborators of a Pipeline. Metrics and Tracker may be nil.
type Deps struct {
	Fetcher  Fetcher
	Store    writerbackends.Store
	Updater  Updater
	Timeouts Timeouts
	Metrics  *metrics.Metrics
	Tracker  *Tracker
}

// Pipeline runs fetch, transform, upload and update for one request at a
// time per call. It is safe for concurrent use.
type Pipeline struct {
	fetcher  Fetcher
	store    writerbackends.Store
	updater  Updater
	timeouts Timeouts
	metrics  *metrics.Metrics
	tracker  *Tracker
	now      func() time.Time
}

func New(d Deps) *Pipeline {
	t := d.Timeouts
	if t == (Timeouts{}) {
		t = DefaultTimeouts()
	}
	return &Pipeline{
		fetcher:  d.Fetcher,
		store:    d.Store,
		updater:  d.Updater,
		timeouts: t,
		metrics:  d.Metrics,
		tracker:  d.Tracker,
		now:      time.Now,
	}
}

// Tracker returns the in-flight request tracker, possibly nil.
func (p *Pipeline) Tracker() *Tracker { return p.tracker }

// Run executes profile for req. The returned error is always a *Error.
// Objects already stored are left in place when a later step fails and are
// listed in the result's Stored keys.
func (p *Pipeline) Run(ctx context.Context, requestID string, profile Profile, req models.PipelineRequest) (models.PipelineResult, error) {
	result := models.PipelineResult{RequestID: requestID, Route: profile.Name, RecordID: req.RecordID}

	if err := profile.ValidateRequest(req); err != nil {
		logger.Debugf("[%s] rejected: %v", requestID, err)
		return result, fail(models.KindValidation, StageValidating, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := p.tracker.begin(requestID, profile.Name, cancel); err != nil {
		logger.Warnf("[%s] rejected: %v", requestID, err)
		return result, fail(models.KindValidation, StageValidating, err)
	}
	defer p.tracker.finish(requestID)

	sources := profile.Sources(req)
	index := func(i int) int { return i }
	if profile.Mode == ModeSingle {
		index = func(int) int { return -1 }
	}

	stored := &storedKeys{}
	perSource := make([][]models.VariantResult, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(profile.maxParallel())
	for i, src := range sources {
		g.Go(func() error {
			variants, err := p.processSource(gctx, requestID, profile, req, src, index(i), stored)
			if err != nil {
				return err
			}
			perSource[i] = variants
			return nil
		})
	}
	err := g.Wait()
	result.Stored = stored.list()
	if err != nil {
		logger.Errorf("[%s] %s failed with %d object(s) stored: %v", requestID, profile.Name, len(result.Stored), err)
		return result, err
	}

	for _, variants := range perSource {
		result.Variants = append(result.Variants, variants...)
	}

	p.tracker.advance(requestID, StageUpdating)
	target := models.UpdateTarget{
		BaseID:      req.BaseID,
		TableName:   req.TableName,
		RecordID:    req.RecordID,
		AccessToken: req.AccessToken,
		Fields:      UpdateFields(result.Variants),
	}
	start := time.Now()
	if err := p.updater.Update(ctx, target); err != nil {
		p.metrics.ObserveStage(StageUpdating.String(), "error", time.Since(start))
		logger.Errorf("[%s] record update failed for %s, %d object(s) remain stored: %v",
			requestID, req.RecordID, len(result.Stored), err)
		return result, fail(models.KindUpdate, StageUpdating, fmt.Errorf("failed to update record: %w", err))
	}
	p.metrics.ObserveStage(StageUpdating.String(), "ok", time.Since(start))

	p.tracker.advance(requestID, StageDone)
	logger.Infof("[%s] %s completed for record %s with %d variant(s)", requestID, profile.Name, req.RecordID, len(result.Variants))
	return result, nil
}

// processSource fetches and decodes one source image then produces every
// variant of the profile from it concurrently.
func (p *Pipeline) processSource(ctx context.Context, requestID string, profile Profile, req models.PipelineRequest, url string, index int, stored *storedKeys) ([]models.VariantResult, error) {
	p.tracker.advance(requestID, StageFetching)
	logger.Debugf("[%s] fetching source %d: %s", requestID, index, url)

	start := time.Now()
	data, err := p.fetcher.Fetch(ctx, url, p.timeouts.Fetch)
	if err != nil {
		p.metrics.ObserveStage(StageFetching.String(), "error", time.Since(start))
		return nil, fail(models.KindFetch, StageFetching, fmt.Errorf("failed to fetch image: %w", err))
	}
	p.metrics.ObserveStage(StageFetching.String(), "ok", time.Since(start))

	p.tracker.advance(requestID, StageTransforming)
	src, err := encoder.Decode(data)
	if err != nil {
		return nil, fail(models.KindDecode, StageTransforming, fmt.Errorf("failed to decode image: %w", err))
	}
	logger.Debugf("[%s] decoded %s %dx%d (%d bytes)", requestID, src.Format, src.Width, src.Height, src.ByteLen)

	results := make([]models.VariantResult, len(profile.Variants))
	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range profile.Variants {
		g.Go(func() error {
			r, err := p.produceVariant(gctx, requestID, profile, req, src, spec, index, stored)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Pipeline) produceVariant(ctx context.Context, requestID string, profile Profile, req models.PipelineRequest, src *encoder.SourceImage, spec models.VariantSpec, index int, stored *storedKeys) (models.VariantResult, error) {
	start := time.Now()
	out, err := encoder.Transform(src, spec)
	if err != nil {
		p.metrics.ObserveStage(StageTransforming.String(), "error", time.Since(start))
		return models.VariantResult{}, fail(models.KindTransform, StageTransforming, fmt.Errorf("failed to optimize image: %w", err))
	}
	p.metrics.ObserveStage(StageTransforming.String(), "ok", time.Since(start))
	p.metrics.ObserveVariant(spec.Name, out.Iterations, len(out.Data))

	field := spec.Field
	if field == "" {
		field = req.TargetField
	}
	r := models.VariantResult{
		Name:        spec.Name,
		Field:       field,
		ResponseKey: spec.ResponseKey,
		Index:       index,
		ObjectKey:   spec.ObjectKey(req.RecordID, index),
		Quality:     out.Quality,
		Width:       out.Width,
		Height:      out.Height,
		Size:        len(out.Data),
		Bytes:       out.Data,
	}

	p.tracker.advance(requestID, StageUploading)
	if err := p.storeAndSign(ctx, &r, profile.TTL, stored); err != nil {
		return models.VariantResult{}, err
	}
	logger.Debugf("[%s] stored %s (q=%d, %d bytes)", requestID, r.ObjectKey, r.Quality, r.Size)
	return r, nil
}

// UpdateFields groups signed URLs by record field in result order. Single
// image fields get a one-element list; a gallery field gets one entry per
// source.
func UpdateFields(variants []models.VariantResult) map[string]any {
	grouped := make(map[string][]models.Attachment)
	for _, v := range variants {
		grouped[v.Field] = append(grouped[v.Field], models.Attachment{URL: v.SignedURL})
	}
	fields := make(map[string]any, len(grouped))
	for k, v := range grouped {
		fields[k] = v
	}
	return fields
}
