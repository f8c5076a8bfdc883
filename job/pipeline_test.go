package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagerelay/fetcher"
	"imagerelay/models"
	"imagerelay/utils"
	writerbackends "imagerelay/writerBackends"
)

func pngSource(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type stubFetcher struct {
	mu      sync.Mutex
	data    []byte
	calls   int
	started chan struct{}
	block   bool
}

func (f *stubFetcher) Fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block {
		close(f.started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.data, nil
}

func (f *stubFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type stubUpdater struct {
	mu      sync.Mutex
	targets []models.UpdateTarget
	err     error
}

func (u *stubUpdater) Update(ctx context.Context, target models.UpdateTarget) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.targets = append(u.targets, target)
	return u.err
}

func (u *stubUpdater) Calls() []models.UpdateTarget {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]models.UpdateTarget(nil), u.targets...)
}

type harness struct {
	fetcher  *stubFetcher
	store    *writerbackends.MemoryStore
	updater  *stubUpdater
	pipeline *Pipeline
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		fetcher: &stubFetcher{data: pngSource(t, 1200, 800)},
		store:   writerbackends.NewMemory("test-bucket"),
		updater: &stubUpdater{},
	}
	h.pipeline = New(Deps{Fetcher: h.fetcher, Store: h.store, Updater: h.updater, Tracker: NewTracker()})
	return h
}

func baseRequest() models.PipelineRequest {
	return models.PipelineRequest{
		ImageURL:    "https://img.example.com/a.png",
		RecordID:    "rec1",
		AccessToken: "pat123",
		BaseID:      "appBase",
		TableName:   "Objekte",
		TargetField: "Bild",
	}
}

func TestBuiltinProfilesAreValid(t *testing.T) {
	for _, p := range Profiles() {
		assert.NoError(t, p.Validate(), p.Name)
	}
}

func TestRunValidationHasNoSideEffects(t *testing.T) {
	cases := map[string]func(*models.PipelineRequest){
		"no access token": func(r *models.PipelineRequest) { r.AccessToken = "" },
		"no image url":    func(r *models.PipelineRequest) { r.ImageURL = "" },
		"blank record":    func(r *models.PipelineRequest) { r.RecordID = "  " },
		"no target field": func(r *models.PipelineRequest) { r.TargetField = "" },
		"no table":        func(r *models.PipelineRequest) { r.TableName = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			req := baseRequest()
			mutate(&req)

			_, err := h.pipeline.Run(t.Context(), "req-1", Optimise, req)
			require.Error(t, err)
			assert.Equal(t, models.KindValidation, KindOf(err))
			assert.ErrorIs(t, err, ErrMissingFields)

			assert.Zero(t, h.fetcher.Calls())
			puts, signs := h.store.Calls()
			assert.Zero(t, puts)
			assert.Zero(t, signs)
			assert.Empty(t, h.updater.Calls())
		})
	}
}

func TestRunThumbnailIgnoresTargetField(t *testing.T) {
	h := newHarness(t)
	req := baseRequest()
	req.TargetField = ""

	res, err := h.pipeline.Run(t.Context(), "req-1", Thumbnail, req)
	require.NoError(t, err)
	require.Len(t, res.Variants, 1)
	assert.Equal(t, "thumb-rec1.jpg", res.Variants[0].ObjectKey)
	assert.Equal(t, 560, res.Variants[0].Width)
	assert.Equal(t, 80, res.Variants[0].Quality)

	calls := h.updater.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, map[string]any{
		"Thumbnail2x": []models.Attachment{{URL: res.Variants[0].SignedURL}},
	}, calls[0].Fields)
}

func TestRunOptimiseWritesTargetField(t *testing.T) {
	h := newHarness(t)

	res, err := h.pipeline.Run(t.Context(), "req-1", Optimise, baseRequest())
	require.NoError(t, err)
	require.Len(t, res.Variants, 1)

	v := res.Variants[0]
	assert.Equal(t, "optimized-image-rec1.jpg", v.ObjectKey)
	assert.Equal(t, "Bild", v.Field)
	assert.LessOrEqual(t, v.Width, 560)
	assert.True(t, v.Size <= 100*1024 || v.Quality == 5)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), v.Expiry, time.Minute)

	calls := h.updater.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "rec1", calls[0].RecordID)
	assert.Equal(t, "pat123", calls[0].AccessToken)
	assert.Contains(t, calls[0].Fields, "Bild")
}

func TestRunDualUpdatesBothFieldsOnce(t *testing.T) {
	h := newHarness(t)

	res, err := h.pipeline.Run(t.Context(), "req-1", Dual, baseRequest())
	require.NoError(t, err)
	require.Len(t, res.Variants, 2)
	assert.Equal(t, []string{"main-rec1.jpg", "thumb-rec1.jpg"}, h.store.Keys())
	assert.Equal(t, 560, res.Variants[0].Width)
	assert.Equal(t, 1200, res.Variants[1].Width)

	calls := h.updater.Calls()
	require.Len(t, calls, 1)
	fields := calls[0].Fields
	require.Len(t, fields, 2)
	assert.Len(t, fields["Thumbnail2x"], 1)
	assert.Len(t, fields["Hauptbild"], 1)
}

func TestRunGallery(t *testing.T) {
	h := newHarness(t)
	req := baseRequest()
	req.ImageURL = ""
	req.TargetField = ""
	req.ImageURLs = models.URLList{"https://a/0.png", "https://a/1.png", "https://a/2.png"}

	res, err := h.pipeline.Run(t.Context(), "req-1", Gallery, req)
	require.NoError(t, err)

	assert.Equal(t, 3, h.fetcher.Calls())
	assert.Equal(t, []string{"gallery-rec1-0.jpg", "gallery-rec1-1.jpg", "gallery-rec1-2.jpg"}, h.store.Keys())

	calls := h.updater.Calls()
	require.Len(t, calls, 1)
	list, ok := calls[0].Fields["BilgalerieTEST"].([]models.Attachment)
	require.True(t, ok)
	require.Len(t, list, 3)
	for i, a := range list {
		assert.Contains(t, a.URL, fmt.Sprintf("gallery-rec1-%d.jpg", i))
		assert.Equal(t, i, res.Variants[i].Index)
	}
}

func TestRunGalleryRejectsTooManySources(t *testing.T) {
	h := newHarness(t)
	req := baseRequest()
	req.ImageURLs = make(models.URLList, DefaultMaxSources+1)
	for i := range req.ImageURLs {
		req.ImageURLs[i] = fmt.Sprintf("https://a/%d.png", i)
	}

	_, err := h.pipeline.Run(t.Context(), "req-1", Gallery, req)
	assert.ErrorIs(t, err, ErrTooManySources)
	assert.Zero(t, h.fetcher.Calls())
}

func TestRunRejectsRecordIDWithSeparators(t *testing.T) {
	h := newHarness(t)
	req := baseRequest()
	req.RecordID = "../etc"

	_, err := h.pipeline.Run(t.Context(), "req-1", Optimise, req)
	assert.ErrorIs(t, err, ErrInvalidRecordID)
	assert.Equal(t, models.KindValidation, KindOf(err))
}

func TestRunFetchTimeoutSkipsStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	store := writerbackends.NewMemory("b")
	updater := &stubUpdater{}
	p := New(Deps{
		Fetcher:  fetcher.New(srv.Client(), 0),
		Store:    store,
		Updater:  updater,
		Timeouts: Timeouts{Fetch: 50 * time.Millisecond, Put: time.Second, Sign: time.Second},
	})
	req := baseRequest()
	req.ImageURL = srv.URL + "/slow.png"

	_, err := p.Run(t.Context(), "req-1", Thumbnail, req)
	require.Error(t, err)
	assert.Equal(t, models.KindFetch, KindOf(err))
	assert.ErrorIs(t, err, utils.ErrTimeout)

	puts, _ := store.Calls()
	assert.Zero(t, puts)
	assert.Empty(t, updater.Calls())
}

func TestRunDecodeFailure(t *testing.T) {
	h := newHarness(t)
	h.fetcher.data = []byte("<html>not an image</html>")

	_, err := h.pipeline.Run(t.Context(), "req-1", Thumbnail, baseRequest())
	require.Error(t, err)
	assert.Equal(t, models.KindDecode, KindOf(err))
	puts, _ := h.store.Calls()
	assert.Zero(t, puts)
}

func TestRunUploadFailureSkipsUpdate(t *testing.T) {
	h := newHarness(t)
	h.store.FailPuts(func(key string) error {
		if key == "main-rec1.jpg" {
			return errors.New("bucket unavailable")
		}
		return nil
	})

	_, err := h.pipeline.Run(t.Context(), "req-1", Dual, baseRequest())
	require.Error(t, err)

	var jobErr *Error
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, models.KindStore, jobErr.Kind)
	assert.Equal(t, StageUploading, jobErr.Stage)
	assert.Empty(t, h.updater.Calls())
}

// thumbFirstStore fails the main upload only after the thumbnail is stored.
type thumbFirstStore struct {
	*writerbackends.MemoryStore
	thumbStored chan struct{}
}

func (s *thumbFirstStore) Put(ctx context.Context, key string, data []byte) error {
	if key == "main-rec1.jpg" {
		<-s.thumbStored
		return errors.New("bucket unavailable")
	}
	if err := s.MemoryStore.Put(ctx, key, data); err != nil {
		return err
	}
	close(s.thumbStored)
	return nil
}

func TestRunPartialUploadFailureReportsStoredKeys(t *testing.T) {
	h := newHarness(t)
	store := &thumbFirstStore{MemoryStore: h.store, thumbStored: make(chan struct{})}
	pipeline := New(Deps{Fetcher: h.fetcher, Store: store, Updater: h.updater})

	result, err := pipeline.Run(t.Context(), "req-1", Dual, baseRequest())
	require.Error(t, err)
	assert.Equal(t, models.KindStore, KindOf(err))
	assert.Empty(t, result.Variants)
	assert.Equal(t, []string{"thumb-rec1.jpg"}, result.Stored)
	assert.Equal(t, []string{"thumb-rec1.jpg"}, h.store.Keys())
	assert.Empty(t, h.updater.Calls())
}

func TestRunUpdateFailureKeepsObjects(t *testing.T) {
	h := newHarness(t)
	h.updater.err = errors.New("422 Unprocessable Entity")

	result, err := h.pipeline.Run(t.Context(), "req-1", Dual, baseRequest())
	require.Error(t, err)
	assert.Equal(t, models.KindUpdate, KindOf(err))
	assert.Contains(t, err.Error(), "422")
	assert.Equal(t, []string{"main-rec1.jpg", "thumb-rec1.jpg"}, h.store.Keys())
	assert.ElementsMatch(t, h.store.Keys(), result.Stored)
}

func TestTrackerCancelsInFlightRequest(t *testing.T) {
	h := newHarness(t)
	h.fetcher.block = true
	h.fetcher.started = make(chan struct{})

	errc := make(chan error, 1)
	go func() {
		_, err := h.pipeline.Run(context.Background(), "req-9", Thumbnail, baseRequest())
		errc <- err
	}()

	<-h.fetcher.started
	status, ok := h.pipeline.Tracker().Get("req-9")
	require.True(t, ok)
	assert.Equal(t, "fetching", status.Stage)
	assert.Equal(t, "thumbnail", status.Route)
	require.Len(t, h.pipeline.Tracker().Active(), 1)

	require.NoError(t, h.pipeline.Tracker().Cancel("req-9"))
	err := <-errc
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.KindFetch, KindOf(err))

	_, ok = h.pipeline.Tracker().Get("req-9")
	assert.False(t, ok)
	assert.ErrorIs(t, h.pipeline.Tracker().Cancel("req-9"), ErrRequestNotFound)
}

func TestTrackerRejectsDuplicateRequestID(t *testing.T) {
	h := newHarness(t)
	h.fetcher.block = true
	h.fetcher.started = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		_, err := h.pipeline.Run(ctx, "req-7", Thumbnail, baseRequest())
		errc <- err
	}()
	<-h.fetcher.started

	_, err := h.pipeline.Run(t.Context(), "req-7", Optimise, baseRequest())
	require.ErrorIs(t, err, ErrRequestActive)
	assert.Equal(t, models.KindValidation, KindOf(err))

	status, ok := h.pipeline.Tracker().Get("req-7")
	require.True(t, ok, "the running request keeps its entry")
	assert.Equal(t, "thumbnail", status.Route)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	_, ok = h.pipeline.Tracker().Get("req-7")
	assert.False(t, ok)
	assert.Equal(t, 1, h.fetcher.Calls())
}

func TestUpdateFieldsGroupsByField(t *testing.T) {
	fields := UpdateFields([]models.VariantResult{
		{Field: "G", SignedURL: "u0"},
		{Field: "G", SignedURL: "u1"},
		{Field: "T", SignedURL: "t"},
	})
	assert.Equal(t, []models.Attachment{{URL: "u0"}, {URL: "u1"}}, fields["G"])
	assert.Equal(t, []models.Attachment{{URL: "t"}}, fields["T"])
}
