package job

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Stage is the position of a request in the pipeline.
type Stage int

const (
	StageValidating Stage = iota
	StageFetching
	StageTransforming
	StageUploading
	StageUpdating
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageValidating:
		return "validating"
	case StageFetching:
		return "fetching"
	case StageTransforming:
		return "transforming"
	case StageUploading:
		return "uploading"
	case StageUpdating:
		return "updating"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	}
	return "unknown"
}

var (
	ErrRequestNotFound = errors.New("request not found")
	ErrRequestActive   = errors.New("request id is already in flight")
)

// Status is a snapshot of one in-flight request.
type Status struct {
	RequestID string    `json:"requestId"`
	Route     string    `json:"route"`
	Stage     string    `json:"stage"`
	Started   time.Time `json:"started"`
}

type activeRequest struct {
	route   string
	stage   Stage
	started time.Time
	cancel  context.CancelFunc
}

// Tracker records the stage of every in-flight request and lets callers
// cancel one. A nil *Tracker ignores all calls.
type Tracker struct {
	mu     sync.RWMutex
	active map[string]*activeRequest
}

func NewTracker() *Tracker {
	return &Tracker{active: make(map[string]*activeRequest)}
}

// begin registers id. An id that is already in flight is refused so the
// running request keeps its entry and cancel func.
func (t *Tracker) begin(id, route string, cancel context.CancelFunc) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; ok {
		return ErrRequestActive
	}
	t.active[id] = &activeRequest{route: route, stage: StageValidating, started: time.Now(), cancel: cancel}
	return nil
}

// advance moves id forward to stage. Gallery sources progress independently,
// so the furthest stage reached wins.
func (t *Tracker) advance(id string, stage Stage) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.active[id]; ok && stage > r.stage {
		r.stage = stage
	}
}

func (t *Tracker) finish(id string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, id)
}

// Get returns the status of an in-flight request.
func (t *Tracker) Get(id string) (Status, bool) {
	if t == nil {
		return Status{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.active[id]
	if !ok {
		return Status{}, false
	}
	return Status{RequestID: id, Route: r.route, Stage: r.stage.String(), Started: r.started}, true
}

// Active lists in-flight requests, oldest first.
func (t *Tracker) Active() []Status {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	out := make([]Status, 0, len(t.active))
	for id, r := range t.active {
		out = append(out, Status{RequestID: id, Route: r.route, Stage: r.stage.String(), Started: r.started})
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}

// Cancel aborts an in-flight request. Stored objects are kept.
func (t *Tracker) Cancel(id string) error {
	if t == nil {
		return ErrRequestNotFound
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.active[id]
	if !ok {
		return ErrRequestNotFound
	}
	r.cancel()
	return nil
}
