package routes

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"imagerelay/events"
	"imagerelay/job"
	"imagerelay/metrics"
	writerbackends "imagerelay/writerBackends"
)

// Deps carries everything the HTTP layer needs. Events, Metrics and Files
// may be nil.
type Deps struct {
	Pipeline *job.Pipeline
	Events   events.Publisher
	Metrics  *metrics.Metrics
	// Gatherer backs /metrics; nil uses the global registry.
	Gatherer prometheus.Gatherer
	// Files serves signed directServe URLs when that backend is active.
	Files *writerbackends.DirectServeStore
	// AdminSecret protects listing and cancel endpoints when non-empty.
	AdminSecret []byte
	// Development adds the error chain to 500 responses.
	Development bool
}

// ProfileRoutes maps each pipeline path to its profile.
var ProfileRoutes = []struct {
	Path    string
	Profile job.Profile
}{
	{"/optimise", job.Optimise},
	{"/optimise/haupt", job.Haupt},
	{"/optimise/thumbnail", job.Thumbnail},
	{"/optimise/dual", job.Dual},
	{"/optimise/gallery", job.Gallery},
}

// Register mounts every route on mux.
func Register(mux *http.ServeMux, d Deps) {
	for _, pr := range ProfileRoutes {
		mux.HandleFunc(pr.Path, OptimiseHandler(d, pr.Profile))
	}

	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/version", VersionHandler)

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/success", SuccessQueryHandler)
	mux.HandleFunc("/success/list", requireAdmin(d.AdminSecret, SuccessListHandler))
	mux.HandleFunc("/failures", FailureQueryHandler)
	mux.HandleFunc("/failures/list", requireAdmin(d.AdminSecret, FailureListHandler))

	mux.HandleFunc("/status", StatusHandler(d.Pipeline.Tracker()))
	mux.HandleFunc("/status/list", requireAdmin(d.AdminSecret, ActiveListHandler(d.Pipeline.Tracker())))
	mux.HandleFunc("/cancel", requireAdmin(d.AdminSecret, CancelHandler(d.Pipeline.Tracker())))

	if d.Files != nil {
		mux.HandleFunc("/files/", FilesHandler(d.Files))
	}
}
