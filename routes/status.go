package routes

import (
	"net/http"

	"imagerelay/job"
	"imagerelay/logger"
)

// StatusHandler reports the stage of an in-flight request by id.
func StatusHandler(tracker *job.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Debugf("Request status query: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "id parameter required", http.StatusBadRequest)
			return
		}

		status, ok := tracker.Get(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"requestId": id,
				"stage":     "unknown",
				"message":   "Request is not in flight; see /success or /failures",
			})
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

// ActiveListHandler lists all in-flight requests.
func ActiveListHandler(tracker *job.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		active := tracker.Active()
		writeJSON(w, http.StatusOK, map[string]any{
			"requests": active,
			"count":    len(active),
		})
	}
}
