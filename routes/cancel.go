package routes

import (
	"errors"
	"net/http"

	"imagerelay/job"
	"imagerelay/logger"
)

// CancelHandler aborts an in-flight request by id. Objects it already stored
// are kept.
func CancelHandler(tracker *job.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Debugf("Cancel request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

		if r.Method != http.MethodDelete {
			logger.Warnf("Invalid method for cancel endpoint: %s", r.Method)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "Missing id parameter", http.StatusBadRequest)
			return
		}

		if err := tracker.Cancel(id); err != nil {
			if errors.Is(err, job.ErrRequestNotFound) {
				http.Error(w, "Request not found", http.StatusNotFound)
				return
			}
			logger.Errorf("Failed to cancel request %s: %v", id, err)
			http.Error(w, "Cannot cancel request", http.StatusConflict)
			return
		}

		logger.Infof("Request cancelled: %s", id)
		w.WriteHeader(http.StatusNoContent)
	}
}
