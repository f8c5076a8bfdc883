package routes

import (
	"net/http"

	"imagerelay/failures"
	"imagerelay/logger"
)

// FailureQueryHandler handles queries for failed requests
func FailureQueryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id parameter required", http.StatusBadRequest)
		return
	}

	record, err := failures.GetFailure(id)
	if err != nil {
		logger.Errorf("Failed to query failure for request %s: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if record == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"requestId": id,
			"status":    "not_found",
			"message":   "No failure recorded for this request",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"requestId":  record.RequestID,
		"status":     "failed",
		"route":      record.Route,
		"recordId":   record.RecordID,
		"timestamp":  record.Timestamp,
		"kind":       record.Kind,
		"stage":      record.Stage,
		"error":      record.Error,
		"objectKeys": record.ObjectKeys,
	})
}

// FailureListHandler handles listing failures (admin endpoint)
func FailureListHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	failuresList, err := failures.ListFailures(listLimit(r))
	if err != nil {
		logger.Errorf("Failed to list failures: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"failures": failuresList,
		"count":    len(failuresList),
	})
}
