package routes

import (
	"net/http"
	"strconv"

	"imagerelay/logger"
	"imagerelay/success"
)

const defaultListLimit = 100

// listLimit reads ?limit=, defaulting to defaultListLimit. Zero lists everything.
func listLimit(r *http.Request) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n >= 0 {
		return n
	}
	return defaultListLimit
}

// SuccessQueryHandler handles queries for successful requests
func SuccessQueryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id parameter required", http.StatusBadRequest)
		return
	}

	record, err := success.GetSuccess(id)
	if err != nil {
		logger.Errorf("Failed to query success for request %s: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if record == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"requestId": id,
			"status":    "not_found",
			"message":   "No success record found for this request",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"requestId": record.RequestID,
		"status":    "success",
		"route":     record.Route,
		"recordId":  record.RecordID,
		"timestamp": record.Timestamp,
		"variants":  record.Variants,
	})
}

// SuccessListHandler handles listing success records (admin endpoint)
func SuccessListHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := success.ListSuccessRecords(listLimit(r))
	if err != nil {
		logger.Errorf("Failed to list success records: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success_records": records,
		"count":           len(records),
	})
}
