package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"imagerelay/events"
	"imagerelay/failures"
	"imagerelay/job"
	"imagerelay/logger"
	"imagerelay/models"
	"imagerelay/success"
)

const (
	maxRequestBody       = 1 << 20
	missingFieldsMessage = "Missing required fields"
)

// clientRequestHeader echoes the caller's own X-Request-Id. The server id in
// X-Request-Id is always minted here so audit records never collide.
const clientRequestHeader = "X-Client-Request-Id"

// echoClientID returns the caller's X-Request-Id when it is a well-formed UUID.
func echoClientID(r *http.Request) string {
	if id, err := uuid.Parse(r.Header.Get("X-Request-Id")); err == nil {
		return id.String()
	}
	return ""
}

// OptimiseHandler serves one pipeline route configured by profile.
func OptimiseHandler(d Deps, profile job.Profile) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		if client := echoClientID(r); client != "" {
			w.Header().Set(clientRequestHeader, client)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodPost {
			logger.Warnf("Invalid method for %s endpoint: %s", profile.Name, r.Method)
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		var req models.PipelineRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Warnf("[%s] invalid request body: %v", id, err)
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		logger.Debugf("[%s] %s request for record %s", id, profile.Name, req.RecordID)
		start := time.Now()
		result, err := d.Pipeline.Run(r.Context(), id, profile, req)
		if err != nil {
			kind := job.KindOf(err)
			d.Metrics.ObserveRequest(profile.Name, string(kind), time.Since(start))

			if kind == models.KindValidation {
				msg := err.Error()
				if errors.Is(err, job.ErrMissingFields) {
					msg = missingFieldsMessage
				}
				writeError(w, http.StatusBadRequest, msg)
				return
			}

			d.recordFailure(id, profile, req, result, err)
			body := errorBody{Error: err.Error()}
			if d.Development {
				body.Stack = errorChain(err)
			}
			writeJSON(w, http.StatusInternalServerError, body)
			return
		}

		d.Metrics.ObserveRequest(profile.Name, "success", time.Since(start))
		d.recordSuccess(result)
		writeJSON(w, http.StatusOK, successBody(profile, result))
	}
}

// successBody is {message, <variant>Url..., <list key>?: [{url}]}.
func successBody(profile job.Profile, result models.PipelineResult) map[string]any {
	body := map[string]any{"message": profile.SuccessMessage}
	for _, v := range result.Variants {
		if v.ResponseKey != "" {
			body[v.ResponseKey] = v.SignedURL
		}
	}
	if profile.ListResponseKey != "" {
		list := make([]models.Attachment, 0, len(result.Variants))
		for _, v := range result.Variants {
			list = append(list, models.Attachment{URL: v.SignedURL})
		}
		body[profile.ListResponseKey] = list
	}
	return body
}

func (d Deps) recordSuccess(result models.PipelineResult) {
	if err := success.StoreSuccess(result); err != nil {
		logger.Warnf("[%s] failed to store success record: %v", result.RequestID, err)
	}

	urls := make(map[string]string, len(result.Variants))
	for _, v := range result.Variants {
		urls[v.ObjectKey] = v.SignedURL
	}
	d.publish(events.Event{
		RequestID: result.RequestID,
		Route:     result.Route,
		RecordID:  result.RecordID,
		Status:    "success",
		URLs:      urls,
		Timestamp: time.Now(),
	})
}

func (d Deps) recordFailure(id string, profile job.Profile, req models.PipelineRequest, result models.PipelineResult, err error) {
	record := failures.FailureRecord{
		RequestID: id,
		Route:     profile.Name,
		RecordID:  req.RecordID,
		Kind:      job.KindOf(err),
		Error:     err.Error(),
	}
	var jobErr *job.Error
	if errors.As(err, &jobErr) {
		record.Stage = jobErr.Stage.String()
	}
	record.ObjectKeys = result.Stored
	if storeErr := failures.StoreFailure(record); storeErr != nil {
		logger.Warnf("[%s] failed to store failure record: %v", id, storeErr)
	}

	d.publish(events.Event{
		RequestID: id,
		Route:     profile.Name,
		RecordID:  req.RecordID,
		Status:    "failed",
		ErrorKind: string(record.Kind),
		Error:     record.Error,
		Timestamp: record.Timestamp,
	})
}

// publish is best effort and survives the caller hanging up.
func (d Deps) publish(e events.Event) {
	if d.Events == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if err := d.Events.Publish(context.Background(), e); err != nil {
		logger.Warnf("[%s] failed to publish %s event: %v", e.RequestID, e.Status, err)
	}
}
