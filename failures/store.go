package failures

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	pebble "github.com/cockroachdb/pebble"

	"imagerelay/models"
)

// FailureRecord is the audit entry for a failed pipeline request.
type FailureRecord struct {
	RequestID string           `json:"requestId"`
	Route     string           `json:"route"`
	RecordID  string           `json:"recordId"`
	Timestamp time.Time        `json:"timestamp"`
	Kind      models.ErrorKind `json:"kind"`
	Stage     string           `json:"stage"`
	Error     string           `json:"error"`
	// ObjectKeys lists derivatives already stored before the failure.
	ObjectKeys []string `json:"objectKeys,omitempty"`
}

var db *pebble.DB

// Init initializes the failure store
func Init(dbPath string) error {
	var err error
	db, err = pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return fmt.Errorf("failed to open failure store: %w", err)
	}
	return nil
}

// Close closes the failure store
func Close() error {
	if db != nil {
		err := db.Close()
		db = nil
		return err
	}
	return nil
}

// StoreFailure stores a processing failure keyed by record.RequestID.
// A zero Timestamp is set to now.
func StoreFailure(record FailureRecord) error {
	if db == nil {
		return fmt.Errorf("failure store not initialized")
	}
	if record.RequestID == "" {
		return fmt.Errorf("failure record requires a request id")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal failure record: %w", err)
	}

	return db.Set([]byte(record.RequestID), data, pebble.Sync)
}

// GetFailure retrieves a failure record by request id
func GetFailure(requestID string) (*FailureRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("failure store not initialized")
	}

	data, closer, err := db.Get([]byte(requestID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil // No failure found
		}
		return nil, fmt.Errorf("failed to get failure: %w", err)
	}
	defer closer.Close()

	var record FailureRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failure record: %w", err)
	}

	return &record, nil
}

// DeleteFailure removes a failure record
func DeleteFailure(requestID string) error {
	if db == nil {
		return fmt.Errorf("failure store not initialized")
	}
	return db.Delete([]byte(requestID), pebble.Sync)
}

// ListFailures returns failure records newest first, capped by a positive limit.
func ListFailures(limit int) ([]FailureRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("failure store not initialized")
	}

	var failures []FailureRecord
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var record FailureRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue // Skip invalid records
		}
		failures = append(failures, record)
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iteration error: %w", err)
	}

	sort.Slice(failures, func(i, j int) bool { return failures[i].Timestamp.After(failures[j].Timestamp) })
	if limit > 0 && len(failures) > limit {
		failures = failures[:limit]
	}
	return failures, nil
}

// CleanupOldRecords removes failure records older than maxAge.
func CleanupOldRecords(maxAge time.Duration) (int, error) {
	records, err := ListFailures(0)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	deleted := 0
	for _, r := range records {
		if !r.Timestamp.Before(cutoff) {
			continue
		}
		if err := db.Delete([]byte(r.RequestID), pebble.Sync); err != nil {
			return deleted, fmt.Errorf("failed to delete old failure record: %w", err)
		}
		deleted++
	}
	return deleted, nil
}

// CheckHealth performs a basic health check on the failures database
func CheckHealth() error {
	if db == nil {
		return fmt.Errorf("failures database not initialized")
	}
	_, closer, err := db.Get([]byte("__health_check__"))
	if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if closer != nil {
		closer.Close()
	}
	return nil
}
