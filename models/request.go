package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// URLList accepts either a single JSON string or an array of strings.
type URLList []string

func (l *URLList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*l = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "\"") {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		*l = URLList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("imageUrls must be a string or an array of strings: %w", err)
	}
	*l = many
	return nil
}

// PipelineRequest is the caller-supplied envelope.
type PipelineRequest struct {
	ImageURL    string  `json:"imageUrl"`
	ImageURLs   URLList `json:"imageUrls"`
	RecordID    string  `json:"recordId"`
	AccessToken string  `json:"accessToken"`
	BaseID      string  `json:"baseId"`
	TableName   string  `json:"tableName"`
	TargetField string  `json:"targetField,omitempty"`
}

// UpdateTarget addresses one row of the record store together with the
// field values to write.
type UpdateTarget struct {
	BaseID      string
	TableName   string
	RecordID    string
	AccessToken string
	Fields      map[string]any
}

// Attachment is the record-store representation of a linked file.
type Attachment struct {
	URL string `json:"url"`
}

// VariantURL is one entry of a successful PipelineResult.
type VariantURL struct {
	Variant string `json:"variant"`
	URL     string `json:"url"`
}

// PipelineResult is the outcome of a run. Variants is only filled once every
// upload succeeded; Stored lists every object written, also on failure.
type PipelineResult struct {
	RequestID string
	Route     string
	RecordID  string
	Variants  []VariantResult
	Stored    []string
}

// URLs lists the signed URLs in variant order.
func (r PipelineResult) URLs() []VariantURL {
	out := make([]VariantURL, 0, len(r.Variants))
	for _, v := range r.Variants {
		out = append(out, VariantURL{Variant: v.Name, URL: v.SignedURL})
	}
	return out
}
