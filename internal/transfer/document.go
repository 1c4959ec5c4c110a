package transfer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"kartoteka-backend/internal/dataset"
)

const (
	Version       = "2.0"
	LegacyVersion = "1.0"
)

// Document is the full-dataset export. Version 1.0 documents used
// exportDate, data, transactions and stats for the same content.
type Document struct {
	Version    string         `json:"version"`
	ExportedAt time.Time      `json:"exportedAt"`
	Entities   dataset.Rows   `json:"entities"`
	Counts     map[string]int `json:"counts"`
}

// Encode writes doc as indented JSON.
func Encode(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Decode parses and validates a document of either version. Every problem
// is reported as a plain error; callers wrap it as a validation failure.
func Decode(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("document is empty")
	}

	var raw struct {
		Version    *string         `json:"version"`
		ExportedAt *time.Time      `json:"exportedAt"`
		ExportDate *time.Time      `json:"exportDate"`
		Entities   json.RawMessage `json:"entities"`
		Data       json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("document is not valid JSON: %w", err)
	}
	if raw.Version == nil {
		return nil, fmt.Errorf("version is missing")
	}

	doc := &Document{Version: *raw.Version}
	var body json.RawMessage
	switch doc.Version {
	case Version:
		body = raw.Entities
		if raw.ExportedAt != nil {
			doc.ExportedAt = *raw.ExportedAt
		}
	case LegacyVersion:
		body = raw.Data
		if body == nil {
			body = raw.Entities
		}
		if raw.ExportDate != nil {
			doc.ExportedAt = *raw.ExportDate
		}
	default:
		return nil, fmt.Errorf("unsupported version %q", doc.Version)
	}
	if len(body) == 0 || string(body) == "null" {
		return nil, fmt.Errorf("entities are missing")
	}

	if err := json.Unmarshal(body, &doc.Entities); err != nil {
		return nil, fmt.Errorf("entities: %w", err)
	}
	if err := doc.Entities.Validate(); err != nil {
		return nil, err
	}
	doc.Counts = doc.Entities.Set().Counts()
	return doc, nil
}
