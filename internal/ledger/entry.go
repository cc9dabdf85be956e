package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: status must be a string", ErrCorrupt)
	}
	if !Status(raw).Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrCorrupt, raw)
	}
	*s = Status(raw)
	return nil
}

// Entry is the ledger's record of one audio file, keyed by its path.
type Entry struct {
	Path        string
	Hash        string
	Status      Status
	ProcessedAt *time.Time
	UpdatedAt   time.Time
	Outputs     Outputs
	Metadata    Metadata
	Error       string
}

type Outputs struct {
	Transcription string
	Summary       string
}

type Metadata struct {
	DurationSeconds *float64 `json:"duration_seconds"`
	FileSizeBytes   *int64   `json:"file_size_bytes"`
}

// NewMetadata builds metadata from known values; zero values are stored as
// unknown.
func NewMetadata(duration time.Duration, size int64) Metadata {
	var m Metadata
	if duration > 0 {
		v := duration.Seconds()
		m.DurationSeconds = &v
	}
	if size > 0 {
		m.FileSizeBytes = &size
	}
	return m
}

func (m Metadata) Duration() time.Duration {
	if m.DurationSeconds == nil {
		return 0
	}
	return time.Duration(*m.DurationSeconds * float64(time.Second))
}

func (m Metadata) Size() int64 {
	if m.FileSizeBytes == nil {
		return 0
	}
	return *m.FileSizeBytes
}

type Statistics struct {
	TotalProcessed       int     `json:"total_processed"`
	TotalFailed          int     `json:"total_failed"`
	TotalSizeBytes       int64   `json:"total_size_bytes"`
	TotalDurationSeconds float64 `json:"total_duration_seconds"`
}

// contribution is what a single entry adds to the aggregate statistics.
func contribution(e Entry) Statistics {
	switch e.Status {
	case StatusCompleted:
		var dur float64
		if e.Metadata.DurationSeconds != nil {
			dur = *e.Metadata.DurationSeconds
		}
		return Statistics{TotalProcessed: 1, TotalSizeBytes: e.Metadata.Size(), TotalDurationSeconds: dur}
	case StatusFailed:
		return Statistics{TotalFailed: 1}
	default:
		return Statistics{}
	}
}

func (s Statistics) add(o Statistics) Statistics {
	return Statistics{
		TotalProcessed:       s.TotalProcessed + o.TotalProcessed,
		TotalFailed:          s.TotalFailed + o.TotalFailed,
		TotalSizeBytes:       s.TotalSizeBytes + o.TotalSizeBytes,
		TotalDurationSeconds: s.TotalDurationSeconds + o.TotalDurationSeconds,
	}
}

func (s Statistics) sub(o Statistics) Statistics {
	return Statistics{
		TotalProcessed:       max(0, s.TotalProcessed-o.TotalProcessed),
		TotalFailed:          max(0, s.TotalFailed-o.TotalFailed),
		TotalSizeBytes:       max(0, s.TotalSizeBytes-o.TotalSizeBytes),
		TotalDurationSeconds: max(0, s.TotalDurationSeconds-o.TotalDurationSeconds),
	}
}

type wireEntry struct {
	Hash        nullString  `json:"hash"`
	Status      Status      `json:"status"`
	ProcessedAt *time.Time  `json:"processed_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Outputs     wireOutputs `json:"outputs"`
	Metadata    Metadata    `json:"metadata"`
	Error       nullString  `json:"error"`
}

type wireOutputs struct {
	Transcription nullString `json:"transcription"`
	Summary       nullString `json:"summary"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEntry{
		Hash:        nullString(e.Hash),
		Status:      e.Status,
		ProcessedAt: e.ProcessedAt,
		UpdatedAt:   e.UpdatedAt,
		Outputs: wireOutputs{
			Transcription: nullString(e.Outputs.Transcription),
			Summary:       nullString(e.Outputs.Summary),
		},
		Metadata: e.Metadata,
		Error:    nullString(e.Error),
	})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Status == "" {
		return fmt.Errorf("%w: missing status", ErrCorrupt)
	}
	*e = Entry{
		Hash:        string(w.Hash),
		Status:      w.Status,
		ProcessedAt: w.ProcessedAt,
		UpdatedAt:   w.UpdatedAt,
		Outputs: Outputs{
			Transcription: string(w.Outputs.Transcription),
			Summary:       string(w.Outputs.Summary),
		},
		Metadata: w.Metadata,
		Error:    string(w.Error),
	}
	return nil
}

// nullString is stored as JSON null when empty.
type nullString string

func (n nullString) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(n))
}

func (n *nullString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*n = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*n = nullString(s)
	return nil
}
