// Package audit records every generation backend call for diagnostics.
// It never stores flow state; entries only describe requests and outcomes.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"
)

type Kind string

const (
	KindQuestions Kind = "questions"
	KindAnalysis  Kind = "analysis"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

const maxRawResponse = 16 << 10

// Entry describes one backend call.
type Entry struct {
	ID           int64         `json:"id"`
	RequestID    string        `json:"requestId"`
	Kind         Kind          `json:"kind"`
	Backend      string        `json:"backend"`
	Topic        string        `json:"topic"`
	Status       string        `json:"status"`
	ErrorKind    string        `json:"errorKind,omitempty"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	RawResponse  string        `json:"rawResponse,omitempty"`
	Duration     time.Duration `json:"-"`
	CreatedAt    time.Time     `json:"createdAt"`
}

type entryJSON Entry

// MarshalJSON reports Duration as whole milliseconds in durationMs.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		entryJSON
		DurationMs int64 `json:"durationMs"`
	}{entryJSON(e), e.Duration.Milliseconds()})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var wire struct {
		entryJSON
		DurationMs int64 `json:"durationMs"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*e = Entry(wire.entryJSON)
	e.Duration = time.Duration(wire.DurationMs) * time.Millisecond
	return nil
}

// Recorder persists entries.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// NopRecorder discards entries.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Entry) error { return nil }

// SQLiteRecorder stores entries in the generation_logs table.
type SQLiteRecorder struct {
	db *sql.DB
}

func NewSQLiteRecorder(db *sql.DB) *SQLiteRecorder {
	return &SQLiteRecorder{db: db}
}

func (r *SQLiteRecorder) Record(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = timeNow().UTC()
	}
	raw := truncate(entry.RawResponse, maxRawResponse)

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO generation_logs
			(request_id, kind, backend, topic, status, error_kind, error_message, raw_response, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`, entry.RequestID, string(entry.Kind), entry.Backend, entry.Topic, entry.Status,
		entry.ErrorKind, entry.ErrorMessage, raw, entry.Duration.Milliseconds(), entry.CreatedAt); err != nil {
		return fmt.Errorf("insert generation log: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (r *SQLiteRecorder) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, request_id, kind, backend, topic, status, error_kind, error_message, raw_response, duration_ms, created_at
		FROM generation_logs
		ORDER BY created_at DESC, id DESC
		LIMIT ?;
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query generation logs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry      Entry
			kind       string
			durationMs int64
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.RequestID,
			&kind,
			&entry.Backend,
			&entry.Topic,
			&entry.Status,
			&entry.ErrorKind,
			&entry.ErrorMessage,
			&entry.RawResponse,
			&durationMs,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan generation log: %w", err)
		}
		entry.Kind = Kind(kind)
		entry.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generation logs: %w", err)
	}
	return entries, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

var timeNow = time.Now
