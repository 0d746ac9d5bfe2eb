// Package reports exports the snapshot history for use outside the tool.
package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rmax-ai/claude-usage/pkg/store"
)

type ReportFormat string

const (
	ReportFormatCSV  ReportFormat = "csv"
	ReportFormatJSON ReportFormat = "json"
)

// ReportParams selects the records to export. Zero times are unbounded.
type ReportParams struct {
	Start time.Time
	End   time.Time
	Limit int
}

// ReportStore is the history access a report needs.
type ReportStore interface {
	ReadRecent(ctx context.Context, limit int) ([]store.Record, error)
}

type Generator interface {
	Generate(ctx context.Context, params ReportParams) (io.Reader, error)
}

// NewGenerator returns the history exporter for format.
func NewGenerator(format ReportFormat, s ReportStore) (Generator, error) {
	switch format {
	case ReportFormatCSV:
		return &HistoryCSV{store: s}, nil
	case ReportFormatJSON:
		return &HistoryJSON{store: s}, nil
	default:
		return nil, fmt.Errorf("unknown report format: %s", format)
	}
}

// HistoryCSV writes one row per recorded snapshot, oldest first.
type HistoryCSV struct {
	store ReportStore
}

func (r *HistoryCSV) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	records, err := query(ctx, r.store, params)
	if err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	headers := []string{"recorded_at", "trigger", "source", "five_hour", "weekly", "five_hour_reset", "weekly_reset", "warning"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}

	for _, rec := range records {
		row := []string{
			rec.RecordedAt.UTC().Format(time.RFC3339),
			rec.Trigger,
			string(rec.Source),
			strconv.Itoa(rec.FiveHour),
			strconv.Itoa(rec.Weekly),
			formatTime(rec.FiveHourReset),
			formatTime(rec.WeeklyReset),
			rec.Warning,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush writer: %w", err)
	}
	return buf, nil
}

// HistoryJSON writes the selected records as a JSON array, oldest first.
type HistoryJSON struct {
	store ReportStore
}

func (r *HistoryJSON) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	records, err := query(ctx, r.store, params)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []store.Record{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal records: %w", err)
	}
	return bytes.NewReader(append(data, '\n')), nil
}

func query(ctx context.Context, s ReportStore, params ReportParams) ([]store.Record, error) {
	records, err := s.ReadRecent(ctx, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	// ReadRecent is newest first.
	out := make([]store.Record, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if !params.Start.IsZero() && rec.RecordedAt.Before(params.Start) {
			continue
		}
		if !params.End.IsZero() && rec.RecordedAt.After(params.End) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
