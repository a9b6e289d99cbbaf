// Package db persists gate reports so later runs can compare against them.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/kubilitics/kubilitics-gate/internal/health"
)

// ErrNotFound is returned when a run id has no archived report.
var ErrNotFound = errors.New("report not found")

// Store is the persistence interface for the report archive.
type Store interface {
	ReportStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// ReportRecord is the archived form of a HealthReport. The indexed columns
// mirror the report so history listings do not need to decode the body.
type ReportRecord struct {
	RunID          string
	ValidationID   string // shared by the initial and final reports of a validate run
	Phase          string
	Score          float64
	CriticalIssues int
	Recommendation string
	Mode           string
	PipelineID     string
	CommitSHA      string
	Environment    string
	Namespace      string
	Report         *health.HealthReport
	CreatedAt      time.Time
}

// NewReportRecord builds a record from a report. validationID may be empty.
func NewReportRecord(r *health.HealthReport, validationID string) *ReportRecord {
	return &ReportRecord{
		RunID:          r.RunID,
		ValidationID:   validationID,
		Phase:          string(r.Phase),
		Score:          r.OverallScore,
		CriticalIssues: r.CriticalIssues,
		Recommendation: string(r.Recommendation),
		Mode:           string(r.Mode),
		PipelineID:     r.Context.PipelineID,
		CommitSHA:      r.Context.CommitSHA,
		Environment:    r.Context.Environment,
		Namespace:      r.Context.Namespace,
		Report:         r,
		CreatedAt:      r.Timestamp,
	}
}

// ReportQuery filters ListReports. Zero values match everything.
type ReportQuery struct {
	PipelineID     string
	Environment    string
	Recommendation string
	Limit          int
	Offset         int
}

// ReportStore persists gate reports.
type ReportStore interface {
	// SaveReport writes a report, replacing any earlier row with the same run id.
	SaveReport(ctx context.Context, rec *ReportRecord) error

	// GetReport returns the report for runID, or ErrNotFound.
	GetReport(ctx context.Context, runID string) (*ReportRecord, error)

	// ListReports returns reports newest first.
	ListReports(ctx context.Context, q ReportQuery) ([]*ReportRecord, error)

	// ValidationPair returns the initial and final reports of a validate run.
	// final is nil when the second phase never completed.
	ValidationPair(ctx context.Context, validationID string) (initial, final *ReportRecord, err error)

	// LatestReport returns the newest report for a pipeline, or ErrNotFound.
	LatestReport(ctx context.Context, pipelineID string) (*ReportRecord, error)

	// PruneReports deletes reports older than the cutoff and returns how many went.
	PruneReports(ctx context.Context, before time.Time) (int64, error)
}
