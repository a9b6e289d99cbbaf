package sink

import (
	"context"
	"fmt"

	"github.com/kubilitics/kubilitics-gate/internal/db"
)

// ArchiveSink stores reports in the local SQLite archive.
type ArchiveSink struct {
	store db.ReportStore
}

// NewArchiveSink creates an archive sink backed by store.
func NewArchiveSink(store db.ReportStore) *ArchiveSink {
	return &ArchiveSink{store: store}
}

func (s *ArchiveSink) Name() string { return "archive" }

// Deliver saves the report, and the initial phase too for validation runs.
// Saving is an upsert, so an initial report archived earlier is harmless.
func (s *ArchiveSink) Deliver(ctx context.Context, d Delivery) error {
	if d.Initial != nil {
		if err := s.store.SaveReport(ctx, db.NewReportRecord(d.Initial, d.ValidationID)); err != nil {
			return fmt.Errorf("archive initial report: %w", err)
		}
	}
	if err := s.store.SaveReport(ctx, db.NewReportRecord(d.Report, d.ValidationID)); err != nil {
		return fmt.Errorf("archive report: %w", err)
	}
	return nil
}
