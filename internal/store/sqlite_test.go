package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/harmonize-cli/internal/model"
)

func openSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "harmonize.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleRun(runID string) *model.RunLog {
	return &model.RunLog{
		SchemaVersion: "1.0",
		RunID:         runID,
		Status:        model.RunRunning,
		StartedAt:     time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC),
	}
}

func sampleItem(reviewID, runID string) model.ReviewItem {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	return model.ReviewItem{
		ReviewID:      reviewID,
		RunID:         runID,
		SourceRef:     "adserver:/data/jan.csv",
		TriggerReason: model.TriggerFirstRun,
		Description:   "first run for this source",
		Status:        model.ReviewPending,
		CreatedAt:     now,
		ExpiresAt:     now.Add(72 * time.Hour),
	}
}

func TestSQLite_RunLifecycle(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	run := sampleRun("run-1")
	require.NoError(t, s.CreateRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunRunning, got.Status)

	completed := run.StartedAt.Add(time.Minute)
	run.Status = model.RunComplete
	run.CompletedAt = &completed
	run.RecordsWritten = 42
	require.NoError(t, s.CompleteRun(ctx, run))

	got, err = s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunComplete, got.Status)
	assert.Equal(t, 42, got.RecordsWritten)
	require.NotNil(t, got.CompletedAt)
}

func TestSQLite_GetRunNotFound(t *testing.T) {
	s := openSQLite(t)
	_, err := s.GetRun(context.Background(), "absent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestSQLite_CompleteRunUnknownID(t *testing.T) {
	s := openSQLite(t)
	run := sampleRun("never-created")
	run.Status = model.RunComplete
	err := s.CompleteRun(context.Background(), run)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_ListRunsByStatus(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		run := sampleRun(id)
		run.StartedAt = run.StartedAt.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.CreateRun(ctx, run))
	}
	run, err := s.GetRun(ctx, "run-b")
	require.NoError(t, err)
	completed := run.StartedAt.Add(time.Minute)
	run.Status = model.RunFailed
	run.CompletedAt = &completed
	require.NoError(t, s.CompleteRun(ctx, run))

	failed, err := s.ListRuns(ctx, RunFilter{Status: model.RunFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "run-b", failed[0].RunID)

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "run-c", all[0].RunID, "newest first")
}

func TestSQLite_SchemaMapAndColumnSet(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	require.NoError(t, s.CreateRun(ctx, sampleRun("run-1")))

	cols, err := s.LastColumnSet(ctx, "adserver:/data/jan.csv")
	require.NoError(t, err)
	assert.Nil(t, cols, "never-seen source yields nil, not empty slice")

	sm := &model.SchemaMap{
		SchemaVersion: "1.0",
		RunID:         "run-1",
		SourceRef:     "adserver:/data/jan.csv",
		SourceColumns: []string{"Date", "Impressions", "Spend"},
	}
	require.NoError(t, s.SaveSchemaMap(ctx, sm))

	cols, err = s.LastColumnSet(ctx, "adserver:/data/jan.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"Date", "Impressions", "Spend"}, cols)

	// Re-saving for the same run replaces rather than duplicates.
	sm.SourceColumns = []string{"Date", "Impressions"}
	require.NoError(t, s.SaveSchemaMap(ctx, sm))
	cols, err = s.LastColumnSet(ctx, "adserver:/data/jan.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"Date", "Impressions"}, cols)
}

func TestSQLite_SaveRowsIdempotent(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	require.NoError(t, s.CreateRun(ctx, sampleRun("run-1")))

	v := 1000.0
	rows := []model.HarmonizedRow{
		{
			Date: "2026-01-15", PartnerName: "Acme Media", MetricName: "impressions",
			MetricValue: &v, Currency: "USD", SourceSystem: "adserver",
			SourceLocation: "/data/jan.csv", SourceRecordID: "rec-1",
			IngestedAt: time.Date(2026, 1, 18, 9, 0, 0, 0, time.UTC),
		},
		{
			Date: "2026-01-15", PartnerName: "Acme Media", MetricName: "spend",
			SourceSystem: "adserver", SourceLocation: "/data/jan.csv",
			SourceRecordID: "rec-2",
			IngestedAt:     time.Date(2026, 1, 18, 9, 0, 0, 0, time.UTC),
			Excluded:       true, ExclusionReason: "DH-001",
		},
	}
	n, err := s.SaveRows(ctx, "run-1", rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Same record ids again: replaced, not duplicated.
	_, err = s.SaveRows(ctx, "run-1", rows)
	require.NoError(t, err)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM harmonized_rows`).Scan(&count))
	assert.Equal(t, 2, count)

	var excluded bool
	var reason string
	require.NoError(t, s.db.QueryRow(
		`SELECT excluded, exclusion_reason FROM harmonized_rows WHERE record_id = ?`, "rec-2",
	).Scan(&excluded, &reason))
	assert.True(t, excluded)
	assert.Equal(t, "DH-001", reason)
}

func TestSQLite_SaveRowsEmpty(t *testing.T) {
	s := openSQLite(t)
	n, err := s.SaveRows(context.Background(), "run-1", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_ReviewLifecycle(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	require.NoError(t, s.CreateRun(ctx, sampleRun("run-1")))
	require.NoError(t, s.SaveReviewItems(ctx, []model.ReviewItem{
		sampleItem("rev-1", "run-1"),
		sampleItem("rev-2", "run-1"),
	}))

	pending, err := s.ListReviewItems(ctx, ReviewFilter{RunID: "run-1", Status: model.ReviewPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	item, err := s.ResolveReview(ctx, "rev-1", model.ActionApprove, "mapping confirmed")
	require.NoError(t, err)
	assert.Equal(t, model.ReviewApproved, item.Status)
	assert.Equal(t, "mapping confirmed", item.Resolution)

	got, err := s.GetReviewItem(ctx, "rev-1")
	require.NoError(t, err)
	assert.Equal(t, model.ReviewApproved, got.Status)

	// A terminal item cannot be resolved twice.
	_, err = s.ResolveReview(ctx, "rev-1", model.ActionReject, "changed my mind")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already approved")

	pending, err = s.ListReviewItems(ctx, ReviewFilter{RunID: "run-1", Status: model.ReviewPending})
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSQLite_ResolveUnknownReview(t *testing.T) {
	s := openSQLite(t)
	_, err := s.ResolveReview(context.Background(), "absent", model.ActionApprove, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "review item not found")
}

func TestSQLite_SaveReviewItemsEmpty(t *testing.T) {
	s := openSQLite(t)
	require.NoError(t, s.SaveReviewItems(context.Background(), nil))
}
