package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/harmonize-cli/internal/config"
	"github.com/sells-group/harmonize-cli/internal/model"
	"github.com/sells-group/harmonize-cli/internal/quality"
	"github.com/sells-group/harmonize-cli/internal/semantic"
	"github.com/sells-group/harmonize-cli/internal/store"
	"github.com/sells-group/harmonize-cli/internal/vocab"
)

const wideCSV = `Date,Campaign,Impressions,Clicks,Spend
2026-01-15,Winter Push,1000,25,"$120.50"
2026-01-16,Winter Push,2000,38,"$98.00"
2026-01-17,Spring Teaser,1500,31,"$110.25"
`

const seedYAML = `partners:
  - name: Acme Media
    aliases: ["acme", "acme corp"]
metrics:
  - canonical: impressions
    aliases: ["imps"]
  - canonical: clicks
  - canonical: spend
    aliases: ["cost", "media spend"]
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Ingest: config.IngestConfig{
			SupportedEncodings: []string{"utf-8"},
			MaxRows:            100000,
			HeaderScanRows:     20,
			HeaderKeywords:     []string{"date", "campaign", "impressions", "clicks", "spend"},
		},
		Profile:  config.ProfileConfig{SampleSize: 10, DistinctCap: 10000},
		Semantic: config.SemanticConfig{GenericTokens: []string{"value", "id", "name"}},
		Mapping: config.MappingConfig{
			FuzzyDistance:       2,
			HighNullRate:        0.20,
			RunnerUpGap:         0.15,
			MinViableConfidence: 0.3,
			DefaultCurrency:     "USD",
		},
		Transform: config.TransformConfig{
			DateFormats: []string{"2006-01-02", "01/02/2006"},
		},
		Quality: config.QualityConfig{DefaultCurrency: "USD"},
		Review: config.ReviewConfig{
			ConfidenceThreshold: 0.6,
			MaxErrorRate:        0.05,
			MaxWarningRate:      0.20,
			ItemTTLHours:        72,
		},
		Batch:  config.BatchConfig{MaxConcurrentSources: 2},
		Output: config.OutputConfig{Dir: t.TempDir(), WriteCSV: true},
	}
}

func testPipeline(t *testing.T) (*Pipeline, store.Store) {
	t.Helper()
	dir := t.TempDir()

	st, err := store.NewSQLite(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	seedPath := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(seedYAML), 0o644))
	vs, err := vocab.Open(filepath.Join(dir, "vocab.db"))
	require.NoError(t, err)
	t.Cleanup(func() { vs.Close() })
	require.NoError(t, vs.Migrate(context.Background()))
	require.NoError(t, vs.Seed(context.Background(), seedPath))

	cfg := testConfig(t)
	return New(cfg, st, vs, semantic.DefaultRuleset(), quality.DefaultRules("USD")), st
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jan.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRun_WideSourceEndToEnd(t *testing.T) {
	p, st := testPipeline(t)
	ctx := context.Background()

	src := model.RawSource{
		SourceSystem:   "adserver",
		SourceLocation: writeCSV(t, wideCSV),
		PartnerName:    "acme",
	}

	run, err := p.Run(ctx, []model.RawSource{src})
	require.NoError(t, err)

	// Three rows by three metric columns unpivot to nine facts.
	assert.Equal(t, 3, run.RecordsRead)
	assert.Equal(t, 9, run.RecordsWritten)
	assert.Equal(t, 0, run.RecordsExcluded)

	require.Len(t, run.Sources, 1)
	outcome := run.Sources[0]
	assert.Equal(t, "complete", outcome.Status)
	for _, stage := range []string{"1_ingest", "2_profile", "3_classify", "4_map", "5_transform", "6_quality"} {
		sr, ok := outcome.StageResults[stage]
		require.True(t, ok, "stage %s missing", stage)
		assert.Equal(t, model.StageComplete, sr.Status)
	}

	// Optional fields nothing mapped to surface as structured warnings.
	codes := make(map[model.ErrorCode]bool)
	for _, w := range run.Warnings {
		codes[w.Code] = true
	}
	assert.True(t, codes[model.CodeOptionalFieldUnmapped])

	// A never-seen source always escalates for first-run review.
	assert.True(t, run.HumanReviewRequired)
	assert.Equal(t, model.RunCompleteReview, run.Status)
	hasFirstRun := false
	for _, item := range run.ReviewItems {
		if item.TriggerReason == model.TriggerFirstRun {
			hasFirstRun = true
		}
	}
	assert.True(t, hasFirstRun)

	// Persisted run log matches the returned one.
	stored, err := st.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleteReview, stored.Status)
	assert.Equal(t, 9, stored.RecordsWritten)

	// Review items landed in the store as pending.
	items, err := st.ListReviewItems(ctx, store.ReviewFilter{RunID: run.RunID, Status: model.ReviewPending})
	require.NoError(t, err)
	assert.NotEmpty(t, items)

	// Artifacts were written.
	assert.Contains(t, run.OutputArtifacts, "harmonized_table")
	assert.Contains(t, run.OutputArtifacts, "run_log")

	// The table artifact carries the column descriptor alongside the rows.
	raw, err := os.ReadFile(run.OutputArtifacts["harmonized_table"])
	require.NoError(t, err)
	var table model.HarmonizedTable
	require.NoError(t, json.Unmarshal(raw, &table))
	require.Len(t, table.Columns, 11)
	byName := make(map[string]model.ColumnInfo, len(table.Columns))
	for _, c := range table.Columns {
		byName[c.Name] = c
	}
	assert.Equal(t, model.TypeNumeric, byName[model.FieldMetricValue].Type)
	assert.Equal(t, 0, byName[model.FieldDate].NullCount)
	assert.Equal(t, 0, byName[model.FieldMetricValue].NullCount)
}

func TestRun_SecondRunDetectsDrift(t *testing.T) {
	p, _ := testPipeline(t)
	ctx := context.Background()

	path := writeCSV(t, wideCSV)
	src := model.RawSource{
		SourceSystem:   "adserver",
		SourceLocation: path,
		PartnerName:    "acme",
		PayloadRef:     "adserver-jan",
	}
	_, err := p.Run(ctx, []model.RawSource{src})
	require.NoError(t, err)

	// Same payload identity, new column set.
	drifted := `Date,Campaign,Imps,Spend
2026-02-15,Winter Push,1200,"$50.00"
`
	src.SourceLocation = writeCSV(t, drifted)
	run, err := p.Run(ctx, []model.RawSource{src})
	require.NoError(t, err)

	var reasons []model.TriggerReason
	for _, item := range run.ReviewItems {
		reasons = append(reasons, item.TriggerReason)
	}
	assert.Contains(t, reasons, model.TriggerColumnSetChanged)
	assert.NotContains(t, reasons, model.TriggerFirstRun)
}

func TestRun_MissingFileFailsSourceNotRun(t *testing.T) {
	p, st := testPipeline(t)
	ctx := context.Background()

	run, err := p.Run(ctx, []model.RawSource{{
		SourceSystem:   "adserver",
		SourceLocation: filepath.Join(t.TempDir(), "absent.csv"),
	}})
	require.NoError(t, err, "a failed source still yields a run log")

	assert.Equal(t, model.RunFailed, run.Status)
	require.Len(t, run.Sources, 1)
	assert.Equal(t, "failed", run.Sources[0].Status)
	assert.NotEmpty(t, run.Errors)

	stored, err := st.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, stored.Status)
}

func TestRunSource_CancellationClassified(t *testing.T) {
	p, _ := testPipeline(t)

	snap, err := p.vocab.Snapshot(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := p.runSource(ctx, "run-test", model.RawSource{
		SourceSystem:   "adserver",
		SourceLocation: writeCSV(t, wideCSV),
		PartnerName:    "acme",
	}, snap)

	assert.Equal(t, "failed", res.outcome.Status)
	require.NotEmpty(t, res.errors)
	codes := make(map[model.ErrorCode]bool)
	for _, e := range res.errors {
		codes[e.Code] = true
	}
	assert.True(t, codes[model.CodeCancelled])
	assert.False(t, codes[model.CodeRowCountMismatch])
}

func TestRun_MixedSources(t *testing.T) {
	p, _ := testPipeline(t)
	ctx := context.Background()

	good := model.RawSource{
		SourceSystem:   "adserver",
		SourceLocation: writeCSV(t, wideCSV),
		PartnerName:    "acme",
	}
	bad := model.RawSource{
		SourceSystem:   "adserver",
		SourceLocation: filepath.Join(t.TempDir(), "absent.csv"),
	}

	run, err := p.Run(ctx, []model.RawSource{good, bad})
	require.NoError(t, err)

	// One source succeeded, so the run is not failed.
	assert.NotEqual(t, model.RunFailed, run.Status)
	assert.Equal(t, 9, run.RecordsWritten)
	require.Len(t, run.Sources, 2)
}
