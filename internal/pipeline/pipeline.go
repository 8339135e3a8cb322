// Package pipeline orchestrates the six harmonization stages per source:
// ingestion, profiling, classification, mapping, transform, and quality.
// Sources run concurrently; a failure in one never aborts the others.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/harmonize-cli/internal/artifact"
	"github.com/sells-group/harmonize-cli/internal/config"
	"github.com/sells-group/harmonize-cli/internal/fetch"
	"github.com/sells-group/harmonize-cli/internal/ingest"
	"github.com/sells-group/harmonize-cli/internal/mapping"
	"github.com/sells-group/harmonize-cli/internal/model"
	"github.com/sells-group/harmonize-cli/internal/profile"
	"github.com/sells-group/harmonize-cli/internal/quality"
	"github.com/sells-group/harmonize-cli/internal/review"
	"github.com/sells-group/harmonize-cli/internal/semantic"
	"github.com/sells-group/harmonize-cli/internal/store"
	"github.com/sells-group/harmonize-cli/internal/transform"
	"github.com/sells-group/harmonize-cli/internal/vocab"
)

// Pipeline runs harmonization over a batch of raw sources.
type Pipeline struct {
	cfg     *config.Config
	store   store.Store
	vocab   *vocab.Store
	ruleset *semantic.Ruleset
	rules   []quality.Rule
	schema  *model.SchemaRegistry
	writer  *artifact.Writer
	fetcher *fetch.Resolver
}

// New creates a Pipeline with all dependencies.
func New(cfg *config.Config, st store.Store, vs *vocab.Store, ruleset *semantic.Ruleset, rules []quality.Rule) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		store:   st,
		vocab:   vs,
		ruleset: ruleset,
		rules:   rules,
		schema:  model.DefaultSchema(),
		writer:  &artifact.Writer{Dir: cfg.Output.Dir, WriteCSV: cfg.Output.WriteCSV},
		fetcher: fetch.NewResolver(
			fetch.NewHTTP(fetch.HTTPOptions{
				UserAgent:     cfg.Fetch.UserAgent,
				Timeout:       time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
				MaxAttempts:   cfg.Fetch.MaxAttempts,
				RatePerSecond: cfg.Fetch.RatePerSecond,
			}),
			fetch.NewFTP(fetch.FTPOptions{
				Timeout:  time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
				User:     cfg.Fetch.FTPUser,
				Password: cfg.Fetch.FTPPassword,
			}),
			cfg.Fetch.ScratchDir,
		),
	}
}

// sourceResult collects everything one source contributes to the run.
type sourceResult struct {
	outcome   model.SourceOutcome
	schemaMap *model.SchemaMap
	rows      []model.HarmonizedRow
	findings  []model.QualityFinding
	items     []model.ReviewItem
	warnings  []model.EngineError
	errors    []model.EngineError
}

// Run harmonizes all sources and returns the finalized run log. A run log
// is produced even when every source fails; only infrastructure faults
// (store writes) surface as an error.
func (p *Pipeline) Run(ctx context.Context, sources []model.RawSource) (*model.RunLog, error) {
	runID := model.NewRunID()
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", runID))
	log.Info("run starting", zap.Int("sources", len(sources)))

	snap, err := p.vocab.Snapshot(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: vocabulary snapshot")
	}

	run := &model.RunLog{
		SchemaVersion:     model.SchemaVersion,
		RunID:             runID,
		Status:            model.RunRunning,
		StartedAt:         time.Now().UTC(),
		VocabularyVersion: snap.Version,
		Warnings:          []model.EngineError{},
		Errors:            []model.EngineError{},
	}
	if err := p.store.CreateRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	results := make([]*sourceResult, len(sources))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrent())
	for i, src := range sources {
		g.Go(func() error {
			results[i] = p.runSource(gCtx, runID, src, snap)
			return nil
		})
	}
	_ = g.Wait()

	p.finalize(ctx, run, results)

	if err := p.store.CompleteRun(ctx, run); err != nil {
		return run, eris.Wrap(err, "pipeline: complete run")
	}

	log.Info("run finished",
		zap.String("status", string(run.Status)),
		zap.Int("records_written", run.RecordsWritten),
		zap.Int("records_excluded", run.RecordsExcluded),
		zap.Float64("confidence", run.OverallConfidence),
		zap.Bool("review", run.HumanReviewRequired),
	)
	return run, nil
}

func (p *Pipeline) maxConcurrent() int {
	if p.cfg.Batch.MaxConcurrentSources > 0 {
		return p.cfg.Batch.MaxConcurrentSources
	}
	return 4
}

// runSource executes stages 1-6 for one source. Every stage outcome is
// recorded; the first fatal stage error stops the source but not the run.
func (p *Pipeline) runSource(ctx context.Context, runID string, src model.RawSource, snap *vocab.Snapshot) *sourceResult {
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", runID), zap.String("source", src.Ref()))

	res := &sourceResult{
		outcome: model.SourceOutcome{
			SourceRef:    src.Ref(),
			PartnerName:  src.PartnerName,
			Status:       "complete",
			StageResults: make(map[string]model.StageResult),
		},
	}

	var stagesMu sync.Mutex
	trackStage := func(name string, fn func() (map[string]any, error)) error {
		start := time.Now()
		meta, err := fn()
		stage := model.StageResult{
			Status:     model.StageComplete,
			DurationMS: time.Since(start).Milliseconds(),
			Metadata:   meta,
		}
		if err != nil {
			stage.Status = model.StageFailed
			stage.Errors = []string{err.Error()}
			log.Error("stage failed", zap.String("stage", name), zap.Error(err))
		} else {
			log.Debug("stage complete", zap.String("stage", name), zap.Int64("duration_ms", stage.DurationMS))
		}
		stagesMu.Lock()
		res.outcome.StageResults[name] = stage
		stagesMu.Unlock()
		return err
	}

	fail := func(code model.ErrorCode, err error) *sourceResult {
		res.outcome.Status = "failed"
		res.errors = append(res.errors, model.EngineError{
			Code:      code,
			Message:   err.Error(),
			SourceRef: src.Ref(),
		})
		return res
	}

	// Stage 1: ingestion. Remote locations are fetched to a scratch file
	// first; the original source keeps its location so lineage refs hold.
	var table *model.Table
	var meta *model.IngestionMetadata
	err := trackStage("1_ingest", func() (map[string]any, error) {
		local, cleanup, err := p.fetcher.Resolve(ctx, src.SourceLocation)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		readSrc := src
		readSrc.SourceLocation = local
		table, meta, err = ingest.Read(readSrc, ingest.Options{
			SupportedEncodings: p.cfg.Ingest.SupportedEncodings,
			MaxFileSizeBytes:   p.cfg.Ingest.MaxFileSizeBytes,
			MaxRows:            p.cfg.Ingest.MaxRows,
			HeaderScanRows:     p.cfg.Ingest.HeaderScanRows,
			HeaderKeywords:     p.cfg.Ingest.HeaderKeywords,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"rows":     meta.RowsRead,
			"columns":  meta.ColumnsRead,
			"encoding": meta.Encoding,
		}, nil
	})
	if err != nil {
		return fail(ingest.ErrorCode(err), err)
	}
	res.outcome.RecordsRead = len(table.Rows)

	// Stage 2: profiling.
	var profiles []model.ColumnProfile
	err = trackStage("2_profile", func() (map[string]any, error) {
		var err error
		profiles, err = profile.Table(ctx, table, profile.Options{
			SampleSize:  p.cfg.Profile.SampleSize,
			DistinctCap: p.cfg.Profile.DistinctCap,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"columns": len(profiles)}, nil
	})
	if err != nil {
		return fail(model.CodeEmptySource, err)
	}

	// Stage 3: semantic classification. Never fatal.
	var classes []model.SemanticClassification
	_ = trackStage("3_classify", func() (map[string]any, error) {
		classes = semantic.ClassifyAll(profiles, p.ruleset)
		ambiguous := 0
		for _, c := range classes {
			if c.Ambiguous {
				ambiguous++
			}
		}
		return map[string]any{"ambiguous": ambiguous}, nil
	})

	// Stage 4: mapping. Unmappable required fields degrade the source to
	// the review path instead of failing it.
	engine := mapping.New(mapping.Config{
		FuzzyDistance:       p.cfg.Mapping.FuzzyDistance,
		SemanticWeight:      p.cfg.Mapping.SemanticWeight,
		HighNullRate:        p.cfg.Mapping.HighNullRate,
		RunnerUpGap:         p.cfg.Mapping.RunnerUpGap,
		MinViableConfidence: p.cfg.Mapping.MinViableConfidence,
		DefaultCurrency:     p.cfg.Mapping.DefaultCurrency,
		GenericTokens:       p.cfg.Semantic.GenericTokens,
	}, p.schema)

	var mapResult *mapping.Result
	_ = trackStage("4_map", func() (map[string]any, error) {
		mapResult = engine.Resolve(src, profiles, classes, snap)
		return map[string]any{
			"mapped":     len(mapResult.SchemaMap.Mappings),
			"unmapped":   len(mapResult.SchemaMap.UnmappedFields),
			"confidence": mapResult.SchemaMap.OverallConfidence,
		}, nil
	})
	mapResult.SchemaMap.RunID = runID
	res.schemaMap = mapResult.SchemaMap
	res.errors = append(res.errors, mapResult.Errors...)
	for _, uf := range mapResult.SchemaMap.UnmappedFields {
		if uf.Required {
			continue
		}
		res.warnings = append(res.warnings, model.EngineError{
			Code:           model.CodeOptionalFieldUnmapped,
			Message:        fmt.Sprintf("optional field %q left null: %s", uf.Name, uf.Reason),
			SourceRef:      src.Ref(),
			AffectedFields: []string{uf.Name},
		})
	}

	// Stage 5: transform.
	var txResult *transform.Result
	err = trackStage("5_transform", func() (map[string]any, error) {
		var err error
		txResult, err = transform.Execute(ctx, src, table, mapResult.SchemaMap, transform.Options{
			DateFormats: p.cfg.Transform.DateFormats,
			Number: transform.NumberOptions{
				ThousandsSeparator: p.cfg.Transform.ThousandsSeparator,
				DecimalSeparator:   p.cfg.Transform.DecimalSeparator,
			},
			RowCountTolerance: p.cfg.Transform.RowCountTolerance,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"rows_out": len(txResult.Rows)}, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return fail(model.CodeCancelled, err)
		}
		return fail(model.CodeRowCountMismatch, err)
	}
	res.warnings = append(res.warnings, txResult.Warnings...)

	// Stage 6: quality.
	var qres quality.TableResult
	_ = trackStage("6_quality", func() (map[string]any, error) {
		qres = quality.EvaluateTable(txResult.Rows, p.rules, quality.Env{
			Vocab:                    snap,
			NegativeMetricExceptions: p.cfg.Quality.NegativeMetrics,
		})
		return map[string]any{
			"findings":    len(qres.Findings),
			"rows_failed": qres.RowsFailed,
			"rows_warned": qres.RowsWarned,
		}, nil
	})
	res.rows = qres.Rows
	res.findings = qres.Findings
	res.outcome.RecordsWritten = len(qres.Rows) - qres.RowsFailed
	res.outcome.RecordsExcluded = qres.RowsFailed

	// Confidence aggregation and review routing.
	rates := review.RatesFrom(len(qres.Rows), qres.RowsFailed, qres.RowsWarned)
	res.outcome.Confidence = review.Aggregate(mapResult.SchemaMap, rates)

	prior, err := p.store.LastColumnSet(ctx, src.Ref())
	if err != nil {
		log.Warn("prior column set unavailable", zap.Error(err))
	}
	_, partnerKnown := snap.ResolvePartner(src.PartnerName)
	res.items = review.Route(review.Input{
		RunID:        runID,
		SourceRef:    src.Ref(),
		SchemaMap:    mapResult.SchemaMap,
		Overall:      res.outcome.Confidence,
		Rates:        rates,
		PartnerKnown: partnerKnown,
		PartnerName:  src.PartnerName,
		PriorColumns: prior,
		Samples:      sampleLookup(profiles),
	}, review.Config{
		ConfidenceThreshold: p.cfg.Review.ConfidenceThreshold,
		MaxErrorRate:        p.cfg.Review.MaxErrorRate,
		MaxWarningRate:      p.cfg.Review.MaxWarningRate,
		ItemTTL:             time.Duration(p.cfg.Review.ItemTTLHours) * time.Hour,
	})

	if err := p.store.SaveSchemaMap(ctx, mapResult.SchemaMap); err != nil {
		log.Warn("schema map not persisted", zap.Error(err))
	}
	return res
}

// finalize folds per-source results into the run log, writes artifacts,
// and persists review items.
func (p *Pipeline) finalize(ctx context.Context, run *model.RunLog, results []*sourceResult) {
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", run.RunID))

	table := &model.HarmonizedTable{
		SchemaVersion: model.SchemaVersion,
		RunID:         run.RunID,
	}
	minConfidence := 1.0
	sawSource := false
	failedSources := 0

	for ordinal, res := range results {
		if res == nil {
			continue
		}
		run.Sources = append(run.Sources, res.outcome)
		run.RecordsRead += res.outcome.RecordsRead
		run.RecordsWritten += res.outcome.RecordsWritten
		run.RecordsExcluded += res.outcome.RecordsExcluded
		run.Warnings = append(run.Warnings, res.warnings...)
		run.Errors = append(run.Errors, res.errors...)
		run.ReviewItems = append(run.ReviewItems, res.items...)

		table.Rows = append(table.Rows, res.rows...)

		if res.outcome.Status == "failed" {
			failedSources++
			continue
		}
		sawSource = true
		if res.outcome.Confidence < minConfidence {
			minConfidence = res.outcome.Confidence
		}

		if res.schemaMap != nil {
			if path, err := p.writer.WriteSchemaMap(run.RunID, ordinal, res.schemaMap); err != nil {
				log.Warn("schema map artifact not written", zap.Error(err))
			} else {
				if run.OutputArtifacts == nil {
					run.OutputArtifacts = map[string]string{}
				}
				run.OutputArtifacts[fmt.Sprintf("schema_map_%03d", ordinal)] = path
			}
		}
	}

	table.RowCount = len(table.Rows)
	table.Columns = p.schema.Describe(table.Rows)
	for _, row := range table.Rows {
		if row.Excluded {
			table.ExcludedCount++
		}
	}

	if sawSource {
		run.OverallConfidence = minConfidence
	}

	if paths, err := p.writer.WriteTable(run.RunID, table); err != nil {
		log.Warn("table artifact not written", zap.Error(err))
	} else {
		if run.OutputArtifacts == nil {
			run.OutputArtifacts = map[string]string{}
		}
		for k, v := range paths {
			run.OutputArtifacts[k] = v
		}
	}

	if len(table.Rows) > 0 {
		if n, err := p.store.SaveRows(ctx, run.RunID, table.Rows); err != nil {
			log.Warn("harmonized rows not persisted", zap.Error(err))
		} else {
			log.Debug("harmonized rows persisted", zap.Int64("rows", n))
		}
	}

	if len(run.ReviewItems) > 0 {
		if err := p.store.SaveReviewItems(ctx, run.ReviewItems); err != nil {
			log.Warn("review items not persisted", zap.Error(err))
		}
	}

	now := time.Now().UTC()
	run.CompletedAt = &now
	run.HumanReviewRequired = len(run.ReviewItems) > 0

	switch {
	case ctx.Err() != nil:
		run.Status = model.RunCancelled
	case !sawSource && failedSources > 0:
		run.Status = model.RunFailed
	case run.HumanReviewRequired:
		run.Status = model.RunCompleteReview
	default:
		run.Status = model.RunComplete
	}

	if path, err := p.writer.WriteRunLog(run); err != nil {
		log.Warn("run log artifact not written", zap.Error(err))
	} else {
		if run.OutputArtifacts == nil {
			run.OutputArtifacts = map[string]string{}
		}
		run.OutputArtifacts["run_log"] = path
	}
}

func sampleLookup(profiles []model.ColumnProfile) func(string) []string {
	byName := make(map[string][]string, len(profiles))
	for _, p := range profiles {
		byName[p.Name] = p.SampleValues
	}
	return func(column string) []string {
		return byName[column]
	}
}
