package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/harmonize-cli/internal/db"
	"github.com/sells-group/harmonize-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: func() {}}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	log          JSONB NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS schema_maps (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	source_ref TEXT NOT NULL,
	columns    JSONB NOT NULL,
	map        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, source_ref)
);

CREATE TABLE IF NOT EXISTS review_items (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	source_ref TEXT,
	status     TEXT NOT NULL DEFAULT 'pending',
	item       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS harmonized_rows (
	record_id              TEXT PRIMARY KEY,
	run_id                 TEXT NOT NULL REFERENCES runs(id),
	date                   TEXT NOT NULL,
	partner_name           TEXT NOT NULL,
	package_partner_name   TEXT,
	placement_partner_name TEXT,
	metric_name            TEXT NOT NULL,
	metric_value           DOUBLE PRECISION,
	currency               TEXT,
	source_system          TEXT NOT NULL,
	source_location        TEXT NOT NULL,
	ingested_at            TIMESTAMPTZ NOT NULL,
	excluded               BOOLEAN NOT NULL DEFAULT false,
	exclusion_reason       TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_harmonized_rows_run ON harmonized_rows(run_id);
CREATE INDEX IF NOT EXISTS idx_harmonized_rows_partner ON harmonized_rows(partner_name, date);
CREATE INDEX IF NOT EXISTS idx_schema_maps_source ON schema_maps(source_ref, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_review_items_run ON review_items(run_id);
CREATE INDEX IF NOT EXISTS idx_review_items_status ON review_items(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.closeFn()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.RunLog) error {
	logJSON, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run log")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, log, started_at) VALUES ($1, $2, $3, $4)`,
		run.RunID, string(run.Status), logJSON, run.StartedAt,
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.RunID)
}

func (s *PostgresStore) CompleteRun(ctx context.Context, run *model.RunLog) error {
	logJSON, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run log")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, log = $2, completed_at = $3 WHERE id = $4`,
		string(run.Status), logJSON, run.CompletedAt, run.RunID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", run.RunID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", run.RunID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.RunLog, error) {
	var logJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT log FROM runs WHERE id = $1`, runID,
	).Scan(&logJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	var run model.RunLog
	if err := json.Unmarshal(logJSON, &run); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal run log")
	}
	return &run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunLog, error) {
	query := `SELECT log FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.RunLog
	for rows.Next() {
		var logJSON []byte
		if err := rows.Scan(&logJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		var run model.RunLog
		if err := json.Unmarshal(logJSON, &run); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal run log")
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) SaveSchemaMap(ctx context.Context, sm *model.SchemaMap) error {
	mapJSON, err := json.Marshal(sm)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal schema map")
	}
	colsJSON, err := json.Marshal(sm.SourceColumns)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal columns")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO schema_maps (run_id, source_ref, columns, map, created_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (run_id, source_ref) DO UPDATE SET columns = excluded.columns, map = excluded.map`,
		sm.RunID, sm.SourceRef, colsJSON, mapJSON, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save schema map %s/%s", sm.RunID, sm.SourceRef)
}

func (s *PostgresStore) LastColumnSet(ctx context.Context, sourceRef string) ([]string, error) {
	var colsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT columns FROM schema_maps WHERE source_ref = $1 ORDER BY created_at DESC LIMIT 1`,
		sourceRef,
	).Scan(&colsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: last column set %s", sourceRef)
	}
	var cols []string
	if err := json.Unmarshal(colsJSON, &cols); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal columns")
	}
	return cols, nil
}

// harmonizedRowColumns is the COPY column order for SaveRows.
var harmonizedRowColumns = []string{
	"record_id", "run_id", "date", "partner_name",
	"package_partner_name", "placement_partner_name",
	"metric_name", "metric_value", "currency",
	"source_system", "source_location", "ingested_at",
	"excluded", "exclusion_reason",
}

func (s *PostgresStore) SaveRows(ctx context.Context, runID string, rows []model.HarmonizedRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	values := make([][]any, 0, len(rows))
	for _, row := range rows {
		var value any
		if row.MetricValue != nil {
			value = *row.MetricValue
		}
		values = append(values, []any{
			row.SourceRecordID, runID, row.Date, row.PartnerName,
			row.PackagePartnerName, row.PlacementPartnerName,
			row.MetricName, value, row.Currency,
			row.SourceSystem, row.SourceLocation, row.IngestedAt,
			row.Excluded, row.ExclusionReason,
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "harmonized_rows",
		Columns:      harmonizedRowColumns,
		ConflictKeys: []string{"record_id"},
	}, values)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: save rows for run %s", runID)
	}
	return n, nil
}

func (s *PostgresStore) SaveReviewItems(ctx context.Context, items []model.ReviewItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx)

	for _, item := range items {
		itemJSON, err := json.Marshal(item)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal review item")
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO review_items (id, run_id, source_ref, status, item, created_at, expires_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			item.ReviewID, item.RunID, item.SourceRef, string(item.Status),
			itemJSON, item.CreatedAt, item.ExpiresAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert review item %s", item.ReviewID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit review items")
}

func (s *PostgresStore) ListReviewItems(ctx context.Context, filter ReviewFilter) ([]model.ReviewItem, error) {
	query := `SELECT item FROM review_items WHERE 1=1`
	var args []any

	if filter.RunID != "" {
		args = append(args, filter.RunID)
		query += ` AND run_id = $` + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list review items")
	}
	defer rows.Close()

	var items []model.ReviewItem
	for rows.Next() {
		var itemJSON []byte
		if err := rows.Scan(&itemJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan review item")
		}
		var item model.ReviewItem
		if err := json.Unmarshal(itemJSON, &item); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal review item")
		}
		items = append(items, item)
	}
	return items, eris.Wrap(rows.Err(), "postgres: list review items iterate")
}

func (s *PostgresStore) GetReviewItem(ctx context.Context, reviewID string) (*model.ReviewItem, error) {
	var itemJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT item FROM review_items WHERE id = $1`, reviewID,
	).Scan(&itemJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("review item not found: %s", reviewID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get review item %s", reviewID)
	}
	var item model.ReviewItem
	if err := json.Unmarshal(itemJSON, &item); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal review item")
	}
	return &item, nil
}

func (s *PostgresStore) ResolveReview(ctx context.Context, reviewID string, action model.ReviewAction, resolution string) (*model.ReviewItem, error) {
	item, err := s.GetReviewItem(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if item.Status != model.ReviewPending {
		return nil, eris.Errorf("review item %s already %s", reviewID, item.Status)
	}

	item.Status = statusFor(action)
	item.Resolution = resolution
	itemJSON, err := json.Marshal(item)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal review item")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE review_items SET status = $1, item = $2 WHERE id = $3 AND status = $4`,
		string(item.Status), itemJSON, reviewID, string(model.ReviewPending),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: resolve review %s", reviewID)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Errorf("review item not found: %s", reviewID)
	}
	return item, nil
}

