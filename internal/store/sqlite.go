package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/harmonize-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	log          TEXT NOT NULL,
	started_at   DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS schema_maps (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	source_ref TEXT NOT NULL,
	columns    TEXT NOT NULL,
	map        TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (run_id, source_ref)
);

CREATE TABLE IF NOT EXISTS review_items (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	source_ref TEXT,
	status     TEXT NOT NULL DEFAULT 'pending',
	item       TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS harmonized_rows (
	record_id              TEXT PRIMARY KEY,
	run_id                 TEXT NOT NULL REFERENCES runs(id),
	date                   TEXT NOT NULL,
	partner_name           TEXT NOT NULL,
	package_partner_name   TEXT,
	placement_partner_name TEXT,
	metric_name            TEXT NOT NULL,
	metric_value           REAL,
	currency               TEXT,
	source_system          TEXT NOT NULL,
	source_location        TEXT NOT NULL,
	ingested_at            DATETIME NOT NULL,
	excluded               INTEGER NOT NULL DEFAULT 0,
	exclusion_reason       TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_harmonized_rows_run ON harmonized_rows(run_id);
CREATE INDEX IF NOT EXISTS idx_harmonized_rows_partner ON harmonized_rows(partner_name, date);
CREATE INDEX IF NOT EXISTS idx_schema_maps_source ON schema_maps(source_ref, created_at);
CREATE INDEX IF NOT EXISTS idx_review_items_run ON review_items(run_id);
CREATE INDEX IF NOT EXISTS idx_review_items_status ON review_items(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.RunLog) error {
	logJSON, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run log")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, log, started_at) VALUES (?, ?, ?, ?)`,
		run.RunID, string(run.Status), string(logJSON), run.StartedAt,
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.RunID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, run *model.RunLog) error {
	logJSON, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run log")
	}
	var completed any
	if run.CompletedAt != nil {
		completed = *run.CompletedAt
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, log = ?, completed_at = ? WHERE id = ?`,
		string(run.Status), string(logJSON), completed, run.RunID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", run.RunID)
	}
	return checkRowsAffected(res, "run", run.RunID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.RunLog, error) {
	var logJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT log FROM runs WHERE id = ?`, runID,
	).Scan(&logJSON)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	var run model.RunLog
	if err := json.Unmarshal([]byte(logJSON), &run); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal run log")
	}
	return &run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunLog, error) {
	query := `SELECT log FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.RunLog
	for rows.Next() {
		var logJSON string
		if err := rows.Scan(&logJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		var run model.RunLog
		if err := json.Unmarshal([]byte(logJSON), &run); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run log")
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveSchemaMap(ctx context.Context, sm *model.SchemaMap) error {
	mapJSON, err := json.Marshal(sm)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal schema map")
	}
	colsJSON, err := json.Marshal(sm.SourceColumns)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal columns")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schema_maps (run_id, source_ref, columns, map, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, source_ref) DO UPDATE SET columns = excluded.columns, map = excluded.map`,
		sm.RunID, sm.SourceRef, string(colsJSON), string(mapJSON), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save schema map %s/%s", sm.RunID, sm.SourceRef)
}

func (s *SQLiteStore) LastColumnSet(ctx context.Context, sourceRef string) ([]string, error) {
	var colsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT columns FROM schema_maps WHERE source_ref = ? ORDER BY created_at DESC LIMIT 1`,
		sourceRef,
	).Scan(&colsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: last column set %s", sourceRef)
	}
	var cols []string
	if err := json.Unmarshal([]byte(colsJSON), &cols); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal columns")
	}
	return cols, nil
}

func (s *SQLiteStore) SaveRows(ctx context.Context, runID string, rows []model.HarmonizedRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO harmonized_rows
		 (record_id, run_id, date, partner_name, package_partner_name, placement_partner_name,
		  metric_name, metric_value, currency, source_system, source_location, ingested_at,
		  excluded, exclusion_reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare row insert")
	}
	defer stmt.Close()

	var n int64
	for _, row := range rows {
		var value any
		if row.MetricValue != nil {
			value = *row.MetricValue
		}
		res, err := stmt.ExecContext(ctx,
			row.SourceRecordID, runID, row.Date, row.PartnerName,
			row.PackagePartnerName, row.PlacementPartnerName,
			row.MetricName, value, row.Currency,
			row.SourceSystem, row.SourceLocation, row.IngestedAt,
			row.Excluded, row.ExclusionReason,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert row %s", row.SourceRecordID)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit rows")
	}
	return n, nil
}

func (s *SQLiteStore) SaveReviewItems(ctx context.Context, items []model.ReviewItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	for _, item := range items {
		itemJSON, err := json.Marshal(item)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal review item")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO review_items (id, run_id, source_ref, status, item, created_at, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.ReviewID, item.RunID, item.SourceRef, string(item.Status),
			string(itemJSON), item.CreatedAt, item.ExpiresAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert review item %s", item.ReviewID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit review items")
}

func (s *SQLiteStore) ListReviewItems(ctx context.Context, filter ReviewFilter) ([]model.ReviewItem, error) {
	query := `SELECT item FROM review_items WHERE 1=1`
	var args []any

	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list review items")
	}
	defer rows.Close()

	var items []model.ReviewItem
	for rows.Next() {
		var itemJSON string
		if err := rows.Scan(&itemJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan review item")
		}
		var item model.ReviewItem
		if err := json.Unmarshal([]byte(itemJSON), &item); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal review item")
		}
		items = append(items, item)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: list review items iterate")
}

func (s *SQLiteStore) GetReviewItem(ctx context.Context, reviewID string) (*model.ReviewItem, error) {
	var itemJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT item FROM review_items WHERE id = ?`, reviewID,
	).Scan(&itemJSON)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("review item not found: %s", reviewID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get review item %s", reviewID)
	}
	var item model.ReviewItem
	if err := json.Unmarshal([]byte(itemJSON), &item); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal review item")
	}
	return &item, nil
}

func (s *SQLiteStore) ResolveReview(ctx context.Context, reviewID string, action model.ReviewAction, resolution string) (*model.ReviewItem, error) {
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
		return nil, eris.Wrap(err, "sqlite: marshal review item")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE review_items SET status = ?, item = ? WHERE id = ? AND status = ?`,
		string(item.Status), string(itemJSON), reviewID, string(model.ReviewPending),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: resolve review %s", reviewID)
	}
	if err := checkRowsAffected(res, "review item", reviewID); err != nil {
		return nil, err
	}
	return item, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
