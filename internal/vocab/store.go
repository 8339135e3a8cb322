package vocab

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"
)

// Store persists the vocabulary in SQLite. Rows are append-only; the
// current version is the max version across all rows, and reads snapshot
// everything at or below that version. Snapshots are cached by version so
// concurrent runs share one read and appends never block readers.
type Store struct {
	db    *sql.DB
	cache *cache.Cache
}

// Open opens (or creates) the vocabulary database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "vocab: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "vocab: exec %s", pragma)
		}
	}
	return &Store{
		db:    db,
		cache: cache.New(15*time.Minute, 30*time.Minute),
	}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS partners (
	name       TEXT NOT NULL,
	code       TEXT,
	alias      TEXT NOT NULL,
	version    INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS metrics (
	canonical  TEXT NOT NULL,
	alias      TEXT NOT NULL,
	version    INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS partner_rules (
	partner_name    TEXT NOT NULL,
	source_column   TEXT NOT NULL,
	canonical_field TEXT NOT NULL,
	version         INTEGER NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_partners_version ON partners(version);
CREATE INDEX IF NOT EXISTS idx_metrics_version ON metrics(version);
CREATE INDEX IF NOT EXISTS idx_partner_rules_version ON partner_rules(version);
`

// Migrate creates the vocabulary tables.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "vocab: migrate")
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Version returns the current vocabulary version (0 when empty).
func (s *Store) Version(ctx context.Context) (int64, error) {
	var v sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
SELECT MAX(v) FROM (
	SELECT MAX(version) AS v FROM partners
	UNION ALL SELECT MAX(version) FROM metrics
	UNION ALL SELECT MAX(version) FROM partner_rules
)`).Scan(&v)
	if err != nil {
		return 0, eris.Wrap(err, "vocab: read version")
	}
	return v.Int64, nil
}

// Snapshot reads the vocabulary at the current version. Repeated reads of
// the same version come from cache.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	version, err := s.Version(ctx)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("v%d", version)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*Snapshot), nil
	}

	partners, err := s.readPartners(ctx, version)
	if err != nil {
		return nil, err
	}
	metrics, err := s.readMetrics(ctx, version)
	if err != nil {
		return nil, err
	}
	rules, err := s.readRules(ctx, version)
	if err != nil {
		return nil, err
	}

	snap := NewSnapshot(version, partners, metrics, rules)
	s.cache.Set(key, snap, cache.DefaultExpiration)
	return snap, nil
}

func (s *Store) readPartners(ctx context.Context, version int64) ([]Partner, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, COALESCE(code, ''), alias FROM partners WHERE version <= ? ORDER BY name, alias`, version)
	if err != nil {
		return nil, eris.Wrap(err, "vocab: query partners")
	}
	defer rows.Close()

	byName := make(map[string]*Partner)
	var order []string
	for rows.Next() {
		var name, code, alias string
		if err := rows.Scan(&name, &code, &alias); err != nil {
			return nil, eris.Wrap(err, "vocab: scan partner")
		}
		p, ok := byName[name]
		if !ok {
			p = &Partner{Name: name, Code: code}
			byName[name] = p
			order = append(order, name)
		}
		if alias != name {
			p.Aliases = append(p.Aliases, alias)
		}
	}
	out := make([]Partner, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, eris.Wrap(rows.Err(), "vocab: iterate partners")
}

func (s *Store) readMetrics(ctx context.Context, version int64) ([]Metric, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT canonical, alias FROM metrics WHERE version <= ? ORDER BY canonical, alias`, version)
	if err != nil {
		return nil, eris.Wrap(err, "vocab: query metrics")
	}
	defer rows.Close()

	byName := make(map[string]*Metric)
	var order []string
	for rows.Next() {
		var canonical, alias string
		if err := rows.Scan(&canonical, &alias); err != nil {
			return nil, eris.Wrap(err, "vocab: scan metric")
		}
		m, ok := byName[canonical]
		if !ok {
			m = &Metric{Canonical: canonical}
			byName[canonical] = m
			order = append(order, canonical)
		}
		if alias != canonical {
			m.Aliases = append(m.Aliases, alias)
		}
	}
	out := make([]Metric, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, eris.Wrap(rows.Err(), "vocab: iterate metrics")
}

func (s *Store) readRules(ctx context.Context, version int64) ([]PartnerRule, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT partner_name, source_column, canonical_field
FROM partner_rules WHERE version <= ?
ORDER BY partner_name, source_column`, version)
	if err != nil {
		return nil, eris.Wrap(err, "vocab: query partner rules")
	}
	defer rows.Close()

	var out []PartnerRule
	for rows.Next() {
		var r PartnerRule
		if err := rows.Scan(&r.PartnerName, &r.SourceColumn, &r.CanonicalField); err != nil {
			return nil, eris.Wrap(err, "vocab: scan partner rule")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "vocab: iterate partner rules")
}

// AppendRule records a correction from the feedback path as a new rule at
// the next version. Last writer wins per (partner, column) since snapshots
// index later rows over earlier ones.
func (s *Store) AppendRule(ctx context.Context, rule PartnerRule) (int64, error) {
	version, err := s.Version(ctx)
	if err != nil {
		return 0, err
	}
	next := version + 1
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO partner_rules (partner_name, source_column, canonical_field, version) VALUES (?, ?, ?, ?)`,
		rule.PartnerName, rule.SourceColumn, rule.CanonicalField, next)
	if err != nil {
		return 0, eris.Wrap(err, "vocab: append rule")
	}
	return next, nil
}

// AppendPartner records a newly confirmed partner (with aliases) at the
// next version.
func (s *Store) AppendPartner(ctx context.Context, p Partner) (int64, error) {
	version, err := s.Version(ctx)
	if err != nil {
		return 0, err
	}
	next := version + 1
	aliases := append([]string{p.Name}, p.Aliases...)
	for _, alias := range aliases {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO partners (name, code, alias, version) VALUES (?, ?, ?, ?)`,
			p.Name, p.Code, alias, next); err != nil {
			return 0, eris.Wrap(err, "vocab: append partner")
		}
	}
	return next, nil
}

// seedFile is the YAML shape of a vocabulary seed document.
type seedFile struct {
	Partners []Partner     `yaml:"partners"`
	Metrics  []Metric      `yaml:"metrics"`
	Rules    []PartnerRule `yaml:"partner_rules"`
}

// Seed loads a YAML vocabulary file as version 1. Intended for bootstrap;
// it is a no-op when the store already has data.
func (s *Store) Seed(ctx context.Context, path string) error {
	version, err := s.Version(ctx)
	if err != nil {
		return err
	}
	if version > 0 {
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "vocab: read seed %s", path)
	}
	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return eris.Wrapf(err, "vocab: parse seed %s", path)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "vocab: begin seed tx")
	}
	defer tx.Rollback()

	for _, p := range seed.Partners {
		for _, alias := range append([]string{p.Name}, p.Aliases...) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO partners (name, code, alias, version) VALUES (?, ?, ?, 1)`,
				p.Name, p.Code, alias); err != nil {
				return eris.Wrap(err, "vocab: seed partner")
			}
		}
	}
	for _, m := range seed.Metrics {
		for _, alias := range append([]string{m.Canonical}, m.Aliases...) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO metrics (canonical, alias, version) VALUES (?, ?, 1)`,
				m.Canonical, alias); err != nil {
				return eris.Wrap(err, "vocab: seed metric")
			}
		}
	}
	for _, r := range seed.Rules {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO partner_rules (partner_name, source_column, canonical_field, version) VALUES (?, ?, ?, 1)`,
			r.PartnerName, r.SourceColumn, r.CanonicalField); err != nil {
			return eris.Wrap(err, "vocab: seed partner rule")
		}
	}

	return eris.Wrap(tx.Commit(), "vocab: commit seed")
}
