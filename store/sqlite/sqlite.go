/*
Package sqlite persists household batches and simulation results in SQLite.

PURPOSE:
  The engine never does I/O: a batch is loaded from the database into an
  in-memory store before evaluation, and reports are written back after.

KEY TABLES:
  entities:     every entity instance, in insertion order
  memberships:  member -> group links with the member's role
  inputs:       input values per entity, variable and period
  runs:         one row per batch run against one system
  results:      one row per request of a run, value or error

CONCURRENCY:
  Uses sync.RWMutex around the connection. Writes that touch several rows
  run in one database transaction.

WAL MODE:
  Opened with WAL so readers do not block the writer.

USAGE:
  db, err := sqlite.New("./data/fisc.db")
  if err != nil {
      return err
  }
  defer db.Close()

  mem, err := db.LoadBatch(ctx)
  report, err := runner.Run(ctx, system, mem, mem, requests)
  err = db.SaveReport(ctx, report)

SEE ALSO:
  - engine/store/memory.go: the in-memory provider LoadBatch fills
  - batch/runner.go:        reports saved by SaveReport
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/fisc-engine/batch"
	"github.com/warp/fisc-engine/engine"
	"github.com/warp/fisc-engine/engine/store"
	"github.com/warp/fisc-engine/periods"
)

// ErrRunNotFound is returned by Run for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// Store persists batches and results.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: every ":memory:" connection is a separate database.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		PRIMARY KEY (kind, id)
	);

	-- A member belongs to at most one group of each kind.
	CREATE TABLE IF NOT EXISTS memberships (
		group_kind TEXT NOT NULL,
		group_id TEXT NOT NULL,
		member_kind TEXT NOT NULL,
		member_id TEXT NOT NULL,
		role TEXT NOT NULL,
		PRIMARY KEY (member_kind, member_id, group_kind)
	);

	CREATE INDEX IF NOT EXISTS idx_memberships_group
		ON memberships(group_kind, group_id);

	CREATE TABLE IF NOT EXISTS inputs (
		entity_kind TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		variable TEXT NOT NULL,
		period TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (entity_kind, entity_id, variable, period)
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		system TEXT NOT NULL,
		started_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		requests INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		formula_calls INTEGER NOT NULL,
		cache_hits INTEGER NOT NULL,
		input_reads INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS results (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		entity_kind TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		variable TEXT NOT NULL,
		period TEXT NOT NULL,
		value TEXT NOT NULL,
		error TEXT,
		chain_json TEXT,
		PRIMARY KEY (run_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_results_variable
		ON results(run_id, variable);
	`

	_, err := s.db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a database transaction under the write lock.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// HOUSEHOLDS
// =============================================================================

// Household is a group entity with its members.
type Household struct {
	Group   engine.EntityRef
	Members []engine.Member
}

// SaveHousehold stores a group and its memberships. Saving the same
// membership again updates the role; moving a member to another group of
// the same kind fails with store.ErrAlreadyMember.
func (s *Store) SaveHousehold(ctx context.Context, h Household) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return saveHousehold(ctx, tx, h)
	})
}

func saveHousehold(ctx context.Context, db execer, h Household) error {
	if err := saveEntity(ctx, db, h.Group); err != nil {
		return err
	}
	for _, m := range h.Members {
		if err := saveEntity(ctx, db, m.Entity); err != nil {
			return err
		}

		var current string
		err := db.QueryRowContext(ctx,
			`SELECT group_id FROM memberships WHERE member_kind = ? AND member_id = ? AND group_kind = ?`,
			m.Entity.Kind, string(m.Entity.ID), h.Group.Kind,
		).Scan(&current)
		switch {
		case err == nil && current != string(h.Group.ID):
			return fmt.Errorf("%s in %s: %w", m.Entity, h.Group, store.ErrAlreadyMember)
		case err != nil && !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to read membership: %w", err)
		}

		_, err = db.ExecContext(ctx, `
			INSERT INTO memberships (group_kind, group_id, member_kind, member_id, role)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (member_kind, member_id, group_kind) DO UPDATE SET role = excluded.role`,
			h.Group.Kind, string(h.Group.ID), m.Entity.Kind, string(m.Entity.ID), m.Role,
		)
		if err != nil {
			return fmt.Errorf("failed to save membership: %w", err)
		}
	}
	return nil
}

func saveEntity(ctx context.Context, db execer, ref engine.EntityRef) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO entities (kind, id) VALUES (?, ?)`,
		ref.Kind, string(ref.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to save entity %s: %w", ref, err)
	}
	return nil
}

// =============================================================================
// INPUTS
// =============================================================================

// SaveInput stores an input value, replacing any value for the same
// entity, variable and period.
func (s *Store) SaveInput(ctx context.Context, entity engine.EntityRef, variable string, p periods.Period, value decimal.Decimal) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return saveInput(ctx, tx, entity, variable, p, value)
	})
}

func saveInput(ctx context.Context, db execer, entity engine.EntityRef, variable string, p periods.Period, value decimal.Decimal) error {
	if err := saveEntity(ctx, db, entity); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO inputs (entity_kind, entity_id, variable, period, value)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (entity_kind, entity_id, variable, period) DO UPDATE SET value = excluded.value`,
		entity.Kind, string(entity.ID), variable, p.String(), value.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save input: %w", err)
	}
	return nil
}

// SaveBatch stores every entity, membership and input of mem at once.
func (s *Store) SaveBatch(ctx context.Context, mem *store.Memory) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, kind := range mem.Kinds() {
			for _, ref := range mem.Entities(kind) {
				if err := saveEntity(ctx, tx, ref); err != nil {
					return err
				}
				if members := mem.Members(ref); len(members) > 0 {
					if err := saveHousehold(ctx, tx, Household{Group: ref, Members: members}); err != nil {
						return err
					}
				}
			}
		}
		return mem.Each(func(r store.Record) error {
			return saveInput(ctx, tx, r.Entity, r.Variable, r.Period, r.Value)
		})
	})
}

// LoadBatch reads everything into a new in-memory store, ready to be
// passed to a simulation.
func (s *Store) LoadBatch(ctx context.Context) (*store.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mem := store.NewMemory()

	rows, err := s.db.QueryContext(ctx, `SELECT kind, id FROM entities ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	for rows.Next() {
		var kind, id string
		if err := rows.Scan(&kind, &id); err != nil {
			rows.Close()
			return nil, err
		}
		mem.AddEntity(engine.Ref(kind, id))
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT group_kind, group_id, member_kind, member_id, role
		FROM memberships ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	for rows.Next() {
		var gk, gid, mk, mid, role string
		if err := rows.Scan(&gk, &gid, &mk, &mid, &role); err != nil {
			rows.Close()
			return nil, err
		}
		if err := mem.AddMember(engine.Ref(gk, gid), engine.Ref(mk, mid), role); err != nil {
			rows.Close()
			return nil, err
		}
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT entity_kind, entity_id, variable, period, value FROM inputs`)
	if err != nil {
		return nil, fmt.Errorf("failed to query inputs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind, id, variable, period, value string
		if err := rows.Scan(&kind, &id, &variable, &period, &value); err != nil {
			return nil, err
		}
		p, err := periods.Parse(period)
		if err != nil {
			return nil, fmt.Errorf("input %s:%s %s: %w", kind, id, variable, err)
		}
		v, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("input %s:%s %s: %w", kind, id, variable, err)
		}
		mem.SetInput(engine.Ref(kind, id), variable, p, v)
	}
	return mem, rows.Err()
}

// =============================================================================
// RESULTS
// =============================================================================

// RunRecord is a stored run summary.
type RunRecord struct {
	ID        string
	System    string
	StartedAt time.Time
	Duration  time.Duration
	Requests  int
	Failed    int
	Stats     engine.Stats
}

// ResultRecord is a stored request outcome. Error is empty on success.
type ResultRecord struct {
	RunID    string
	Entity   engine.EntityRef
	Variable string
	Period   periods.Period
	Value    decimal.Decimal
	Error    string
	Chain    []string
}

// SaveReport stores a run and its results.
func (s *Store) SaveReport(ctx context.Context, report *batch.Report) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (id, system, started_at, duration_ms, requests, failed, formula_calls, cache_hits, input_reads)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			report.RunID,
			report.System,
			report.Started.UTC().Format(time.RFC3339Nano),
			report.Duration.Milliseconds(),
			len(report.Results),
			report.Failed,
			report.Stats.FormulaCalls,
			report.Stats.CacheHits,
			report.Stats.InputReads,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("run %s already saved: %w", report.RunID, err)
			}
			return fmt.Errorf("failed to save run: %w", err)
		}

		for i, r := range report.Results {
			var errText, chainJSON sql.NullString
			if r.Err != nil {
				errText = sql.NullString{String: r.Err.Error(), Valid: true}
				chain := make([]string, len(r.Chain))
				for j, f := range r.Chain {
					chain[j] = f.String()
				}
				b, _ := json.Marshal(chain)
				chainJSON = sql.NullString{String: string(b), Valid: true}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO results (run_id, position, entity_kind, entity_id, variable, period, value, error, chain_json)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				report.RunID, i, r.Entity.Kind, string(r.Entity.ID), r.Variable, r.Period.String(), r.Value.String(),
				errText, chainJSON,
			)
			if err != nil {
				return fmt.Errorf("failed to save result: %w", err)
			}
		}
		return nil
	})
}

// Run returns the summary of a stored run.
func (s *Store) Run(ctx context.Context, runID string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, system, started_at, duration_ms, requests, failed, formula_calls, cache_hits, input_reads
		FROM runs WHERE id = ?`, runID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	return rec, err
}

// Runs lists stored runs, most recent first.
func (s *Store) Runs(ctx context.Context) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, system, started_at, duration_ms, requests, failed, formula_calls, cache_hits, input_reads
		FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *rec)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var rec RunRecord
	var started string
	var durationMS int64
	err := row.Scan(&rec.ID, &rec.System, &started, &durationMS, &rec.Requests, &rec.Failed,
		&rec.Stats.FormulaCalls, &rec.Stats.CacheHits, &rec.Stats.InputReads)
	if err != nil {
		return nil, err
	}
	if rec.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("run %s: started_at: %w", rec.ID, err)
	}
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	return &rec, nil
}

// Results returns the results of a run in request order.
func (s *Store) Results(ctx context.Context, runID string) ([]ResultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_kind, entity_id, variable, period, value, error, chain_json
		FROM results WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []ResultRecord
	for rows.Next() {
		var kind, id, period, value string
		var errText, chainJSON sql.NullString
		rec := ResultRecord{RunID: runID}
		if err := rows.Scan(&kind, &id, &rec.Variable, &period, &value, &errText, &chainJSON); err != nil {
			return nil, err
		}
		rec.Entity = engine.Ref(kind, id)
		if rec.Period, err = periods.Parse(period); err != nil {
			return nil, err
		}
		if rec.Value, err = decimal.NewFromString(value); err != nil {
			return nil, err
		}
		rec.Error = errText.String
		if chainJSON.Valid {
			if err := json.Unmarshal([]byte(chainJSON.String), &rec.Chain); err != nil {
				return nil, fmt.Errorf("result chain: %w", err)
			}
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"results", "runs", "inputs", "memberships", "entities"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
