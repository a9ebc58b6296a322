// Package dbindex implements the Registry's optional durable run-index:
// a small table of run metadata (run_id, mode, status, timestamps,
// failure reason) backed by SQLite or Postgres, selected the same way the
// teacher's persistence layer picks a driver. Agent output itself is never
// persisted here — it stays on disk as the agents' own artifacts; this
// index exists so a restarted orchestratord (or an external dashboard) can
// answer "what ran, and how did it end" without replaying the Event Bus.
package dbindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ait42/orchestrator/internal/db"
	"github.com/ait42/orchestrator/internal/db/dialect"
	"github.com/ait42/orchestrator/internal/model"
)

// Config selects and configures the backing store. An empty Driver means
// the index is disabled; the Registry falls back to the no-op Index.
type Config struct {
	Driver     string // "", "sqlite3", or "pgx"
	SQLitePath string
	PostgresDSN string
}

// Record is one run's persisted metadata row.
type Record struct {
	RunID                string
	Mode                 model.Mode
	Task                 string
	ModelTag             model.ModelTag
	Status               model.RunStatus
	AgentPlan            []model.AgentSpec
	BaseWorkingDirectory string
	CreatedAt            time.Time
	CompletedAt          *time.Time
	Error                string
}

// Index is the Registry's persistence collaborator. Started records a new
// run the moment Start registers it; Finished updates it once the run
// reaches a terminal status. Both are best-effort from the Registry's
// point of view — a write failure is logged, never fatal to the run.
type Index interface {
	Started(ctx context.Context, rec Record) error
	Finished(ctx context.Context, runID string, status model.RunStatus, completedAt time.Time, errMsg string) error
	Get(ctx context.Context, runID string) (*Record, error)
	List(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// NewNoop returns an Index that persists nothing, for deployments that
// never set a database driver.
func NewNoop() Index { return noopIndex{} }

type noopIndex struct{}

func (noopIndex) Started(context.Context, Record) error                                 { return nil }
func (noopIndex) Finished(context.Context, string, model.RunStatus, time.Time, string) error { return nil }
func (noopIndex) Get(context.Context, string) (*Record, error)                          { return nil, sql.ErrNoRows }
func (noopIndex) List(context.Context, int) ([]Record, error)                           { return nil, nil }
func (noopIndex) Close() error                                                           { return nil }

// sqlIndex implements Index over either SQLite or Postgres, selected by
// which *sqlx.DB wraps which driver name — the query text itself only
// branches through internal/db/dialect where the two dialects diverge.
type sqlIndex struct {
	pool   *db.Pool
	driver string
}

// New opens the configured backing store and ensures its schema exists.
// An empty cfg.Driver returns NewNoop().
func New(cfg Config) (Index, error) {
	switch cfg.Driver {
	case "":
		return NewNoop(), nil
	case dialect.SQLite3:
		return newSQLite(cfg.SQLitePath)
	case dialect.PGX:
		return newPostgres(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("dbindex: unrecognized driver %q", cfg.Driver)
	}
}

func newSQLite(path string) (Index, error) {
	writer, err := db.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	reader, err := db.OpenSQLiteReader(path)
	if err != nil {
		_ = writer.Close()
		return nil, err
	}
	idx := &sqlIndex{
		pool:   db.NewPool(sqlx.NewDb(writer, dialect.SQLite3), sqlx.NewDb(reader, dialect.SQLite3)),
		driver: dialect.SQLite3,
	}
	if err := idx.initSchema(); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}

func newPostgres(dsn string) (Index, error) {
	conn, err := db.OpenPostgres(dsn, 0, 0)
	if err != nil {
		return nil, err
	}
	x := sqlx.NewDb(conn, dialect.PGX)
	idx := &sqlIndex{pool: db.NewPool(x, x), driver: dialect.PGX}
	if err := idx.initSchema(); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}

func (i *sqlIndex) initSchema() error {
	idType := "TEXT"
	timestampType := "DATETIME"
	if dialect.IsPostgres(i.driver) {
		timestampType = "TIMESTAMPTZ"
	}
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		mode %s NOT NULL,
		task TEXT NOT NULL,
		model_tag %s NOT NULL,
		status %s NOT NULL,
		agent_plan TEXT NOT NULL DEFAULT '[]',
		base_working_directory TEXT NOT NULL DEFAULT '',
		created_at %s NOT NULL,
		completed_at %s,
		error TEXT NOT NULL DEFAULT ''
	);
	`, idType, idType, idType, timestampType, timestampType)

	_, err := i.pool.Writer().Exec(i.pool.Writer().Rebind(schema))
	if err != nil {
		return fmt.Errorf("dbindex: failed to initialize schema: %w", err)
	}
	return nil
}

func (i *sqlIndex) Started(ctx context.Context, rec Record) error {
	plan, err := json.Marshal(rec.AgentPlan)
	if err != nil {
		return fmt.Errorf("dbindex: failed to marshal agent plan: %w", err)
	}

	query := i.pool.Writer().Rebind(`
		INSERT INTO runs (run_id, mode, task, model_tag, status, agent_plan, base_working_directory, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = i.pool.Writer().ExecContext(ctx, query,
		rec.RunID, string(rec.Mode), rec.Task, string(rec.ModelTag), string(rec.Status),
		string(plan), rec.BaseWorkingDirectory, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("dbindex: failed to record run start: %w", err)
	}
	return nil
}

func (i *sqlIndex) Finished(ctx context.Context, runID string, status model.RunStatus, completedAt time.Time, errMsg string) error {
	query := i.pool.Writer().Rebind(`
		UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE run_id = ?
	`)
	_, err := i.pool.Writer().ExecContext(ctx, query, string(status), completedAt, errMsg, runID)
	if err != nil {
		return fmt.Errorf("dbindex: failed to record run completion: %w", err)
	}
	return nil
}

type runRow struct {
	RunID                string         `db:"run_id"`
	Mode                 string         `db:"mode"`
	Task                 string         `db:"task"`
	ModelTag             string         `db:"model_tag"`
	Status               string         `db:"status"`
	AgentPlan            string         `db:"agent_plan"`
	BaseWorkingDirectory string         `db:"base_working_directory"`
	CreatedAt            time.Time      `db:"created_at"`
	CompletedAt          sql.NullTime   `db:"completed_at"`
	Error                string         `db:"error"`
}

func (r runRow) toRecord() (*Record, error) {
	var plan []model.AgentSpec
	if err := json.Unmarshal([]byte(r.AgentPlan), &plan); err != nil {
		return nil, fmt.Errorf("dbindex: failed to unmarshal agent plan: %w", err)
	}
	rec := &Record{
		RunID:                r.RunID,
		Mode:                 model.Mode(r.Mode),
		Task:                 r.Task,
		ModelTag:             model.ModelTag(r.ModelTag),
		Status:               model.RunStatus(r.Status),
		AgentPlan:            plan,
		BaseWorkingDirectory: r.BaseWorkingDirectory,
		CreatedAt:            r.CreatedAt,
		Error:                r.Error,
	}
	if r.CompletedAt.Valid {
		rec.CompletedAt = &r.CompletedAt.Time
	}
	return rec, nil
}

func (i *sqlIndex) Get(ctx context.Context, runID string) (*Record, error) {
	query := i.pool.Reader().Rebind(`SELECT * FROM runs WHERE run_id = ?`)
	var row runRow
	if err := i.pool.Reader().GetContext(ctx, &row, query, runID); err != nil {
		return nil, err
	}
	return row.toRecord()
}

func (i *sqlIndex) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	query := i.pool.Reader().Rebind(`SELECT * FROM runs ORDER BY created_at DESC LIMIT ?`)
	var rows []runRow
	if err := i.pool.Reader().SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

func (i *sqlIndex) Close() error {
	return i.pool.Close()
}
