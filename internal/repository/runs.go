package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/menuocr/internal/common"
)

const runsTable = "menu_runs"

// MenuRun is one recorded pipeline run, successful or fatal.
type MenuRun struct {
	ID             uuid.UUID `json:"id"`
	Source         string    `json:"source"`
	FinalText      string    `json:"finalText"`
	OCRConfidence  float64   `json:"ocrConfidence"`
	IsMenu         bool      `json:"isMenu"`
	MenuConfidence float64   `json:"menuConfidence"`
	Reason         string    `json:"reason"`
	VerdictSource  string    `json:"verdictSource"`
	Decision       string    `json:"decision"`
	Fallback       bool      `json:"fallback"`
	OCRSpaceMs     int64     `json:"ocrSpaceMs"`
	MaverickMs     int64     `json:"maverickMs"`
	ComparisonMs   int64     `json:"comparisonMs"`
	TotalMs        int64     `json:"totalMs"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

var runColumns = []string{
	"id", "source", "final_text", "ocr_confidence", "is_menu", "menu_confidence",
	"reason", "verdict_source", "decision", "fallback", "ocr_space_ms", "maverick_ms",
	"comparison_ms", "total_ms", "error", "created_at",
}

var ddl = map[string][]string{
	dialect.Postgres: {
		`CREATE TABLE IF NOT EXISTS menu_runs (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL DEFAULT '',
			final_text TEXT NOT NULL DEFAULT '',
			ocr_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			is_menu BOOLEAN NOT NULL DEFAULT FALSE,
			menu_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT '',
			verdict_source TEXT NOT NULL DEFAULT '',
			decision TEXT NOT NULL,
			fallback BOOLEAN NOT NULL DEFAULT FALSE,
			ocr_space_ms BIGINT NOT NULL DEFAULT 0,
			maverick_ms BIGINT NOT NULL DEFAULT 0,
			comparison_ms BIGINT NOT NULL DEFAULT 0,
			total_ms BIGINT NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS menu_runs_created_at_idx ON menu_runs (created_at DESC)`,
	},
	dialect.SQLite: {
		`CREATE TABLE IF NOT EXISTS menu_runs (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL DEFAULT '',
			final_text TEXT NOT NULL DEFAULT '',
			ocr_confidence REAL NOT NULL DEFAULT 0,
			is_menu BOOLEAN NOT NULL DEFAULT 0,
			menu_confidence REAL NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT '',
			verdict_source TEXT NOT NULL DEFAULT '',
			decision TEXT NOT NULL,
			fallback BOOLEAN NOT NULL DEFAULT 0,
			ocr_space_ms INTEGER NOT NULL DEFAULT 0,
			maverick_ms INTEGER NOT NULL DEFAULT 0,
			comparison_ms INTEGER NOT NULL DEFAULT 0,
			total_ms INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS menu_runs_created_at_idx ON menu_runs (created_at DESC)`,
	},
}

// Migrate creates the runs table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	stmts, ok := ddl[s.dialect]
	if !ok {
		return fmt.Errorf("no schema for dialect %q", s.dialect)
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.logger.Error("failed to migrate", "table", runsTable, "error", err)
			return errors.Join(common.ErrDatabase, err)
		}
	}
	s.logger.Info("schema ready", "table", runsTable)
	return nil
}

// InsertRun stores one run. A zero ID or CreatedAt is filled in.
func (s *Store) InsertRun(ctx context.Context, run MenuRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	query, args := entsql.Dialect(s.dialect).
		Insert(runsTable).
		Columns(runColumns...).
		Values(
			run.ID.String(), run.Source, run.FinalText, run.OCRConfidence, run.IsMenu, run.MenuConfidence,
			run.Reason, run.VerdictSource, run.Decision, run.Fallback, run.OCRSpaceMs, run.MaverickMs,
			run.ComparisonMs, run.TotalMs, run.Error, run.CreatedAt.UTC(),
		).
		Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.Error("failed to insert run", "run_id", run.ID, "error", err)
		return errors.Join(common.ErrDatabase, err)
	}
	return nil
}

// GetRun loads one run; a missing row reports common.ErrNotFound.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*MenuRun, error) {
	query, args := entsql.Dialect(s.dialect).
		Select(runColumns...).
		From(entsql.Table(runsTable)).
		Where(entsql.EQ("id", id.String())).
		Query()
	row := s.db.QueryRowContext(ctx, query, args...)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		s.logger.Error("failed to get run", "run_id", id, "error", err)
		return nil, errors.Join(common.ErrDatabase, err)
	}
	return run, nil
}

// ListRuns returns the newest runs first. limit <= 0 means 50.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]MenuRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query, args := entsql.Dialect(s.dialect).
		Select(runColumns...).
		From(entsql.Table(runsTable)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
		Limit(limit).
		Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		return nil, errors.Join(common.ErrDatabase, err)
	}
	defer func() { _ = rows.Close() }()

	var out []MenuRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.Join(common.ErrDatabase, err)
		}
		out = append(out, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(common.ErrDatabase, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*MenuRun, error) {
	var (
		run MenuRun
		id  string
	)
	err := sc.Scan(
		&id, &run.Source, &run.FinalText, &run.OCRConfidence, &run.IsMenu, &run.MenuConfidence,
		&run.Reason, &run.VerdictSource, &run.Decision, &run.Fallback, &run.OCRSpaceMs, &run.MaverickMs,
		&run.ComparisonMs, &run.TotalMs, &run.Error, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("run id %q: %w", id, err)
	}
	run.ID = parsed
	return &run, nil
}
