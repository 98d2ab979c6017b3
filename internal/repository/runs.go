package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/statement-agent/internal/common"
	"github.com/joseph-ayodele/statement-agent/internal/entity"
)

// RunRepository persists the refinement audit trail.
type RunRepository interface {
	StartRun(ctx context.Context, run *entity.Run) error
	RecordIteration(ctx context.Context, it *entity.Iteration) error
	FinishRun(ctx context.Context, runID uuid.UUID, state string, errMsg *string) error
	GetRun(ctx context.Context, runID uuid.UUID) (*entity.Run, error)
	ListIterations(ctx context.Context, runID uuid.UUID) ([]*entity.Iteration, error)
	LatestRun(ctx context.Context, source string) (*entity.Run, error)
}

type runRepository struct {
	db  *DB
	log *slog.Logger
}

func NewRunRepository(db *DB, log *slog.Logger) RunRepository {
	if log == nil {
		log = slog.Default()
	}
	return &runRepository{db: db, log: log}
}

const tsLayout = time.RFC3339Nano

func ts(t time.Time) string { return t.UTC().Format(tsLayout) }

func parseTS(s string) (time.Time, error) { return time.Parse(tsLayout, s) }

func (r *runRepository) q(query string) string { return r.db.X.Rebind(query) }

type runRow struct {
	ID            string         `db:"id"`
	Source        string         `db:"source"`
	DocumentPath  string         `db:"document_path"`
	DocumentHash  string         `db:"document_hash"`
	MaxIterations int            `db:"max_iterations"`
	State         string         `db:"state"`
	ErrorMessage  sql.NullString `db:"error_message"`
	StartedAt     string         `db:"started_at"`
	FinishedAt    sql.NullString `db:"finished_at"`
}

type iterationRow struct {
	RunID       string         `db:"run_id"`
	Attempt     int            `db:"attempt"`
	ExtractorID string         `db:"extractor_id"`
	Program     sql.NullString `db:"program_json"`
	Passed      bool           `db:"passed"`
	Mismatches  int            `db:"mismatches"`
	Diff        string         `db:"diff"`
	StartedAt   string         `db:"started_at"`
	FinishedAt  string         `db:"finished_at"`
}

func (r *runRepository) StartRun(ctx context.Context, run *entity.Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	row := runRow{
		ID:            run.ID.String(),
		Source:        run.Source,
		DocumentPath:  run.DocumentPath,
		DocumentHash:  run.DocumentHash,
		MaxIterations: run.MaxIterations,
		State:         run.State,
		StartedAt:     ts(run.StartedAt),
	}
	_, err := r.db.X.NamedExecContext(ctx, `INSERT INTO runs
		(id, source, document_path, document_hash, max_iterations, state, started_at)
		VALUES (:id, :source, :document_path, :document_hash, :max_iterations, :state, :started_at)`, row)
	if err != nil {
		r.log.Error("repository.run.start_failed", "run_id", run.ID, "error", err)
		return fmt.Errorf("%w: insert run: %v", common.ErrDatabase, err)
	}
	r.log.Debug("repository.run.started", "run_id", run.ID, "source", run.Source)
	return nil
}

func (r *runRepository) RecordIteration(ctx context.Context, it *entity.Iteration) error {
	row := iterationRow{
		RunID:       it.RunID.String(),
		Attempt:     it.Attempt,
		ExtractorID: it.ExtractorID,
		Program:     sql.NullString{String: string(it.Program), Valid: len(it.Program) > 0},
		Passed:      it.Passed,
		Mismatches:  it.Mismatches,
		Diff:        it.Diff,
		StartedAt:   ts(it.StartedAt),
		FinishedAt:  ts(it.FinishedAt),
	}
	// passed is stored as an integer on both drivers
	passed := 0
	if row.Passed {
		passed = 1
	}
	_, err := r.db.X.ExecContext(ctx, r.q(`INSERT INTO iterations
		(run_id, attempt, extractor_id, program_json, passed, mismatches, diff, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		row.RunID, row.Attempt, row.ExtractorID, row.Program, passed, row.Mismatches, row.Diff, row.StartedAt, row.FinishedAt,
	)
	if err != nil {
		r.log.Error("repository.iteration.insert_failed", "run_id", it.RunID, "attempt", it.Attempt, "error", err)
		return fmt.Errorf("%w: insert iteration: %v", common.ErrDatabase, err)
	}
	return nil
}

func (r *runRepository) FinishRun(ctx context.Context, runID uuid.UUID, state string, errMsg *string) error {
	res, err := r.db.X.ExecContext(ctx, r.q(`UPDATE runs SET state = ?, error_message = ?, finished_at = ? WHERE id = ?`),
		state, errMsg, ts(time.Now()), runID.String(),
	)
	if err != nil {
		r.log.Error("repository.run.finish_failed", "run_id", runID, "error", err)
		return fmt.Errorf("%w: finish run: %v", common.ErrDatabase, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", runID, common.ErrNotFound)
	}
	r.log.Debug("repository.run.finished", "run_id", runID, "state", state)
	return nil
}

const runColumns = `id, source, document_path, document_hash, max_iterations, state, error_message, started_at, finished_at`

func (r *runRepository) GetRun(ctx context.Context, runID uuid.UUID) (*entity.Run, error) {
	return r.getRun(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID.String())
}

func (r *runRepository) LatestRun(ctx context.Context, source string) (*entity.Run, error) {
	return r.getRun(ctx, `SELECT `+runColumns+` FROM runs
		WHERE source = ? ORDER BY started_at DESC, id DESC LIMIT 1`, source)
}

func (r *runRepository) getRun(ctx context.Context, query string, arg any) (*entity.Run, error) {
	var row runRow
	err := r.db.X.GetContext(ctx, &row, r.q(query), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get run: %v", common.ErrDatabase, err)
	}
	return row.entity()
}

func (row runRow) entity() (*entity.Run, error) {
	run := &entity.Run{
		Source:        row.Source,
		DocumentPath:  row.DocumentPath,
		DocumentHash:  row.DocumentHash,
		MaxIterations: row.MaxIterations,
		State:         row.State,
	}
	var err error
	if run.ID, err = uuid.Parse(row.ID); err != nil {
		return nil, fmt.Errorf("%w: run id %q: %v", common.ErrDatabase, row.ID, err)
	}
	if run.StartedAt, err = parseTS(row.StartedAt); err != nil {
		return nil, fmt.Errorf("%w: started_at: %v", common.ErrDatabase, err)
	}
	if row.ErrorMessage.Valid {
		msg := row.ErrorMessage.String
		run.ErrorMessage = &msg
	}
	if row.FinishedAt.Valid {
		t, err := parseTS(row.FinishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("%w: finished_at: %v", common.ErrDatabase, err)
		}
		run.FinishedAt = &t
	}
	return run, nil
}

func (r *runRepository) ListIterations(ctx context.Context, runID uuid.UUID) ([]*entity.Iteration, error) {
	var rows []iterationRow
	err := r.db.X.SelectContext(ctx, &rows, r.q(`SELECT run_id, attempt, extractor_id, program_json, passed, mismatches, diff, started_at, finished_at
		FROM iterations WHERE run_id = ? ORDER BY attempt`), runID.String())
	if err != nil {
		return nil, fmt.Errorf("%w: list iterations: %v", common.ErrDatabase, err)
	}
	out := make([]*entity.Iteration, 0, len(rows))
	for _, row := range rows {
		it := &entity.Iteration{
			RunID:       runID,
			Attempt:     row.Attempt,
			ExtractorID: row.ExtractorID,
			Passed:      row.Passed,
			Mismatches:  row.Mismatches,
			Diff:        row.Diff,
		}
		if row.Program.Valid {
			it.Program = []byte(row.Program.String)
		}
		if it.StartedAt, err = parseTS(row.StartedAt); err != nil {
			return nil, fmt.Errorf("%w: started_at: %v", common.ErrDatabase, err)
		}
		if it.FinishedAt, err = parseTS(row.FinishedAt); err != nil {
			return nil, fmt.Errorf("%w: finished_at: %v", common.ErrDatabase, err)
		}
		out = append(out, it)
	}
	return out, nil
}
