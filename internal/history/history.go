package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mmp-pipeline/internal/history/db"
	"mmp-pipeline/internal/mmp"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("internal/history")

var ErrUnknownRun = errors.New("unknown run")

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one recorded harvest.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     Status
	Stage      string
	Error      string
	Rows       int
	MinDate    string
	MaxDate    string
}

// Outcome is what a harvest ended with. Dates are left empty when the run
// failed before the date range was known.
type Outcome struct {
	FinishedAt time.Time
	Stage      string
	Err        error
	Rows       int
	MinDate    string
	MaxDate    string
}

type Store struct {
	db  *sql.DB
	qry *db.Queries
}

func NewStore(database *sql.DB) Store {
	return Store{
		db:  database,
		qry: db.New(database),
	}
}

// Begin records a new running harvest and returns its id.
func (s Store) Begin(ctx context.Context, startedAt time.Time) (string, error) {
	ctx, span := tracer.Start(ctx, "history:Begin")
	defer span.End()

	id := uuid.NewString()
	span.SetAttributes(attribute.String("run_id", id))

	err := s.qry.CreateRun(ctx, db.CreateRunParams{
		ID:        id,
		StartedAt: startedAt.Unix(),
		Status:    string(StatusRunning),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return id, nil
}

// RecordYears stores the per-year row counts of a run, replacing counts
// recorded earlier for the same years.
func (s Store) RecordYears(ctx context.Context, runID string, counts []mmp.YearCount) error {
	ctx, span := tracer.Start(ctx, "history:RecordYears")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	for _, c := range counts {
		err = txqry.UpsertRunYear(ctx, db.UpsertRunYearParams{
			RunID:    runID,
			Year:     int64(c.Year),
			RowCount: int64(c.Rows),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("record year %d: %w", c.Year, err)
		}
	}
	return tx.Commit()
}

// Finish marks a run as succeeded, or failed when the outcome carries an error.
func (s Store) Finish(ctx context.Context, runID string, outcome Outcome) error {
	ctx, span := tracer.Start(ctx, "history:Finish")
	defer span.End()

	status := StatusSucceeded
	message := ""
	if outcome.Err != nil {
		status = StatusFailed
		message = outcome.Err.Error()
	}

	affected, err := s.qry.FinishRun(ctx, db.FinishRunParams{
		ID:         runID,
		FinishedAt: outcome.FinishedAt.Unix(),
		Status:     string(status),
		Stage:      outcome.Stage,
		Error:      message,
		RowCount:   int64(outcome.Rows),
		MinDate:    outcome.MinDate,
		MaxDate:    outcome.MaxDate,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if affected == 0 {
		return fmt.Errorf("finish %s: %w", runID, ErrUnknownRun)
	}
	return nil
}

func runFromDB(r db.HarvestRun) Run {
	run := Run{
		ID:        r.ID,
		StartedAt: time.Unix(r.StartedAt, 0).UTC(),
		Status:    Status(r.Status),
		Stage:     r.Stage,
		Error:     r.Error,
		Rows:      int(r.RowCount),
		MinDate:   r.MinDate,
		MaxDate:   r.MaxDate,
	}
	if r.FinishedAt.Valid {
		run.FinishedAt = time.Unix(r.FinishedAt.Int64, 0).UTC()
	}
	return run
}

func (s Store) Get(ctx context.Context, runID string) (Run, error) {
	r, err := s.qry.GetRun(ctx, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get %s: %w", runID, ErrUnknownRun)
	}
	if err != nil {
		return Run{}, err
	}
	return runFromDB(r), nil
}

// List returns the most recent runs first.
func (s Store) List(ctx context.Context, limit int) ([]Run, error) {
	ctx, span := tracer.Start(ctx, "history:List")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.qry.ListRuns(ctx, int64(limit))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	runs := make([]Run, len(rows))
	for i, r := range rows {
		runs[i] = runFromDB(r)
	}
	return runs, nil
}

func (s Store) Years(ctx context.Context, runID string) ([]mmp.YearCount, error) {
	rows, err := s.qry.GetRunYears(ctx, runID)
	if err != nil {
		return nil, err
	}
	counts := make([]mmp.YearCount, len(rows))
	for i, r := range rows {
		counts[i] = mmp.YearCount{Year: int(r.Year), Rows: int(r.RowCount)}
	}
	return counts, nil
}
