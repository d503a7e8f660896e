package db

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type HarvestRun struct {
	ID         string
	StartedAt  int64
	FinishedAt sql.NullInt64
	Status     string
	Stage      string
	Error      string
	RowCount   int64
	MinDate    string
	MaxDate    string
}

type HarvestYear struct {
	RunID    string
	Year     int64
	RowCount int64
}

const createRun = `insert into harvest_run(id, started_at, status) values (?, ?, ?)`

type CreateRunParams struct {
	ID        string
	StartedAt int64
	Status    string
}

func (q *Queries) CreateRun(ctx context.Context, arg CreateRunParams) error {
	_, err := q.db.ExecContext(ctx, createRun, arg.ID, arg.StartedAt, arg.Status)
	return err
}

const finishRun = `update harvest_run
set finished_at = ?, status = ?, stage = ?, error = ?, row_count = ?, min_date = ?, max_date = ?
where id = ?`

type FinishRunParams struct {
	FinishedAt int64
	Status     string
	Stage      string
	Error      string
	RowCount   int64
	MinDate    string
	MaxDate    string
	ID         string
}

func (q *Queries) FinishRun(ctx context.Context, arg FinishRunParams) (int64, error) {
	res, err := q.db.ExecContext(
		ctx, finishRun,
		arg.FinishedAt, arg.Status, arg.Stage, arg.Error,
		arg.RowCount, arg.MinDate, arg.MaxDate,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const upsertRunYear = `insert into harvest_year(run_id, year, row_count) values (?, ?, ?)
on conflict (run_id, year) do update set row_count = excluded.row_count`

type UpsertRunYearParams struct {
	RunID    string
	Year     int64
	RowCount int64
}

func (q *Queries) UpsertRunYear(ctx context.Context, arg UpsertRunYearParams) error {
	_, err := q.db.ExecContext(ctx, upsertRunYear, arg.RunID, arg.Year, arg.RowCount)
	return err
}

const runColumns = `id, started_at, finished_at, status, stage, error, row_count, min_date, max_date`

func scanRun(row interface{ Scan(...any) error }) (HarvestRun, error) {
	var r HarvestRun
	err := row.Scan(
		&r.ID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Stage,
		&r.Error, &r.RowCount, &r.MinDate, &r.MaxDate,
	)
	return r, err
}

const getRun = `select ` + runColumns + ` from harvest_run where id = ?`

func (q *Queries) GetRun(ctx context.Context, id string) (HarvestRun, error) {
	return scanRun(q.db.QueryRowContext(ctx, getRun, id))
}

const listRuns = `select ` + runColumns + ` from harvest_run
order by started_at desc, id desc
limit ?`

func (q *Queries) ListRuns(ctx context.Context, limit int64) ([]HarvestRun, error) {
	rows, err := q.db.QueryContext(ctx, listRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []HarvestRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const getRunYears = `select run_id, year, row_count from harvest_year
where run_id = ?
order by year asc`

func (q *Queries) GetRunYears(ctx context.Context, runID string) ([]HarvestYear, error) {
	rows, err := q.db.QueryContext(ctx, getRunYears, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []HarvestYear
	for rows.Next() {
		var y HarvestYear
		err := rows.Scan(&y.RunID, &y.Year, &y.RowCount)
		if err != nil {
			return nil, err
		}
		items = append(items, y)
	}
	return items, rows.Err()
}
