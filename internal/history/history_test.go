package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"mmp-pipeline/internal/history/db"
	"mmp-pipeline/internal/mmp"
	"mmp-pipeline/lib/testutil"

	"github.com/stretchr/testify/require"
)

func TestStoreLifecycle(t *testing.T) {
	store := NewStore(testutil.SetupDB(t, db.Schema))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	started := time.Date(2024, 7, 29, 6, 0, 0, 0, time.UTC)
	id, err := store.Begin(ctx, started)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	run, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, run.Status)
	require.True(t, run.FinishedAt.IsZero())

	err = store.RecordYears(ctx, id, []mmp.YearCount{
		{Year: 2015, Rows: 0},
		{Year: 2014, Rows: 3},
	})
	require.NoError(t, err)
	err = store.RecordYears(ctx, id, []mmp.YearCount{{Year: 2015, Rows: 7}})
	require.NoError(t, err)

	years, err := store.Years(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []mmp.YearCount{{Year: 2014, Rows: 3}, {Year: 2015, Rows: 7}}, years)

	err = store.Finish(ctx, id, Outcome{
		FinishedAt: started.Add(time.Minute),
		Rows:       10,
		MinDate:    "2014-01-06",
		MaxDate:    "2015-12-30",
	})
	require.NoError(t, err)

	run, err = store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, Run{
		ID:         id,
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Status:     StatusSucceeded,
		Rows:       10,
		MinDate:    "2014-01-06",
		MaxDate:    "2015-12-30",
	}, run)
}

func TestStoreFailedRun(t *testing.T) {
	store := NewStore(testutil.SetupDB(t, db.Schema))
	ctx := context.Background()

	id, err := store.Begin(ctx, time.Unix(100, 0))
	require.NoError(t, err)
	err = store.Finish(ctx, id, Outcome{
		FinishedAt: time.Unix(160, 0),
		Stage:      "fetch",
		Err:        errors.New("GET 2016: unexpected status 500"),
	})
	require.NoError(t, err)

	run, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, run.Status)
	require.Equal(t, "fetch", run.Stage)
	require.Equal(t, "GET 2016: unexpected status 500", run.Error)
}

func TestStoreList(t *testing.T) {
	store := NewStore(testutil.SetupDB(t, db.Schema))
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := store.Begin(ctx, time.Unix(int64(1000+i*60), 0))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	runs, err := store.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	require.Equal(t, ids[4], runs[0].ID)
	require.Equal(t, ids[3], runs[1].ID)
	require.Equal(t, ids[2], runs[2].ID)

	runs, err = store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 5)
}

func TestStoreUnknownRun(t *testing.T) {
	store := NewStore(testutil.SetupDB(t, db.Schema))
	ctx := context.Background()

	err := store.Finish(ctx, "missing", Outcome{FinishedAt: time.Now()})
	require.ErrorIs(t, err, ErrUnknownRun)

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrUnknownRun)

	years, err := store.Years(ctx, "missing")
	require.NoError(t, err)
	require.Empty(t, years)
}
