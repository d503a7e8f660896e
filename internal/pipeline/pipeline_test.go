package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mmp-pipeline/internal/catalog"
	"mmp-pipeline/internal/dataset"
	"mmp-pipeline/internal/history"
	historydb "mmp-pipeline/internal/history/db"
	"mmp-pipeline/internal/mmp"
	"mmp-pipeline/lib/chrono"
	"mmp-pipeline/lib/testutil"

	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://example.org/api/incidents"

type fakeRetriever map[int]string

func (f fakeRetriever) DownloadJSON(_ context.Context, url string) ([]byte, error) {
	for year, payload := range f {
		if url != fmt.Sprintf("%s/%d/json", testBaseURL, year) {
			continue
		}
		if payload == "fail" {
			return nil, errors.New("unexpected status 500")
		}
		return []byte(payload), nil
	}
	return nil, nil
}

type fakePublisher struct {
	datasets []*dataset.Dataset
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, ds *dataset.Dataset) (catalog.Published, error) {
	if f.err != nil {
		return catalog.Published{}, f.err
	}
	f.datasets = append(f.datasets, ds)
	return catalog.Published{PackageID: "pkg", Created: true}, nil
}

var testClock = chrono.Fixed{T: time.Date(2024, time.July, 30, 6, 0, 0, 0, time.UTC)}

const (
	payload2014 = `[
		{"web_id": "2014.MMP01037", "region": "North America", "reported_date": "2014-12-31", "number_dead": 1},
		{"web_id": "2014.MMP00001", "region": "Europe", "reported_date": "2014-01-06", "number_dead": null}
	]`
	payload2016 = `[
		{"region": "Africa", "web_id": "2016.MMP00002", "reported_date": "2016-03-04", "extra": "x"}
	]`
)

func testConfig(t *testing.T) Config {
	return Config{
		BaseURL: testBaseURL,
		Years:   mmp.YearsConfig{Policy: mmp.PolicyFixed, List: []int{2014, 2015, 2016}},
		Tags:    []string{"migration", "refugees"},
		OutDir:  t.TempDir(),
	}
}

func TestRun(t *testing.T) {
	cfg := testConfig(t)
	tel := &testutil.Recorder{}
	p, err := New(cfg, Deps{
		Retriever: fakeRetriever{2014: payload2014, 2016: payload2016},
		Clock:     testClock,
		Tel:       tel,
	})
	require.NoError(t, err)

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, result.Rows)
	require.Nil(t, result.Published)
	require.Equal(t, []mmp.YearCount{
		{Year: 2014, Rows: 2},
		{Year: 2015, Rows: 0},
		{Year: 2016, Rows: 1},
	}, result.Years)
	require.Equal(t, "[2014-01-06T00:00:00 TO 2016-03-04T23:59:59]", result.Dates.String())

	fields := result.Dataset.Fields()
	require.Equal(t, "missing-migrants-project-data", fields["name"])
	require.Equal(t, DefaultTitle, fields["title"])
	require.Equal(t, []dataset.Group{{Name: "world"}}, fields["groups"])
	require.Equal(t, []dataset.Tag{
		{Name: "migration", VocabularyID: DefaultTagVocabularyID},
		{Name: "refugees", VocabularyID: DefaultTagVocabularyID},
	}, fields["tags"])

	require.Equal(t, filepath.Join(cfg.OutDir, DefaultFilename), result.Resource.Path)
	require.Equal(t, DefaultResourceDescription, result.Resource.Description)
	contents, err := os.ReadFile(result.Resource.Path)
	require.NoError(t, err)
	require.Equal(t,
		"web_id,region,reported_date,number_dead\n"+
			"2014.MMP01037,North America,2014-12-31,1\n"+
			"2014.MMP00001,Europe,2014-01-06,\n"+
			"2016.MMP00002,Africa,2016-03-04,\n",
		string(contents),
	)

	require.Len(t, tel.Events(testutil.KindInfo, report_pipeline_finished), 1)
}

func TestRunPublishes(t *testing.T) {
	cfg := testConfig(t)
	cfg.HXLTags = map[string]string{"web_id": "#web+id", "reported_date": "#date+reported"}
	publisher := &fakePublisher{}

	p, err := New(cfg, Deps{
		Retriever: fakeRetriever{2016: payload2016},
		Clock:     testClock,
		Tel:       &testutil.Recorder{},
		Publisher: publisher,
	})
	require.NoError(t, err)

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, &catalog.Published{PackageID: "pkg", Created: true}, result.Published)
	require.Len(t, publisher.datasets, 1)
	require.Len(t, publisher.datasets[0].Resources(), 1)

	contents, err := os.ReadFile(result.Resource.Path)
	require.NoError(t, err)
	require.Equal(t,
		"region,web_id,reported_date,extra\n"+
			",#web+id,#date+reported,\n"+
			"Africa,2016.MMP00002,2016-03-04,x\n",
		string(contents),
	)
}

func TestRunTemporaryOutput(t *testing.T) {
	cfg := testConfig(t)
	cfg.OutDir = ""

	p, err := New(cfg, Deps{
		Retriever: fakeRetriever{2014: payload2014},
		Clock:     testClock,
		Tel:       &testutil.Recorder{},
	})
	require.NoError(t, err)

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, result.Resource.Path)
	_, err = os.Stat(result.Resource.Path)
	require.True(t, os.IsNotExist(err))
}

func TestRunStageErrors(t *testing.T) {
	testCases := []struct {
		name      string
		retriever fakeRetriever
		configure func(cfg *Config)
		publisher *fakePublisher
		stage     string
		target    error
	}{
		{
			name:      "fetch failure aborts the harvest",
			retriever: fakeRetriever{2014: payload2014, 2015: "fail", 2016: payload2016},
			publisher: &fakePublisher{},
			stage:     StageFetch,
		},
		{
			name:      "malformed payload",
			retriever: fakeRetriever{2014: `{"web_id": "x"}`},
			publisher: &fakePublisher{},
			stage:     StageFetch,
		},
		{
			name:      "no rows in any year",
			retriever: fakeRetriever{2014: `[]`, 2016: `null`},
			publisher: &fakePublisher{},
			stage:     StageResource,
			target:    dataset.ErrNoRows,
		},
		{
			name:      "no parseable dates",
			retriever: fakeRetriever{2014: `[{"web_id": "a", "reported_date": "31/12/2014"}, {"web_id": "b"}]`},
			publisher: &fakePublisher{},
			stage:     StageDateRange,
			target:    mmp.ErrNoValidDates,
		},
		{
			name:      "missing static yaml",
			retriever: fakeRetriever{2014: payload2014},
			configure: func(cfg *Config) {
				cfg.Dataset.StaticYAML = filepath.Join(cfg.OutDir, "missing.yaml")
			},
			publisher: &fakePublisher{},
			stage:     StageDataset,
			target:    os.ErrNotExist,
		},
		{
			name:      "publish failure",
			retriever: fakeRetriever{2014: payload2014},
			publisher: &fakePublisher{err: errors.New("Authorization Error")},
			stage:     StagePublish,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			cfg := testConfig(t)
			if test.configure != nil {
				test.configure(&cfg)
			}
			p, err := New(cfg, Deps{
				Retriever: test.retriever,
				Clock:     testClock,
				Tel:       &testutil.Recorder{},
				Publisher: test.publisher,
			})
			require.NoError(t, err)

			_, err = p.Run(context.Background())
			require.Error(t, err)

			var stageErr StageError
			require.ErrorAs(t, err, &stageErr)
			require.Equal(t, test.stage, stageErr.Stage)
			if test.target != nil {
				require.ErrorIs(t, err, test.target)
			}
			require.Empty(t, test.publisher.datasets)
		})
	}
}

func TestRunRecordsHistory(t *testing.T) {
	store := history.NewStore(testutil.SetupDB(t, historydb.Schema))
	ctx := context.Background()

	run := func(retriever fakeRetriever) Result {
		p, err := New(testConfig(t), Deps{
			Retriever: retriever,
			Clock:     testClock,
			Tel:       &testutil.Recorder{},
			History:   store,
		})
		require.NoError(t, err)
		result, _ := p.Run(ctx)
		require.NotEmpty(t, result.RunID)
		return result
	}

	ok := run(fakeRetriever{2014: payload2014, 2016: payload2016})
	recorded, err := store.Get(ctx, ok.RunID)
	require.NoError(t, err)
	require.Equal(t, history.StatusSucceeded, recorded.Status)
	require.Equal(t, 3, recorded.Rows)
	require.Equal(t, "2014-01-06", recorded.MinDate)
	require.Equal(t, "2016-03-04", recorded.MaxDate)

	years, err := store.Years(ctx, ok.RunID)
	require.NoError(t, err)
	require.Equal(t, ok.Years, years)

	failed := run(fakeRetriever{2016: "fail"})
	recorded, err = store.Get(ctx, failed.RunID)
	require.NoError(t, err)
	require.Equal(t, history.StatusFailed, recorded.Status)
	require.Equal(t, StageFetch, recorded.Stage)
	require.Contains(t, recorded.Error, "unexpected status 500")
	require.Empty(t, recorded.MinDate)

	years, err = store.Years(ctx, failed.RunID)
	require.NoError(t, err)
	require.Equal(t, []mmp.YearCount{{Year: 2014, Rows: 0}, {Year: 2015, Rows: 0}}, years)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{}, Deps{Retriever: fakeRetriever{}})
	require.Error(t, err)

	cfg := testConfig(t)
	cfg.Years.Policy = "weekly"
	_, err = New(cfg, Deps{Retriever: fakeRetriever{}})
	require.Error(t, err)

	cfg = testConfig(t)
	cfg.Timezone = "Nowhere/Special"
	_, err = New(cfg, Deps{Retriever: fakeRetriever{}})
	require.Error(t, err)
}

func TestRunReportsMalformedDatesOnce(t *testing.T) {
	tel := &testutil.Recorder{}
	p, err := New(testConfig(t), Deps{
		Retriever: fakeRetriever{2014: `[
			{"web_id": "a", "reported_date": "2014-02-01"},
			{"web_id": "b", "reported_date": "31/12/2014"}
		]`},
		Clock: testClock,
		Tel:   tel,
	})
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.NoError(t, err)

	warnings := tel.Events(testutil.KindWarning, "parse-date")
	require.Len(t, warnings, 1)
	require.Equal(t, "reducer: reducer.parse-date", warnings[0].ID)
}
