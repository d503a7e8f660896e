package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"mmp-pipeline/internal/catalog"
	"mmp-pipeline/internal/dataset"
	"mmp-pipeline/internal/history"
	"mmp-pipeline/internal/mmp"
	"mmp-pipeline/lib/chrono"
	"mmp-pipeline/lib/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("internal/pipeline")

const (
	StageFetch     = "fetch"
	StageDateRange = "date-range"
	StageDataset   = "dataset"
	StageResource  = "resource"
	StagePublish   = "publish"

	report_pipeline_rows     = "pipeline.rows"
	report_pipeline_history  = "pipeline.history"
	report_pipeline_finished = "harvest finished"
)

// StageError is returned by Run, Stage names the step that failed.
type StageError struct {
	Stage string
	Err   error
}

func (e StageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Err.Error())
}

func (e StageError) Unwrap() error {
	return e.Err
}

func stageError(stage string, err error) error {
	return StageError{Stage: stage, Err: err}
}

type Publisher interface {
	Publish(ctx context.Context, ds *dataset.Dataset) (catalog.Published, error)
}

type History interface {
	Begin(ctx context.Context, startedAt time.Time) (string, error)
	RecordYears(ctx context.Context, runID string, counts []mmp.YearCount) error
	Finish(ctx context.Context, runID string, outcome history.Outcome) error
}

type Deps struct {
	Retriever mmp.Retriever
	// defaults to the wall clock in the configured timezone
	Clock chrono.API
	// defaults to telemetry.SlogAPI
	Tel telemetry.API
	// optional
	History History
	// optional, nothing is published when nil
	Publisher Publisher
}

type Result struct {
	RunID    string
	Rows     int
	Years    []mmp.YearCount
	Dates    mmp.DateRange
	Dataset  *dataset.Dataset
	Resource dataset.Resource
	// nil unless a publisher was given
	Published *catalog.Published
}

type Pipeline struct {
	cfg       Config
	fetcher   *mmp.Fetcher
	clock     chrono.API
	tel       telemetry.API
	rootTel   telemetry.API
	history   History
	publisher Publisher
}

func New(cfg Config, deps Deps) (*Pipeline, error) {
	cfg = cfg.WithDefaults()

	if deps.Clock == nil {
		clock, err := chrono.NewStandardImpl(cfg.Timezone)
		if err != nil {
			return nil, err
		}
		deps.Clock = clock
	}
	if deps.Tel == nil {
		deps.Tel = telemetry.SlogAPI{}
	}

	policy, err := mmp.PolicyFromConfig(cfg.Years)
	if err != nil {
		return nil, err
	}
	fetcher, err := mmp.NewFetcher(mmp.FetcherOptions{
		BaseURL:      cfg.BaseURL,
		OutputFormat: cfg.OutputFormat,
		Policy:       policy,
		Retriever:    deps.Retriever,
		Clock:        deps.Clock,
		Tel:          deps.Tel,
	})
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:       cfg,
		fetcher:   fetcher,
		clock:     deps.Clock,
		tel:       telemetry.NewScopedAPI("pipeline", deps.Tel),
		rootTel:   deps.Tel,
		history:   deps.History,
		publisher: deps.Publisher,
	}, nil
}

func (p *Pipeline) Fetcher() *mmp.Fetcher {
	return p.fetcher
}

// Run harvests every configured year, describes the result and writes the
// csv resource. The dataset is published only when every earlier step
// succeeded.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	ctx, span := tracer.Start(ctx, "pipeline:Run")
	defer span.End()

	var result Result
	if p.history != nil {
		id, err := p.history.Begin(ctx, p.clock.Now())
		if err != nil {
			p.tel.ReportWarning(report_pipeline_history, "err", err)
		}
		result.RunID = id
		span.SetAttributes(attribute.String("run_id", id))
	}

	err := p.run(ctx, &result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	p.finish(ctx, result, err)
	return result, err
}

func (p *Pipeline) finish(ctx context.Context, result Result, err error) {
	outcome := history.Outcome{
		FinishedAt: p.clock.Now(),
		Err:        err,
		Rows:       result.Rows,
	}
	var stageErr StageError
	if errors.As(err, &stageErr) {
		outcome.Stage = stageErr.Stage
	}
	if !result.Dates.Min.IsZero() {
		outcome.MinDate = result.Dates.Min.Format(mmp.DateLayout)
		outcome.MaxDate = result.Dates.Max.Format(mmp.DateLayout)
	}

	if err == nil {
		p.tel.ReportInfo(
			report_pipeline_finished,
			"rows", result.Rows,
			"period", result.Dates.String(),
			"resource", result.Resource.Path,
		)
	}

	if p.history == nil || result.RunID == "" {
		return
	}
	if len(result.Years) > 0 {
		herr := p.history.RecordYears(ctx, result.RunID, result.Years)
		if herr != nil {
			p.tel.ReportWarning(report_pipeline_history, "run_id", result.RunID, "err", herr)
		}
	}
	herr := p.history.Finish(ctx, result.RunID, outcome)
	if herr != nil {
		p.tel.ReportWarning(report_pipeline_history, "run_id", result.RunID, "err", herr)
	}
}

func (p *Pipeline) run(ctx context.Context, result *Result) error {
	rows, err := p.fetcher.Fetch(ctx)
	result.Years = p.fetcher.Stats()
	if err != nil {
		return stageError(StageFetch, err)
	}
	result.Rows = len(rows)
	p.tel.ReportCount(report_pipeline_rows, int64(len(rows)))

	// the header comes from the first row so an empty harvest has nothing
	// to describe
	if len(rows) == 0 {
		return stageError(StageResource, dataset.ErrNoRows)
	}

	// the reducer scopes its own reports
	dates, err := mmp.ReduceDateRange(rows, p.cfg.DateField, p.rootTel)
	if err != nil {
		return stageError(StageDateRange, err)
	}
	result.Dates = dates

	ds, err := p.buildDataset(dates)
	if err != nil {
		return stageError(StageDataset, err)
	}
	result.Dataset = ds

	dir, cleanup, err := p.outputDir()
	if err != nil {
		return stageError(StageResource, err)
	}
	defer cleanup()

	resource, err := ds.GenerateResourceFromRows(dir, rows, dataset.ResourceOptions{
		Filename:    p.cfg.Filename,
		Description: p.cfg.Dataset.ResourceDescription,
		HXLTags:     p.cfg.HXLTags,
	})
	if err != nil {
		return stageError(StageResource, err)
	}
	result.Resource = resource

	if p.publisher == nil {
		return nil
	}
	published, err := p.publisher.Publish(ctx, ds)
	if err != nil {
		return stageError(StagePublish, err)
	}
	result.Published = &published
	return nil
}

func (p *Pipeline) buildDataset(dates mmp.DateRange) (*dataset.Dataset, error) {
	ds := dataset.New(p.cfg.Dataset.Title)
	ds.SetTimePeriod(dates)
	ds.AddOtherLocation(p.cfg.Location)
	ds.AddTags(p.cfg.Tags, p.cfg.TagVocabularyID)
	if p.cfg.Dataset.StaticYAML != "" {
		err := ds.UpdateFromYAML(p.cfg.Dataset.StaticYAML)
		if err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// outputDir returns the configured output directory, or a temporary one that
// is removed once the run is over.
func (p *Pipeline) outputDir() (string, func(), error) {
	if p.cfg.OutDir != "" {
		err := os.MkdirAll(p.cfg.OutDir, 0755)
		if err != nil {
			return "", nil, err
		}
		return p.cfg.OutDir, func() {}, nil
	}
	dir, err := os.MkdirTemp("", "mmp-")
	if err != nil {
		return "", nil, err
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}
