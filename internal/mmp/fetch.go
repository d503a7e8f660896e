package mmp

import (
	"context"
	"fmt"
	"strings"

	"mmp-pipeline/lib/chrono"
	"mmp-pipeline/lib/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("internal/mmp")

const (
	report_fetcher_year_rows  = "fetcher.year-rows"
	report_fetcher_year_empty = "no data for year"
	report_fetcher_year_found = "found rows for year"
)

// Retriever fetches the raw payload behind a url. Caching, retries and
// saved-copy fallback are its own business.
type Retriever interface {
	DownloadJSON(ctx context.Context, url string) ([]byte, error)
}

type YearCount struct {
	Year int
	Rows int
}

type FetcherOptions struct {
	BaseURL string
	// defaults to "json"
	OutputFormat string
	// defaults to DynamicYears{Start: FirstYear}
	Policy    YearPolicy
	Retriever Retriever
	// defaults to UTC wall clock
	Clock chrono.API
	Tel   telemetry.API
}

// Fetcher queries the incident API once per year and concatenates the
// results in ascending year order.
type Fetcher struct {
	baseURL      string
	outputFormat string
	policy       YearPolicy
	retriever    Retriever
	clock        chrono.API
	tel          telemetry.API

	stats []YearCount
}

func NewFetcher(opts FetcherOptions) (*Fetcher, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("a base url was not specified")
	}
	if opts.Retriever == nil {
		return nil, fmt.Errorf("a retriever was not specified")
	}
	if opts.OutputFormat == "" {
		opts.OutputFormat = "json"
	}
	if opts.Policy == nil {
		opts.Policy = DynamicYears{Start: FirstYear}
	}
	if opts.Clock == nil {
		clock, err := chrono.NewStandardImpl("")
		if err != nil {
			return nil, err
		}
		opts.Clock = clock
	}
	if opts.Tel == nil {
		opts.Tel = telemetry.SlogAPI{}
	}

	return &Fetcher{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		outputFormat: opts.OutputFormat,
		policy:       opts.Policy,
		retriever:    opts.Retriever,
		clock:        opts.Clock,
		tel:          telemetry.NewScopedAPI("fetcher", opts.Tel),
	}, nil
}

// YearURL is `{base_url}/{year}/{output_format}`.
func (f *Fetcher) YearURL(year int) string {
	return fmt.Sprintf("%s/%d/%s", f.baseURL, year, f.outputFormat)
}

// Years returns the years the policy selects right now.
func (f *Fetcher) Years() []int {
	return f.policy.Years(f.clock.Now())
}

// Fetch harvests every year the policy selects.
func (f *Fetcher) Fetch(ctx context.Context) (Collection, error) {
	return f.FetchYears(ctx, f.Years())
}

// FetchYears harvests the given years in the given order. Years without data
// are skipped, the first retriever error aborts the harvest.
func (f *Fetcher) FetchYears(ctx context.Context, years []int) (Collection, error) {
	ctx, span := tracer.Start(ctx, "fetcher:Fetch")
	defer span.End()
	span.SetAttributes(attribute.IntSlice("years", years))

	f.stats = nil
	var out Collection
	for _, year := range years {
		rows, err := f.fetchYear(ctx, year)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to fetch year")
			return nil, err
		}
		f.stats = append(f.stats, YearCount{Year: year, Rows: len(rows)})
		if len(rows) == 0 {
			f.tel.ReportInfo(report_fetcher_year_empty, "year", year)
			continue
		}
		f.tel.ReportInfo(report_fetcher_year_found, "year", year, "rows", len(rows))
		f.tel.ReportCount(report_fetcher_year_rows, int64(len(rows)))
		out = append(out, rows...)
	}

	span.SetAttributes(attribute.Int("rows", len(out)))
	return out, nil
}

func (f *Fetcher) fetchYear(ctx context.Context, year int) ([]Row, error) {
	ctx, span := tracer.Start(ctx, "fetcher:year")
	defer span.End()

	link := f.YearURL(year)
	span.SetAttributes(attribute.Int("year", year), attribute.String("url", link))

	data, err := f.retriever.DownloadJSON(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("fetch %d (%s): %w", year, link, err)
	}
	rows, err := DecodeRows(data)
	if err != nil {
		return nil, fmt.Errorf("decode %d (%s): %w", year, link, err)
	}
	return rows, nil
}

// Stats returns the row count of every year queried by the last fetch,
// years without data included.
func (f *Fetcher) Stats() []YearCount {
	out := make([]YearCount, len(f.stats))
	copy(out, f.stats)
	return out
}
