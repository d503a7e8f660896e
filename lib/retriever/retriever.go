package retriever

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"mmp-pipeline/lib/restyutil"
	"mmp-pipeline/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/retriever")

const (
	report_retriever_download = "retriever.download"
	report_retriever_fallback = "retriever.fallback"
	report_retriever_save     = "retriever.save"
)

type SavedConfig struct {
	// dir or badger
	Kind string `json:"kind"`
	Path string `json:"path"`
	// only honored by badger, ex. "24h"
	TTL string `json:"ttl"`
}

type Config struct {
	Saved       SavedConfig `json:"saved"`
	FallbackDir string      `json:"fallback_dir"`
	Save        bool        `json:"save"`
	UseSaved    bool        `json:"use_saved"`
	RetryCount  int         `json:"retry_count"`
	Timeout     string      `json:"timeout"`
	UserAgent   string      `json:"user_agent"`
	// transcripts of every response are written here when set
	DumpDir string `json:"dump_dir"`
}

type Options struct {
	// Saved is written to when Save is set and read from when UseSaved is set.
	Saved    Store
	Fallback Store
	Save     bool
	UseSaved bool

	RetryCount int
	Timeout    time.Duration
	UserAgent  string
	DumpDir    string
	Tel        telemetry.API
}

// Retriever downloads JSON payloads, optionally keeping a saved copy of every
// download and serving from saved copies instead of the network.
type Retriever struct {
	http     *resty.Client
	saved    Store
	fallback Store
	save     bool
	useSaved bool
	tel      telemetry.API
}

func New(opts Options) (*Retriever, error) {
	if opts.Save && opts.UseSaved {
		return nil, fmt.Errorf("save and use_saved cannot both be set")
	}
	if (opts.Save || opts.UseSaved) && opts.Saved == nil {
		return nil, fmt.Errorf("save and use_saved require a saved store")
	}
	if opts.Tel == nil {
		opts.Tel = telemetry.SlogAPI{}
	}
	tel := telemetry.NewScopedAPI("retriever", opts.Tel)

	client := resty.New()
	client.SetRetryCount(opts.RetryCount)
	client.SetRetryWaitTime(2 * time.Second)
	client.AddRetryCondition(func(res *resty.Response, err error) bool {
		return res != nil && res.StatusCode() >= 500
	})
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	client.SetHeader("Accept", "application/json")
	telemetry.InstrumentResty(client, "lib/retriever/http", tel)
	if opts.DumpDir != "" {
		output, err := restyutil.NewDirOutput(opts.DumpDir)
		if err != nil {
			return nil, err
		}
		restyutil.Dump(client, "retriever", output, tel)
	}

	return &Retriever{
		http:     client,
		saved:    opts.Saved,
		fallback: opts.Fallback,
		save:     opts.Save,
		useSaved: opts.UseSaved,
		tel:      tel,
	}, nil
}

// FromConfig builds a Retriever and returns a closer for any store it opened.
func FromConfig(cfg Config, tel telemetry.API) (*Retriever, io.Closer, error) {
	opts := Options{
		Save:       cfg.Save,
		UseSaved:   cfg.UseSaved,
		RetryCount: cfg.RetryCount,
		UserAgent:  cfg.UserAgent,
		DumpDir:    cfg.DumpDir,
		Tel:        tel,
	}
	if cfg.Timeout != "" {
		timeout, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("retriever timeout: %w", err)
		}
		opts.Timeout = timeout
	}

	var closer io.Closer = nopCloser{}
	switch cfg.Saved.Kind {
	case "", "dir":
		if cfg.Saved.Path != "" {
			store, err := NewDirStore(cfg.Saved.Path)
			if err != nil {
				return nil, nil, err
			}
			opts.Saved = store
		}
	case "badger":
		var ttl time.Duration
		if cfg.Saved.TTL != "" {
			var err error
			ttl, err = time.ParseDuration(cfg.Saved.TTL)
			if err != nil {
				return nil, nil, fmt.Errorf("saved ttl: %w", err)
			}
		}
		store, err := OpenBadgerStore(cfg.Saved.Path, ttl)
		if err != nil {
			return nil, nil, err
		}
		opts.Saved = store
		closer = store
	default:
		return nil, nil, fmt.Errorf("unknown saved store kind %q", cfg.Saved.Kind)
	}

	if cfg.FallbackDir != "" {
		store, err := NewDirStore(cfg.FallbackDir)
		if err != nil {
			return nil, nil, err
		}
		opts.Fallback = store
	}

	r, err := New(opts)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	return r, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// DownloadJSON returns the raw payload behind link. A 204 or 404 response is
// an absent payload and yields no bytes and no error.
func (r *Retriever) DownloadJSON(ctx context.Context, link string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "retriever:DownloadJSON")
	defer span.End()
	span.SetAttributes(attribute.String("url", link))

	key, err := Key(link)
	if err != nil {
		span.SetStatus(codes.Error, "failed to normalize url")
		return nil, err
	}

	if r.useSaved {
		data, err := r.saved.Get(ctx, key)
		if err != nil {
			span.SetStatus(codes.Error, "failed to read saved copy")
			return nil, fmt.Errorf("use saved %s: %w", link, err)
		}
		r.tel.ReportDebug("using saved copy", "url", link, "bytes", len(data))
		return data, nil
	}

	data, err := r.download(ctx, link)
	if err != nil {
		if r.fallback != nil {
			fallback, ferr := r.fallback.Get(ctx, key)
			if ferr == nil {
				r.tel.ReportWarning(report_retriever_fallback, "url", link, "err", err)
				return fallback, nil
			}
		}
		r.tel.ReportBroken(report_retriever_download, "url", link, "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to download")
		return nil, err
	}

	if r.save {
		err = r.saved.Set(ctx, key, data)
		if err != nil {
			r.tel.ReportBroken(report_retriever_save, "url", link, "err", err)
			return nil, fmt.Errorf("save %s: %w", link, err)
		}
	}
	return data, nil
}

func (r *Retriever) download(ctx context.Context, link string) ([]byte, error) {
	res, err := r.http.R().
		SetContext(ctx).
		Get(link)
	if err != nil {
		return nil, err
	}
	switch res.StatusCode() {
	case http.StatusNoContent, http.StatusNotFound:
		return nil, nil
	}
	if res.IsError() {
		return nil, errors.New("GET " + link + ": unexpected status " + res.Status())
	}
	return res.Body(), nil
}
