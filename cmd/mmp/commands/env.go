package commands

import (
	"database/sql"
	"io"
	"os"
	"path/filepath"

	"mmp-pipeline/internal/catalog"
	"mmp-pipeline/internal/history"
	historydb "mmp-pipeline/internal/history/db"
	"mmp-pipeline/internal/pipeline"
	"mmp-pipeline/lib/configutil"
	"mmp-pipeline/lib/retriever"
	"mmp-pipeline/lib/serviceutil"
	"mmp-pipeline/lib/telemetry"

	"github.com/jedib0t/go-pretty/v6/table"
)

const catalogKeyEnv = "MMP_CATALOG_API_KEY"

func readConfig() pipeline.Config {
	cfg, err := configutil.ReadConfig[pipeline.Config](*configPath)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if key, ok := os.LookupEnv(catalogKeyEnv); ok && cfg.Catalog.APIKey == "" {
		cfg.Catalog.APIKey = key
	}
	// the static yaml sits next to the config file
	static := cfg.Dataset.StaticYAML
	if static != "" && !filepath.IsAbs(static) {
		cfg.Dataset.StaticYAML = filepath.Join(filepath.Dir(*configPath), static)
	}
	return cfg.WithDefaults()
}

func openHistory(cfg pipeline.Config) (*sql.DB, *history.Store) {
	if !cfg.Database.Enabled() {
		return nil, nil
	}
	db, err := cfg.Database.OpenDB(historydb.Schema)
	if err != nil {
		serviceutil.Fatal("failed to open history database", err)
	}
	store := history.NewStore(db)
	return db, &store
}

// env holds everything a harvest needs, Close releases it.
type env struct {
	cfg      pipeline.Config
	pipeline *pipeline.Pipeline
	store    *history.Store
	closers  []io.Closer
}

func (e env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i].Close()
	}
}

type envOptions struct {
	publish bool
	dryRun  bool
	outDir  string
}

func openEnv(opts envOptions) env {
	cfg := readConfig()
	if opts.outDir != "" {
		cfg.OutDir = opts.outDir
	}
	api := telemetry.SlogAPI{}

	e := env{cfg: cfg}
	fetch, closer, err := retriever.FromConfig(cfg.Retriever, api)
	if err != nil {
		serviceutil.Fatal("failed to create retriever", err)
	}
	e.closers = append(e.closers, closer)

	deps := pipeline.Deps{
		Retriever: fetch,
		Tel:       api,
	}

	db, store := openHistory(cfg)
	if store != nil {
		e.closers = append(e.closers, db)
		e.store = store
		deps.History = store
	}

	if opts.publish || opts.dryRun {
		catalogCfg := cfg.Catalog
		catalogCfg.DryRun = catalogCfg.DryRun || opts.dryRun
		client, err := catalog.NewClient(catalogCfg, api)
		if err != nil {
			e.Close()
			serviceutil.Fatal("failed to create catalog client", err)
		}
		deps.Publisher = client
	}

	p, err := pipeline.New(cfg, deps)
	if err != nil {
		e.Close()
		serviceutil.Fatal("failed to create pipeline", err)
	}
	e.pipeline = p
	return e
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
