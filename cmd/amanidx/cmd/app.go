package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Aman-CERP/amanidx/internal/config"
	"github.com/Aman-CERP/amanidx/internal/content"
	"github.com/Aman-CERP/amanidx/internal/indexio"
	"github.com/Aman-CERP/amanidx/internal/joblog"
	"github.com/Aman-CERP/amanidx/internal/metrics"
	"github.com/Aman-CERP/amanidx/internal/parser"
	"github.com/Aman-CERP/amanidx/internal/pool"
	"github.com/Aman-CERP/amanidx/internal/scheduler"
	"github.com/Aman-CERP/amanidx/internal/transform"
)

// app wires the scheduler and its collaborators from the config.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	manager *scheduler.Manager
	pool    *pool.Pool
	jobs    joblog.Store
	// indexConfig holds the template mappings of the config.
	indexConfig *transform.IndexConfig
	metricsSrv  *http.Server
}

// newApp builds and starts a manager serving content from fetcher. A nil
// fetcher serves nothing, for commands that only read indexes.
func newApp(ctx context.Context, opts *rootOptions, fetcher content.Fetcher) (*app, error) {
	cfg, logger := opts.cfg, opts.logger

	if fetcher == nil {
		fetcher = content.NewMemoryFetcher()
	}

	jobs, err := openJobLog(cfg)
	if err != nil {
		return nil, err
	}

	var templates fs.FS
	if cfg.Templates.Dir != "" {
		templates = os.DirFS(cfg.Templates.Dir)
	}

	a := &app{
		cfg:         cfg,
		logger:      logger,
		pool:        pool.New(cfg.Pool.MaxOpenedIndexes, logger),
		jobs:        jobs,
		indexConfig: newIndexConfig(cfg),
	}

	a.manager, err = scheduler.NewManager(scheduler.Config{
		Workers:         cfg.Scheduler.Workers,
		DrainOnStop:     cfg.Scheduler.DrainOnStop,
		FetchRetries:    cfg.Scheduler.FetchRetries,
		FetchRetryDelay: config.Duration(cfg.Scheduler.FetchRetryDelay),
		Index: indexio.Options{
			MaxPendingChanges: cfg.Index.MaxPendingChanges,
			CommitInterval:    config.Duration(cfg.Index.CommitInterval),
		},
	}, scheduler.Deps{
		Fetcher:     fetcher,
		Transformer: transform.NewTemplateEngine(templates, cfg.Templates.CacheSize, logger),
		Parser:      parser.New(logger),
		Pool:        a.pool,
		JobLog:      jobs,
		Logger:      logger,
	})
	if err != nil {
		_ = jobs.Close()
		return nil, err
	}

	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			_ = jobs.Close()
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		a.metricsSrv = serveMetrics(cfg.Metrics.Addr, logger)
	}

	if err := a.manager.Start(ctx); err != nil {
		a.shutdown()
		return nil, err
	}
	a.pool.Start(ctx, config.Duration(cfg.Pool.SweepInterval))
	return a, nil
}

// index returns the definition of an index kept below the data dir.
func (a *app) index(id string) *indexio.Index {
	return &indexio.Index{
		ID:       id,
		Analyzer: a.cfg.Index.Analyzer,
		Path:     a.cfg.IndexDir(id),
	}
}

// shutdown stops the manager, which commits and closes every index, then
// releases the rest.
func (a *app) shutdown() error {
	a.pool.Stop()
	err := a.manager.Stop()
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = errors.Join(err, a.metricsSrv.Shutdown(ctx))
	}
	return errors.Join(err, a.jobs.Close())
}

func openJobLog(cfg *config.Config) (joblog.Store, error) {
	if strings.EqualFold(cfg.JobLog.Backend, "memory") {
		return joblog.NewMemoryStore(joblog.DefaultMemoryCapacity), nil
	}
	return joblog.OpenSQLite(cfg.JobLogPath())
}

func newIndexConfig(cfg *config.Config) *transform.IndexConfig {
	ic := transform.NewIndexConfig("default")
	for _, m := range cfg.Templates.Mappings {
		ic.AddTemplates(content.ContentType(m.ContentType), m.MimeType, m.ConfigID, transform.TemplateRef(m.Template))
	}
	return ic
}

// serveMetrics exposes the default registry on addr until shutdown.
func serveMetrics(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics_server_started", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics_server_failed", slog.String("error", err.Error()))
		}
	}()
	return srv
}
