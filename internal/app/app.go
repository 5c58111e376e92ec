// Package app builds the long-lived services every command shares from a
// loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/taxcrawl/internal/api"
	"github.com/JakeFAU/taxcrawl/internal/cache"
	"github.com/JakeFAU/taxcrawl/internal/config"
	"github.com/JakeFAU/taxcrawl/internal/crawler"
	"github.com/JakeFAU/taxcrawl/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/taxcrawl/internal/fetcher/colly"
	"github.com/JakeFAU/taxcrawl/internal/fetcher/headless"
	"github.com/JakeFAU/taxcrawl/internal/geo"
	"github.com/JakeFAU/taxcrawl/internal/metrics"
	"github.com/JakeFAU/taxcrawl/internal/pdftotext"
	"github.com/JakeFAU/taxcrawl/internal/policy/ratelimit"
	"github.com/JakeFAU/taxcrawl/internal/progress"
	progresssinks "github.com/JakeFAU/taxcrawl/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/taxcrawl/internal/publisher/pubsub"
	"github.com/JakeFAU/taxcrawl/internal/queue"
	queuememory "github.com/JakeFAU/taxcrawl/internal/queue/memory"
	"github.com/JakeFAU/taxcrawl/internal/session"
	gcsstorage "github.com/JakeFAU/taxcrawl/internal/storage/gcs"
	localstorage "github.com/JakeFAU/taxcrawl/internal/storage/local"
	memorystorage "github.com/JakeFAU/taxcrawl/internal/storage/memory"
	pgstore "github.com/JakeFAU/taxcrawl/internal/storage/postgres"
	s3storage "github.com/JakeFAU/taxcrawl/internal/storage/s3"
	sqlitestore "github.com/JakeFAU/taxcrawl/internal/storage/sqlite"
	"github.com/JakeFAU/taxcrawl/internal/worker"
)

// App holds the shared services. Build it once per process and Close it on exit.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	limiter   *ratelimit.Limiter
	fetcher   *collyfetcher.Fetcher
	converter *pdftotext.Converter

	raw       cache.Cache[[]byte]
	documents cache.Cache[[]byte]
	snapshots cache.Cache[progress.Snapshot]
	store     queue.Store

	gcsClient *storage.Client
	publisher *gcppublisher.Publisher
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{cfg: cfg, logger: logger}

	a.limiter = ratelimit.New(ratelimit.Config{RPS: cfg.Browser.SearchQPS})
	a.fetcher = collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.HTTP.Timeout,
	}, nil)
	a.converter = pdftotext.New(cfg.PDFToText.Path)

	if err := a.setupCache(ctx); err != nil {
		a.closeQuietly()
		return nil, err
	}
	if err := a.setupQueueStore(ctx); err != nil {
		a.closeQuietly()
		return nil, err
	}
	if err := a.setupPublisher(ctx); err != nil {
		a.closeQuietly()
		return nil, err
	}
	return a, nil
}

func (a *App) setupCache(ctx context.Context) error {
	var backend cache.Backend
	switch a.cfg.Cache.Backend {
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		backend, err = gcsstorage.New(client, gcsstorage.Config{
			Bucket:     a.cfg.Cache.Bucket,
			PublicRead: a.cfg.Cache.PublicRead,
		})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
	case config.BackendS3:
		s3cfg := s3storage.Config{
			Endpoint:   a.cfg.Cache.S3.Endpoint,
			Region:     a.cfg.Cache.S3.Region,
			Bucket:     a.cfg.Cache.Bucket,
			AccessKey:  a.cfg.Cache.S3.AccessKey,
			SecretKey:  a.cfg.Cache.S3.SecretKey,
			UseSSL:     a.cfg.Cache.S3.UseSSL,
			PublicRead: a.cfg.Cache.PublicRead,
			PublicURL:  a.cfg.Cache.S3.PublicURL,
		}
		client, err := s3storage.NewClient(s3cfg)
		if err != nil {
			return fmt.Errorf("s3 client init failed: %w", err)
		}
		backend, err = s3storage.New(client, s3cfg)
		if err != nil {
			return fmt.Errorf("s3 blob store init failed: %w", err)
		}
	case config.BackendMemory:
		backend = memorystorage.NewBlobStore()
	default:
		local, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Cache.Dir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		backend = local
	}

	a.raw = cache.New(backend, cache.WithObserver(metrics.ObserveCacheLookup))
	a.documents = a.raw
	if a.cfg.Cache.Compress {
		a.documents = cache.AsBrotli(a.raw)
	}
	a.snapshots = cache.AsJSON[progress.Snapshot](a.raw)
	a.logger.Info("cache ready",
		zap.String("backend", a.raw.Description()),
		zap.Bool("compress", a.cfg.Cache.Compress),
	)
	return nil
}

func (a *App) setupQueueStore(ctx context.Context) error {
	switch a.cfg.DB.Driver {
	case config.DriverPostgres:
		store, err := pgstore.NewQueueStore(ctx, pgstore.Config{
			DSN:             a.cfg.DB.DSN,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("queue store init failed: %w", err)
		}
		a.store = store
	case config.DriverMemory:
		a.logger.Warn("using in-memory queue store; progress is lost on exit")
		a.store = queuememory.NewStore()
	default:
		if err := ensureParentDir(a.cfg.DB.DSN); err != nil {
			return err
		}
		store, err := sqlitestore.NewQueueStore(ctx, a.cfg.DB.DSN)
		if err != nil {
			return fmt.Errorf("queue store init failed: %w", err)
		}
		a.store = store
	}
	a.logger.Info("queue store ready", zap.String("driver", a.cfg.DB.Driver))
	return nil
}

// ensureParentDir creates the directory holding a file-path SQLite DSN.
func ensureParentDir(dsn string) error {
	if strings.HasPrefix(dsn, ":") || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil {
		return fmt.Errorf("create sqlite dir: %w", err)
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if !a.cfg.PubSub.Enabled() {
		a.logger.Debug("no Pub/Sub topic configured, progress is not published")
		return nil
	}
	client, err := gcppublisher.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.publisher = gcppublisher.New(client)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the queue store.
func (a *App) Store() queue.Store { return a.store }

// Documents returns the cache that pages, PDFs and text are stored in.
func (a *App) Documents() cache.Cache[[]byte] { return a.documents }

// Snapshots returns the cache progress snapshots are published to.
func (a *App) Snapshots() cache.Cache[progress.Snapshot] { return a.snapshots }

// Launcher returns a browser launcher, or one that always refuses when
// browser is false.
func (a *App) Launcher(browser bool) session.Launcher {
	if !browser {
		return headless.Disabled{}
	}
	return headless.NewLauncher(headless.Config{
		Headless:          a.cfg.Browser.Headless,
		UserAgent:         a.cfg.Browser.UserAgent,
		NavigationTimeout: a.cfg.Browser.NavTimeout,
		SearchURL:         a.cfg.Browser.SearchURL,
	}, a.limiter, a.logger.Named("browser"))
}

// ValidateConverter checks the pdftotext install once, before any conversion.
func (a *App) ValidateConverter(ctx context.Context) error {
	if err := a.converter.Validate(ctx); err != nil {
		return fmt.Errorf("validate pdftotext: %w", err)
	}
	return nil
}

// NewScraper creates a scraper backed by its own browser session.
func (a *App) NewScraper(launcher session.Launcher, filter crawler.LinkFilter) *crawler.Scraper {
	sess := session.New(launcher, a.fetcher, a.converter, a.documents, session.Config{
		RestartAfter: a.cfg.Browser.RestartAfter,
		HTMLPrefix:   a.cfg.Cache.HTMLPrefix,
	}, a.logger.Named("session"))
	return crawler.NewScraper(sess, filter, a.logger.Named("scraper"))
}

// CrawlOptions override the configured crawl settings for one run.
type CrawlOptions struct {
	Table       string
	Concurrency int
	Filter      crawler.FilterOptions
	Browser     bool
}

// CrawlOptions returns the configured defaults.
func (a *App) CrawlOptions() CrawlOptions {
	return CrawlOptions{
		Table:       a.cfg.Crawl.Table,
		Concurrency: a.cfg.Crawl.Concurrency,
		Filter: crawler.FilterOptions{
			OnlyYear:    a.cfg.Crawl.OnlyYear,
			OnlyNOPV:    a.cfg.Crawl.OnlyNOPV,
			OnlySOA:     a.cfg.Crawl.OnlySOA,
			SOAQuarters: a.cfg.Crawl.SOAQuarters,
		},
		Browser: a.cfg.Browser.Enabled,
	}
}

// NewDispatcher wires a worker pool and progress sinks for one crawl.
func (a *App) NewDispatcher(opts CrawlOptions) (*dispatcher.Dispatcher, error) {
	if err := queue.ValidateTable(opts.Table); err != nil {
		return nil, err
	}
	if opts.Concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be > 0, got %d", opts.Concurrency)
	}
	launcher := a.Launcher(opts.Browser)
	filter := crawler.MakeLinkFilter(opts.Filter)
	workers := make([]*worker.Worker, opts.Concurrency)
	for i := range workers {
		workers[i] = worker.New(i, a.NewScraper(launcher, filter), a.store, opts.Table, a.logger.Named("worker"))
	}

	runID := uuid.NewString()
	sinks := progress.Multi{
		progresssinks.NewCacheSink(a.snapshots),
		progresssinks.NewLogSink(a.logger.Named("progress")),
		progresssinks.NewPrometheusSink(),
	}
	if a.publisher != nil {
		sinks = append(sinks, progresssinks.NewPubSubSink(a.publisher, a.cfg.PubSub.Topic, runID, a.logger.Named("pubsub")))
	}
	d := dispatcher.New(a.store, opts.Table, workers, sinks, a.logger.Named("dispatcher"), dispatcher.WithRunID(runID))
	a.logger.Info("dispatcher ready",
		zap.String("table", opts.Table),
		zap.Int("concurrency", opts.Concurrency),
		zap.Bool("browser", opts.Browser),
		zap.String("run_id", d.RunID()),
	)
	return d, nil
}

// Resolver returns a cached address resolver.
func (a *App) Resolver() geo.Resolver {
	return geo.NewCached(geo.NewClient(a.fetcher, a.cfg.GeoSearch.URL), a.raw, a.logger.Named("geo"))
}

// Serve runs the status API until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           api.NewServer(a.store, a.snapshots, a.documents, a.logger.Named("api")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Close releases every service.
func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close queue store: %w", err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gcs client: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) closeQuietly() {
	if err := a.Close(); err != nil {
		a.logger.Warn("cleanup after failed build", zap.Error(err))
	}
}
