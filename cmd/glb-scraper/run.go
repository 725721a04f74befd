package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maltedev/glb-scraper/internal/api"
	"github.com/maltedev/glb-scraper/internal/browser"
	"github.com/maltedev/glb-scraper/internal/database"
	"github.com/maltedev/glb-scraper/internal/downloader"
	"github.com/maltedev/glb-scraper/internal/events"
	"github.com/maltedev/glb-scraper/internal/metrics"
	"github.com/maltedev/glb-scraper/internal/parser"
	"github.com/maltedev/glb-scraper/internal/pipeline"
	"github.com/maltedev/glb-scraper/internal/ratelimit"
	"github.com/maltedev/glb-scraper/internal/scraper"
)

func runCommand() *cobra.Command {
	var allColors bool

	cmd := &cobra.Command{
		Use:   "run <catalog-url>",
		Short: "Crawl a catalog and download every product's 3D model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("all-colors") {
				allColors = cfg.Scraper.AllColors
			}
			return run(cmd.Context(), args[0], allColors)
		},
	}

	cmd.Flags().BoolVar(&allColors, "all-colors", false, "download every color variant (default from SCRAPER_ALL_COLORS)")
	return cmd
}

func run(ctx context.Context, catalogURL string, allColors bool) error {
	ledger, err := database.Open(ctx, database.Config{
		Driver: cfg.Ledger.Driver,
		Path:   cfg.Ledger.Path,
		DSN:    cfg.Ledger.DSN,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer ledger.Close()

	b, err := browser.New(&browser.Options{
		Headless:          cfg.Browser.Headless,
		Timeout:           cfg.Browser.Timeout,
		MaxSessions:       cfg.Browser.MaxSessions,
		MaxScrolls:        cfg.Browser.MaxScrolls,
		NavigationRetries: browser.DefaultOptions().NavigationRetries,
		UserAgent:         cfg.Browser.UserAgent,
		Locale:            cfg.Browser.Locale,
		ViewportWidth:     browser.DefaultOptions().ViewportWidth,
		ViewportHeight:    browser.DefaultOptions().ViewportHeight,
		Limiter:           ratelimit.NewJitterLimiter(cfg.Scraper.RateLimitMin, cfg.Scraper.RateLimitMax),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize browser: %w", err)
	}
	defer b.Close()

	publisher, err := newPublisher(ctx)
	if err != nil {
		return err
	}
	defer publisher.Close()

	namer, err := downloader.NewNamer(cfg.Download.Dir, cfg.Download.Collision)
	if err != nil {
		return err
	}

	var progress downloader.Progress = downloader.NopProgress{}
	if cfg.Download.ShowProgress {
		bars := downloader.NewBars(os.Stdout)
		defer bars.Stop()
		progress = bars
	}

	registry := prometheus.NewRegistry()
	crawlMetrics := metrics.New(registry)

	selectors := scraper.DefaultSelectors()
	selectors.ScrollInterval = cfg.Browser.ScrollInterval

	p := pipeline.New(pipeline.Deps{
		Paginator:  scraper.NewCatalogCrawler(b, selectors, logger),
		Expander:   scraper.NewVariantExpander(b, selectors, logger),
		Extractor:  scraper.NewProductExtractor(b, parser.NewStorefrontParser(cfg.Scraper.StoreSuffix), selectors, logger),
		Ledger:     ledger,
		Downloader: downloader.New(&http.Client{Timeout: cfg.Download.Timeout}, downloader.Options{
			ChunkSize: cfg.Download.ChunkSize,
			Progress:  progress,
		}, logger),
		Namer:     namer,
		Publisher: publisher,
		Metrics:   crawlMetrics,
	}, pipeline.Options{
		Concurrency:   cfg.Scraper.ConcurrentLimit,
		RetryDegraded: cfg.Scraper.RetryDegraded,
	}, logger)

	if cfg.Status.Addr == "" {
		_, err := p.Run(ctx, catalogURL, allColors)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	router := api.NewRouter(api.NewHandlers(ledger, p, logger), registry)
	g.Go(func() error {
		return api.Serve(serverCtx, cfg.Status.Addr, router, logger)
	})
	g.Go(func() error {
		defer stopServer()
		_, err := p.Run(gctx, catalogURL, allColors)
		return err
	})

	return g.Wait()
}

func newPublisher(ctx context.Context) (events.Publisher, error) {
	if cfg.Redis.Addr == "" {
		return events.NopPublisher{}, nil
	}

	client, err := events.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	return events.NewRedisPublisher(client, cfg.Redis.Stream, logger), nil
}
