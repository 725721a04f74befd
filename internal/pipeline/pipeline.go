// Package pipeline drives a crawl from catalog pages down to recorded,
// downloaded assets.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maltedev/glb-scraper/internal/downloader"
	"github.com/maltedev/glb-scraper/internal/events"
	"github.com/maltedev/glb-scraper/internal/metrics"
	"github.com/maltedev/glb-scraper/internal/models"
	"github.com/maltedev/glb-scraper/internal/scraper"
)

// ErrLedger marks a failed ledger read or write. It ends the run.
var ErrLedger = errors.New("ledger failure")

type Paginator interface {
	ListProducts(ctx context.Context, catalogURL string, fn scraper.PageFunc) error
}

type Expander interface {
	Expand(ctx context.Context, productURL string, includeAllColors bool) ([]string, error)
}

type Extractor interface {
	Extract(ctx context.Context, variantURL string) models.Extraction
}

type Ledger interface {
	Has(ctx context.Context, variantURL string) (bool, error)
	Record(ctx context.Context, rec *models.ProductRecord) error
}

type Downloader interface {
	Download(ctx context.Context, assetURL, destPath string) (downloader.Result, error)
}

type Namer interface {
	Path(variantURL, name, color, assetURL string) (string, error)
}

// Deps are the collaborators of a Pipeline. Publisher and Metrics are
// optional.
type Deps struct {
	Paginator  Paginator
	Expander   Expander
	Extractor  Extractor
	Ledger     Ledger
	Downloader Downloader
	Namer      Namer
	Publisher  events.Publisher
	Metrics    *metrics.Metrics
}

type Options struct {
	// Concurrency bounds the products processed at once within a page.
	Concurrency int
	// RetryDegraded leaves degraded extractions unrecorded so a later run
	// tries them again.
	RetryDegraded bool
}

type Totals struct {
	Pages           int `json:"pages"`
	Products        int `json:"products"`
	ProductsSkipped int `json:"products_skipped"`
	ProductsFailed  int `json:"products_failed"`
	VariantsSkipped int `json:"variants_skipped"`
	Recorded        int `json:"recorded"`
	Downloaded      int `json:"downloaded"`
	Truncated       int `json:"truncated"`
	NoAsset         int `json:"no_asset"`
	Degraded        int `json:"degraded"`
}

type Pipeline struct {
	deps   Deps
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	totals   Totals
	inFlight map[string]struct{}
}

func New(deps Deps, opts Options, logger *slog.Logger) *Pipeline {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}

	return &Pipeline{
		deps:     deps,
		opts:     opts,
		logger:   logger.With("component", "pipeline"),
		inFlight: make(map[string]struct{}),
	}
}

// Run crawls catalogURL page by page until a page yields no products. Per
// product failures are logged and counted; only ledger failures and
// cancellation end the run early.
func (p *Pipeline) Run(ctx context.Context, catalogURL string, includeAllColors bool) (Totals, error) {
	p.mu.Lock()
	p.totals = Totals{}
	p.mu.Unlock()

	start := time.Now()
	p.logger.Info("starting crawl", "catalog", catalogURL, "all_colors", includeAllColors, "workers", p.opts.Concurrency)

	err := p.deps.Paginator.ListProducts(ctx, catalogURL, func(page int, links []string) error {
		p.count(func(t *Totals) { t.Pages++ })
		if p.deps.Metrics != nil {
			p.deps.Metrics.ObservePage()
		}
		p.logger.Info("processing page", "page", page, "products", len(links))
		return p.processPage(ctx, links, includeAllColors)
	})

	totals := p.Totals()
	if err != nil {
		p.logger.Error("crawl stopped", "error", err, "recorded", totals.Recorded)
		return totals, err
	}

	p.logger.Info("crawl finished",
		"pages", totals.Pages,
		"products", totals.Products,
		"recorded", totals.Recorded,
		"downloaded", totals.Downloaded,
		"no_asset", totals.NoAsset,
		"failed", totals.ProductsFailed,
		"duration", time.Since(start).Round(time.Millisecond))

	return totals, nil
}

// Totals returns a snapshot of the current run's counters.
func (p *Pipeline) Totals() Totals {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totals
}

func (p *Pipeline) processPage(ctx context.Context, links []string, includeAllColors bool) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for _, link := range links {
		g.Go(func() error {
			return p.processProduct(gctx, link, includeAllColors)
		})
	}

	return g.Wait()
}

// processProduct returns an error only when the run must stop.
func (p *Pipeline) processProduct(ctx context.Context, productURL string, includeAllColors bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if p.deps.Metrics != nil {
		p.deps.Metrics.WorkerStarted()
		defer p.deps.Metrics.WorkerDone()
	}

	logger := p.logger.With("product", productURL)
	p.count(func(t *Totals) { t.Products++ })

	recorded, err := p.deps.Ledger.Has(ctx, productURL)
	if err != nil {
		return p.fatal(ctx, err)
	}
	if recorded {
		logger.Info("skipping already processed product")
		p.productOutcome(metrics.ProductSkipped, func(t *Totals) { t.ProductsSkipped++ })
		return nil
	}

	variants, err := p.deps.Expander.Expand(ctx, productURL, includeAllColors)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Error("failed to process product", "error", err)
		p.productOutcome(metrics.ProductFailed, func(t *Totals) { t.ProductsFailed++ })
		return nil
	}

	for _, variantURL := range variants {
		if err := p.processVariant(ctx, variantURL, logger); err != nil {
			if errors.Is(err, ErrLedger) || ctx.Err() != nil {
				return err
			}
			logger.Error("failed to process product", "variant", variantURL, "error", err)
			p.productOutcome(metrics.ProductFailed, func(t *Totals) { t.ProductsFailed++ })
			return nil
		}
	}

	p.productOutcome(metrics.ProductProcessed, nil)
	return nil
}

func (p *Pipeline) processVariant(ctx context.Context, variantURL string, logger *slog.Logger) error {
	logger = logger.With("url", variantURL)

	if !p.claim(variantURL) {
		logger.Debug("variant already in progress")
		p.variantOutcome(metrics.VariantSkipped, func(t *Totals) { t.VariantsSkipped++ })
		return nil
	}
	defer p.release(variantURL)

	recorded, err := p.deps.Ledger.Has(ctx, variantURL)
	if err != nil {
		return p.fatal(ctx, err)
	}
	if recorded {
		logger.Info("skipping already processed variant")
		p.variantOutcome(metrics.VariantSkipped, func(t *Totals) { t.VariantsSkipped++ })
		return nil
	}

	ex := p.deps.Extractor.Extract(ctx, variantURL)
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		downloaded bool
		truncated  bool
		filePath   string
	)

	if ex.HasAsset() {
		filePath, err = p.deps.Namer.Path(variantURL, ex.Name, ex.Color, ex.AssetURL)
		if err != nil {
			return fmt.Errorf("failed to name asset: %w", err)
		}

		truncated, err = p.download(ctx, ex.AssetURL, filePath, logger)
		if err != nil {
			return err
		}
		downloaded = true
	} else {
		logger.Info("no 3D model found", "name", ex.Name, "color", ex.Color, "status", ex.Status, "reason", ex.Reason)
	}

	if ex.Degraded() && p.opts.RetryDegraded {
		logger.Warn("leaving degraded variant for the next run", "reason", ex.Reason)
		p.variantOutcome(metrics.VariantDegraded, func(t *Totals) { t.Degraded++ })
		return nil
	}

	rec := models.NewProductRecord(variantURL, ex, downloaded)
	// The asset is on disk; the record must not be lost to a late cancel.
	if err := p.deps.Ledger.Record(context.WithoutCancel(ctx), rec); err != nil {
		return fmt.Errorf("%w: %w", ErrLedger, err)
	}

	p.variantOutcome(metrics.VariantRecorded, func(t *Totals) {
		t.Recorded++
		if downloaded {
			t.Downloaded++
		}
		if truncated {
			t.Truncated++
		}
		switch ex.Status {
		case models.ExtractionNoAsset:
			t.NoAsset++
		case models.ExtractionDegraded:
			t.Degraded++
		}
	})
	if ex.Degraded() && p.deps.Metrics != nil {
		p.deps.Metrics.ObserveVariant(metrics.VariantDegraded)
	}
	if ex.Status == models.ExtractionNoAsset && p.deps.Metrics != nil {
		p.deps.Metrics.ObserveVariant(metrics.VariantNoAsset)
	}

	if err := p.deps.Publisher.Publish(ctx, events.NewAssetRecorded(rec, ex.Status, filePath)); err != nil {
		logger.Warn("failed to publish event", "error", err)
	}

	logger.Info("variant recorded", "name", rec.Name, "color", rec.Color, "downloaded", downloaded)
	return nil
}

func (p *Pipeline) download(ctx context.Context, assetURL, filePath string, logger *slog.Logger) (bool, error) {
	logger.Info("downloading 3D model", "asset", assetURL, "path", filePath)

	start := time.Now()
	result, err := p.deps.Downloader.Download(ctx, assetURL, filePath)
	if err != nil {
		if p.deps.Metrics != nil {
			p.deps.Metrics.ObserveDownload(metrics.DownloadFailed, result.Written, time.Since(start))
		}
		return false, fmt.Errorf("failed to download %s: %w", assetURL, err)
	}

	outcome := metrics.DownloadOK
	if result.Truncated() {
		outcome = metrics.DownloadTruncated
		logger.Warn("asset shorter than announced", "written", result.Written, "declared", result.Declared)
	}
	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveDownload(outcome, result.Written, time.Since(start))
	}

	return result.Truncated(), nil
}

func (p *Pipeline) fatal(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %w", ErrLedger, err)
}

func (p *Pipeline) claim(variantURL string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, busy := p.inFlight[variantURL]; busy {
		return false
	}
	p.inFlight[variantURL] = struct{}{}
	return true
}

func (p *Pipeline) release(variantURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, variantURL)
}

func (p *Pipeline) count(fn func(t *Totals)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.totals)
}

func (p *Pipeline) productOutcome(outcome string, fn func(t *Totals)) {
	if fn != nil {
		p.count(fn)
	}
	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveProduct(outcome)
	}
}

func (p *Pipeline) variantOutcome(outcome string, fn func(t *Totals)) {
	p.count(fn)
	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveVariant(outcome)
	}
}
