package scraper

import (
	"context"
	"errors"
	"log/slog"

	"github.com/maltedev/glb-scraper/internal/browser"
)

// PageFunc receives the product links of one catalog page.
type PageFunc func(page int, links []string) error

// CatalogCrawler walks the numbered pages of a category listing.
type CatalogCrawler struct {
	renderer  browser.Renderer
	selectors Selectors
	logger    *slog.Logger
}

func NewCatalogCrawler(renderer browser.Renderer, selectors Selectors, logger *slog.Logger) *CatalogCrawler {
	return &CatalogCrawler{
		renderer:  renderer,
		selectors: selectors,
		logger:    logger.With("component", "catalog_crawler"),
	}
}

// ListProducts visits pages 1, 2, ... and hands each page's links to fn. It
// stops at the first page without links, when fn fails, or when ctx ends.
func (c *CatalogCrawler) ListProducts(ctx context.Context, catalogURL string, fn PageFunc) error {
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.logger.Info("fetching product links", "page", page)
		links := c.CrawlPage(ctx, catalogURL, page)

		if len(links) == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			c.logger.Info("no products found, finishing", "page", page)
			return nil
		}

		if err := fn(page, links); err != nil {
			return err
		}
	}
}

// CrawlPage returns the distinct product links on one catalog page. Every
// failure, including a wait timeout, yields an empty result.
func (c *CatalogCrawler) CrawlPage(ctx context.Context, catalogURL string, pageNumber int) []string {
	pageURL := PageURL(catalogURL, pageNumber)
	logger := c.logger.With("page", pageNumber, "url", pageURL)

	session, err := c.renderer.Open(ctx, pageURL)
	if err != nil {
		logger.Error("failed to open catalog page", "error", err)
		return nil
	}
	defer closeSession(session, logger)

	if err := session.WaitForElement(c.selectors.ProductGrid, c.selectors.GridTimeout); err != nil {
		c.logWaitFailure(logger, "product grid", err)
		return nil
	}

	if _, err := session.ScrollToBottomUntilStable(c.selectors.ScrollInterval); err != nil {
		if !errors.Is(err, browser.ErrScrollLimit) {
			logger.Error("failed to scroll catalog page", "error", err)
			return nil
		}
		logger.Warn("page kept growing, using the products loaded so far")
	}

	if err := session.WaitForElement(c.selectors.ProductLink, c.selectors.LinkTimeout); err != nil {
		c.logWaitFailure(logger, "product links", err)
		return nil
	}

	elements, err := session.FindAll(c.selectors.ProductLink)
	if err != nil {
		logger.Error("failed to find product links", "error", err)
		return nil
	}

	links, err := collectLinks(pageURL, elements)
	if err != nil {
		logger.Error("failed to read product links", "error", err)
		return nil
	}

	logger.Info("found products on page", "count", len(links))
	return links
}

func (c *CatalogCrawler) logWaitFailure(logger *slog.Logger, what string, err error) {
	if isTimeout(err) {
		logger.Warn("timeout while loading products", "waiting_for", what)
		return
	}
	logger.Error("failed while loading products", "waiting_for", what, "error", err)
}
