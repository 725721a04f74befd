package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/glb-scraper/internal/browser"
)

// VariantExpander finds the color variants of a product.
type VariantExpander struct {
	renderer  browser.Renderer
	selectors Selectors
	logger    *slog.Logger
}

func NewVariantExpander(renderer browser.Renderer, selectors Selectors, logger *slog.Logger) *VariantExpander {
	return &VariantExpander{
		renderer:  renderer,
		selectors: selectors,
		logger:    logger.With("component", "variant_expander"),
	}
}

// Expand returns productURL followed by the sibling variant URLs listed in
// the product's style picker. Without includeAllColors no page is opened. A
// product without a style picker has only itself as variant.
func (e *VariantExpander) Expand(ctx context.Context, productURL string, includeAllColors bool) ([]string, error) {
	variants := []string{productURL}
	if !includeAllColors {
		return variants, nil
	}

	logger := e.logger.With("url", productURL)

	session, err := e.renderer.Open(ctx, productURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open product page: %w", err)
	}
	defer closeSession(session, logger)

	if err := session.WaitForElement(e.selectors.StylePicker, e.selectors.StylePickerTimeout); err != nil {
		if isTimeout(err) {
			logger.Debug("no style picker on product page")
			return variants, nil
		}
		return nil, fmt.Errorf("failed to wait for style picker: %w", err)
	}

	elements, err := session.FindAll(e.selectors.VariantLink)
	if err != nil {
		return nil, fmt.Errorf("failed to find variant links: %w", err)
	}

	siblings, err := collectLinks(productURL, elements, productURL)
	if err != nil {
		return nil, fmt.Errorf("failed to read variant links: %w", err)
	}

	return append(variants, siblings...), nil
}
