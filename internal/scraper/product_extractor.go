package scraper

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/maltedev/glb-scraper/internal/browser"
	"github.com/maltedev/glb-scraper/internal/models"
	"github.com/maltedev/glb-scraper/internal/parser"
)

// ProductExtractor reads the display name, color and 3D asset URL of one
// variant page.
type ProductExtractor struct {
	renderer  browser.Renderer
	parser    parser.Parser
	selectors Selectors
	logger    *slog.Logger
}

func NewProductExtractor(renderer browser.Renderer, p parser.Parser, selectors Selectors, logger *slog.Logger) *ProductExtractor {
	return &ProductExtractor{
		renderer:  renderer,
		parser:    p,
		selectors: selectors,
		logger:    logger.With("component", "product_extractor"),
	}
}

// Extract never fails. Problems reading the page show up as a degraded
// result carrying whatever was read before the failure.
func (pe *ProductExtractor) Extract(ctx context.Context, variantURL string) models.Extraction {
	logger := pe.logger.With("url", variantURL)
	result := models.Extraction{
		Name:   models.UnknownValue,
		Color:  models.UnknownValue,
		Status: models.ExtractionDegraded,
	}

	session, err := pe.renderer.Open(ctx, variantURL)
	if err != nil {
		logger.Warn("failed to load page", "error", err)
		result.Reason = models.ReasonOpenFailed
		return result
	}
	defer closeSession(session, logger)

	if err := session.WaitForElement(pe.selectors.Title, pe.selectors.TitleTimeout); err != nil {
		if isTimeout(err) {
			logger.Warn("timeout while loading page")
			result.Reason = models.ReasonTitleTimeout
		} else {
			logger.Error("failed waiting for page title", "error", err)
			result.Reason = models.ReasonTitleError
		}
		return result
	}

	title := pe.parser.ParseTitle(pe.readTitle(session))
	result.Name, result.Color = title.Name, title.Color

	if err := session.WaitForElement(pe.selectors.AssetDescriptor, pe.selectors.DescriptorTimeout); err != nil {
		if isTimeout(err) {
			logger.Info("asset descriptor not found")
			result.Status = models.ExtractionNoAsset
			result.Reason = models.ReasonAssetTimeout
			return result
		}
		logger.Error("failed waiting for asset descriptor", "error", err)
		result.Reason = models.ReasonAssetError
		return result
	}

	html, err := session.Content()
	if err != nil {
		logger.Error("failed to read page content", "error", err)
		result.Reason = models.ReasonAssetError
		return result
	}

	assetURL, err := pe.parser.ExtractAssetURL(html)
	switch {
	case errors.Is(err, parser.ErrInvalidDescriptor):
		logger.Warn("failed to decode asset descriptor", "error", err)
		result.Reason = models.ReasonAssetParse
	case errors.Is(err, parser.ErrNoDescriptor):
		result.Status = models.ExtractionNoAsset
	case err != nil:
		logger.Error("failed to parse page content", "error", err)
		result.Reason = models.ReasonAssetError
	case assetURL == "":
		result.Status = models.ExtractionNoAsset
	default:
		if resolved, ok := resolveLink(variantURL, assetURL); ok {
			assetURL = resolved
		}
		result.AssetURL = assetURL
		result.Status = models.ExtractionOK
	}

	return result
}

// readTitle prefers document.title and falls back to the title element in
// the page source.
func (pe *ProductExtractor) readTitle(session browser.Session) string {
	title, err := session.Title()
	if err == nil && strings.TrimSpace(title) != "" {
		return title
	}

	html, err := session.Content()
	if err != nil {
		return ""
	}
	title, err = pe.parser.DocumentTitle(html)
	if err != nil {
		return ""
	}
	return title
}
