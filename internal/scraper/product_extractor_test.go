package scraper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maltedev/glb-scraper/internal/browser/browsertest"
	"github.com/maltedev/glb-scraper/internal/models"
	"github.com/maltedev/glb-scraper/internal/parser"
)

const descriptorHTML = `<html><head><title>Chair, Red - IKEA</title>` +
	`<script id="pip-xr-viewer-model" type="application/json">{"url":"https://cdn.example/chair.glb"}</script>` +
	`</head></html>`

func variantPage(title, html string, withDescriptor bool) *browsertest.Page {
	page := &browsertest.Page{Title: title, HTML: html, Elements: map[string][]browsertest.Element{}}
	if withDescriptor {
		page.Elements[parser.DefaultDescriptorElement] = []browsertest.Element{{}}
	}
	return page
}

func TestExtract(t *testing.T) {
	selectors := DefaultSelectors()

	tests := []struct {
		name     string
		page     *browsertest.Page
		expected models.Extraction
	}{
		{
			name: "Asset found",
			page: variantPage("Chair, Red - IKEA", descriptorHTML, true),
			expected: models.Extraction{
				Name: "Chair", Color: "Red", AssetURL: "https://cdn.example/chair.glb", Status: models.ExtractionOK,
			},
		},
		{
			name: "Relative asset URL",
			page: variantPage("Chair, Red - IKEA",
				`<script id="pip-xr-viewer-model" type="application/json">{"url":"/models/chair.glb"}</script>`, true),
			expected: models.Extraction{
				Name: "Chair", Color: "Red", AssetURL: "https://shop.example/models/chair.glb", Status: models.ExtractionOK,
			},
		},
		{
			name: "No descriptor element",
			page: variantPage("LACK Side table - IKEA", "<html></html>", false),
			expected: models.Extraction{
				Name: "LACK Side table", Color: "Default", Status: models.ExtractionNoAsset, Reason: models.ReasonAssetTimeout,
			},
		},
		{
			name: "Descriptor without url",
			page: variantPage("Chair, Red - IKEA",
				`<script id="pip-xr-viewer-model" type="application/json">{"format":"glb"}</script>`, true),
			expected: models.Extraction{Name: "Chair", Color: "Red", Status: models.ExtractionNoAsset},
		},
		{
			name: "Malformed descriptor",
			page: variantPage("Chair, Red - IKEA",
				`<script id="pip-xr-viewer-model" type="application/json">{"url":</script>`, true),
			expected: models.Extraction{
				Name: "Chair", Color: "Red", Status: models.ExtractionDegraded, Reason: models.ReasonAssetParse,
			},
		},
		{
			name: "Title timeout",
			page: variantPage("", "", false),
			expected: models.Extraction{
				Name: "Unknown", Color: "Unknown", Status: models.ExtractionDegraded, Reason: models.ReasonTitleTimeout,
			},
		},
		{
			name: "Title wait error",
			page: &browsertest.Page{WaitErr: map[string]error{selectors.Title: errors.New("target closed")}},
			expected: models.Extraction{
				Name: "Unknown", Color: "Unknown", Status: models.ExtractionDegraded, Reason: models.ReasonTitleError,
			},
		},
		{
			name: "Open fails",
			page: &browsertest.Page{OpenErr: errors.New("net::ERR_NAME_NOT_RESOLVED")},
			expected: models.Extraction{
				Name: "Unknown", Color: "Unknown", Status: models.ExtractionDegraded, Reason: models.ReasonOpenFailed,
			},
		},
		{
			name: "Descriptor wait error",
			page: func() *browsertest.Page {
				p := variantPage("Chair, Red - IKEA", descriptorHTML, false)
				p.WaitErr = map[string]error{parser.DefaultDescriptorElement: errors.New("target closed")}
				return p
			}(),
			expected: models.Extraction{
				Name: "Chair", Color: "Red", Status: models.ExtractionDegraded, Reason: models.ReasonAssetError,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			renderer := browsertest.New()
			renderer.AddPage(testProduct, tt.page)

			extractor := NewProductExtractor(renderer, parser.NewStorefrontParser(""), selectors, testLogger())
			result := extractor.Extract(context.Background(), testProduct)

			assert.Equal(t, tt.expected, result)
			assert.Equal(t, 0, renderer.Live())
		})
	}
}

func TestExtract_TitleFromDocument(t *testing.T) {
	selectors := DefaultSelectors()
	page := variantPage("", descriptorHTML, true)
	page.Elements[selectors.Title] = []browsertest.Element{{}}

	renderer := browsertest.New()
	renderer.AddPage(testProduct, page)

	extractor := NewProductExtractor(renderer, parser.NewStorefrontParser(""), selectors, testLogger())
	result := extractor.Extract(context.Background(), testProduct)

	assert.Equal(t, "Chair", result.Name)
	assert.Equal(t, "Red", result.Color)
	assert.Equal(t, models.ExtractionOK, result.Status)
}
