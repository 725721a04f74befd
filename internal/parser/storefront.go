package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/glb-scraper/internal/models"
)

const (
	DefaultStoreSuffix       = " - IKEA"
	DefaultDescriptorElement = "#pip-xr-viewer-model"
)

type assetDescriptor struct {
	URL string `json:"url"`
}

// StorefrontParser reads product pages of a storefront whose titles look
// like "<name>, <color> - <store>" and which embed the 3D model descriptor
// as JSON in a script element.
type StorefrontParser struct {
	storeSuffix        string
	descriptorSelector string
}

func NewStorefrontParser(storeSuffix string) *StorefrontParser {
	if storeSuffix == "" {
		storeSuffix = DefaultStoreSuffix
	}
	return &StorefrontParser{
		storeSuffix:        storeSuffix,
		descriptorSelector: DefaultDescriptorElement,
	}
}

// ParseTitle splits a page title into name and color. A title without a
// comma is all name with the default color; an empty title is unknown.
func (p *StorefrontParser) ParseTitle(title string) Title {
	title = strings.TrimSpace(title)
	if title == "" {
		return Title{Name: models.UnknownValue, Color: models.UnknownValue}
	}

	head, _, _ := strings.Cut(title, p.storeSuffix)

	name, color, found := strings.Cut(head, ",")
	name = strings.TrimSpace(name)
	if name == "" {
		name = models.UnknownValue
	}
	if !found {
		return Title{Name: name, Color: models.DefaultColor}
	}

	color = strings.TrimSpace(color)
	if color == "" {
		color = models.DefaultColor
	}
	return Title{Name: name, Color: color}
}

func (p *StorefrontParser) DocumentTitle(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		return "", ErrNoTitle
	}
	return title, nil
}

// ExtractAssetURL finds the descriptor element in html and returns its url
// field. An empty string with a nil error means the descriptor carries no
// asset.
func (p *StorefrontParser) ExtractAssetURL(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	sel := doc.Find(p.descriptorSelector).First()
	if sel.Length() == 0 {
		return "", ErrNoDescriptor
	}

	return ParseAssetDescriptor(sel.Text())
}

func ParseAssetDescriptor(raw string) (string, error) {
	var descriptor assetDescriptor
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &descriptor); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	return strings.TrimSpace(descriptor.URL), nil
}
