package scraper

import (
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/maltedev/glb-scraper/internal/browser"
	"github.com/maltedev/glb-scraper/internal/parser"
)

// Selectors and wait bounds for the storefront's pages.
type Selectors struct {
	ProductGrid    string
	ProductLink    string
	GridTimeout    time.Duration
	LinkTimeout    time.Duration
	ScrollInterval time.Duration

	StylePicker        string
	VariantLink        string
	StylePickerTimeout time.Duration

	Title             string
	AssetDescriptor   string
	TitleTimeout      time.Duration
	DescriptorTimeout time.Duration
}

func DefaultSelectors() Selectors {
	return Selectors{
		ProductGrid:    ".plp-fragment-wrapper",
		ProductLink:    ".plp-fragment-wrapper a.plp-product__image-link",
		GridTimeout:    30 * time.Second,
		LinkTimeout:    30 * time.Second,
		ScrollInterval: 2 * time.Second,

		StylePicker:        ".js-product-style-picker",
		VariantLink:        ".js-product-style-picker .pip-product-styles__link",
		StylePickerTimeout: 10 * time.Second,

		Title:             "title",
		AssetDescriptor:   parser.DefaultDescriptorElement,
		TitleTimeout:      10 * time.Second,
		DescriptorTimeout: 5 * time.Second,
	}
}

// PageURL appends the page query parameter to a catalog URL.
func PageURL(catalogURL string, page int) string {
	sep := "?"
	if strings.Contains(catalogURL, "?") {
		sep = "&"
	}
	return catalogURL + sep + "page=" + strconv.Itoa(page)
}

// resolveLink makes href absolute against base. Empty and unparsable hrefs
// are rejected.
func resolveLink(base, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if ref.IsAbs() {
		return ref.String(), true
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	return baseURL.ResolveReference(ref).String(), true
}

// collectLinks reads href from every element, resolving and deduplicating
// while keeping first-seen order. Hrefs in skip are dropped.
func collectLinks(base string, elements []browser.Element, skip ...string) ([]string, error) {
	seen := make(map[string]struct{}, len(elements)+len(skip))
	for _, s := range skip {
		seen[s] = struct{}{}
	}

	links := make([]string, 0, len(elements))
	for _, el := range elements {
		href, err := el.Attribute("href")
		if err != nil {
			return nil, err
		}

		link, ok := resolveLink(base, href)
		if !ok {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}

	return links, nil
}

func closeSession(session browser.Session, logger *slog.Logger) {
	if err := session.Close(); err != nil {
		logger.Warn("failed to close session", "error", err)
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, browser.ErrTimeout)
}
