package parser

import "errors"

var (
	ErrNoTitle           = errors.New("page has no title")
	ErrNoDescriptor      = errors.New("asset descriptor not found")
	ErrInvalidDescriptor = errors.New("invalid asset descriptor")
)

// Title is a product page title split into its display name and color.
type Title struct {
	Name  string
	Color string
}

type Parser interface {
	ParseTitle(title string) Title
	DocumentTitle(html string) (string, error)
	ExtractAssetURL(html string) (string, error)
}
