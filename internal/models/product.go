package models

import (
	"database/sql"
	"time"
)

const (
	DefaultColor = "Default"
	UnknownValue = "Unknown"
)

// ProductRecord is one processed color variant. It is keyed by VariantURL
// and written exactly once.
type ProductRecord struct {
	URL        string         `db:"url" json:"url"`
	Name       string         `db:"name" json:"name"`
	Color      string         `db:"color" json:"color"`
	AssetURL   sql.NullString `db:"glb_url" json:"-"`
	Downloaded bool           `db:"downloaded" json:"downloaded"`
}

func NewProductRecord(variantURL string, ex Extraction, downloaded bool) *ProductRecord {
	rec := &ProductRecord{
		URL:        variantURL,
		Name:       ex.Name,
		Color:      ex.Color,
		Downloaded: downloaded,
	}
	if ex.AssetURL != "" {
		rec.AssetURL = sql.NullString{String: ex.AssetURL, Valid: true}
	}
	return rec
}

// Asset returns the asset URL or "" when none was found.
func (r *ProductRecord) Asset() string {
	if !r.AssetURL.Valid {
		return ""
	}
	return r.AssetURL.String
}

type ExtractionStatus string

const (
	ExtractionOK       ExtractionStatus = "ok"
	ExtractionNoAsset  ExtractionStatus = "no_asset"
	ExtractionDegraded ExtractionStatus = "degraded"
)

// Degradation reasons.
const (
	ReasonOpenFailed   = "open_failed"
	ReasonTitleTimeout = "title_timeout"
	ReasonTitleError   = "title_error"
	ReasonAssetTimeout = "asset_timeout"
	ReasonAssetParse   = "asset_parse"
	ReasonAssetError   = "asset_error"
)

// Extraction is the best-effort result of reading a variant page. Status
// separates "the page has no asset" from "the page could not be read".
type Extraction struct {
	Name     string           `json:"name"`
	Color    string           `json:"color"`
	AssetURL string           `json:"asset_url,omitempty"`
	Status   ExtractionStatus `json:"status"`
	Reason   string           `json:"reason,omitempty"`
}

func (e Extraction) HasAsset() bool {
	return e.AssetURL != ""
}

func (e Extraction) Degraded() bool {
	return e.Status == ExtractionDegraded
}

// LedgerStats summarizes the ledger contents.
type LedgerStats struct {
	Total      int       `json:"total"`
	Downloaded int       `json:"downloaded"`
	Missing    int       `json:"missing"`
	CheckedAt  time.Time `json:"checked_at"`
}
