package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/maltedev/glb-scraper/internal/database"
	"github.com/maltedev/glb-scraper/internal/models"
	"github.com/maltedev/glb-scraper/internal/pipeline"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Store is the read side of the ledger.
type Store interface {
	Get(ctx context.Context, variantURL string) (*models.ProductRecord, error)
	List(ctx context.Context, limit, offset int) ([]models.ProductRecord, error)
	Stats(ctx context.Context) (*models.LedgerStats, error)
}

// RunStatus reports the counters of the crawl in progress.
type RunStatus interface {
	Totals() pipeline.Totals
}

type Handlers struct {
	store  Store
	run    RunStatus
	logger *slog.Logger
}

func NewHandlers(store Store, run RunStatus, logger *slog.Logger) *Handlers {
	return &Handlers{
		store:  store,
		run:    run,
		logger: logger.With("component", "api"),
	}
}

// ProductResponse is the wire form of a ledger record.
type ProductResponse struct {
	URL        string `json:"url"`
	Name       string `json:"name"`
	Color      string `json:"color"`
	GLBURL     string `json:"glb_url,omitempty"`
	Downloaded bool   `json:"downloaded"`
}

func newProductResponse(rec *models.ProductRecord) ProductResponse {
	return ProductResponse{
		URL:        rec.URL,
		Name:       rec.Name,
		Color:      rec.Color,
		GLBURL:     rec.Asset(),
		Downloaded: rec.Downloaded,
	}
}

type StatsResponse struct {
	Ledger *models.LedgerStats `json:"ledger"`
	Run    *pipeline.Totals    `json:"run,omitempty"`
}

type ListResponse struct {
	Products []ProductResponse `json:"products"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.Stats(r.Context()); err != nil {
		h.logger.Error("health check failed", "error", err)
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "message": "ledger unavailable"})
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to get stats", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	resp := StatsResponse{Ledger: stats}
	if h.run != nil {
		totals := h.run.Totals()
		resp.Run = &totals
	}
	h.respondJSON(w, http.StatusOK, resp)
}

func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil || limit < 1 || limit > maxPageSize {
		h.respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		h.respondError(w, http.StatusBadRequest, "offset must not be negative")
		return
	}

	records, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list products")
		return
	}

	products := make([]ProductResponse, len(records))
	for i := range records {
		products[i] = newProductResponse(&records[i])
	}

	h.respondJSON(w, http.StatusOK, ListResponse{Products: products, Limit: limit, Offset: offset})
}

func (h *Handlers) LookupProduct(w http.ResponseWriter, r *http.Request) {
	variantURL := r.URL.Query().Get("url")
	if variantURL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	rec, err := h.store.Get(r.Context(), variantURL)
	if errors.Is(err, database.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get product", "error", err, "url", variantURL)
		h.respondError(w, http.StatusInternalServerError, "failed to get product")
		return
	}

	h.respondJSON(w, http.StatusOK, newProductResponse(rec))
}

func queryInt(r *http.Request, key string, defaultValue int) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
