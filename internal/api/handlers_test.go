package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/glb-scraper/internal/database"
	"github.com/maltedev/glb-scraper/internal/metrics"
	"github.com/maltedev/glb-scraper/internal/models"
	"github.com/maltedev/glb-scraper/internal/pipeline"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, variantURL string) (*models.ProductRecord, error) {
	args := m.Called(ctx, variantURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProductRecord), args.Error(1)
}

func (m *MockStore) List(ctx context.Context, limit, offset int) ([]models.ProductRecord, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ProductRecord), args.Error(1)
}

func (m *MockStore) Stats(ctx context.Context) (*models.LedgerStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerStats), args.Error(1)
}

type fixedRun pipeline.Totals

func (f fixedRun) Totals() pipeline.Totals { return pipeline.Totals(f) }

func newTestServer(t *testing.T, store Store, run RunStatus) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	metrics.New(reg).ObservePage()

	server := httptest.NewServer(NewRouter(NewHandlers(store, run, logger), reg))
	t.Cleanup(server.Close)
	return server
}

func chair() *models.ProductRecord {
	return &models.ProductRecord{
		URL:        "https://example.com/p1",
		Name:       "Chair",
		Color:      "Red",
		AssetURL:   sql.NullString{String: "https://cdn/chair.glb", Valid: true},
		Downloaded: true,
	}
}

func getJSON(t *testing.T, url string, target interface{}) int {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	if target != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		store := new(MockStore)
		store.On("Stats", mock.Anything).Return(&models.LedgerStats{}, nil)
		server := newTestServer(t, store, nil)

		var body map[string]string
		assert.Equal(t, http.StatusOK, getJSON(t, server.URL+"/health", &body))
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("ledger down", func(t *testing.T) {
		store := new(MockStore)
		store.On("Stats", mock.Anything).Return(nil, errors.New("database is locked"))
		server := newTestServer(t, store, nil)

		assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, server.URL+"/health", nil))
	})
}

func TestGetStats(t *testing.T) {
	store := new(MockStore)
	store.On("Stats", mock.Anything).Return(&models.LedgerStats{
		Total: 3, Downloaded: 2, Missing: 1, CheckedAt: time.Now(),
	}, nil)
	server := newTestServer(t, store, fixedRun{Pages: 2, Recorded: 3})

	var body StatsResponse
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/api/v1/stats", &body))
	assert.Equal(t, 3, body.Ledger.Total)
	assert.Equal(t, 1, body.Ledger.Missing)
	require.NotNil(t, body.Run)
	assert.Equal(t, 2, body.Run.Pages)
}

func TestListProducts(t *testing.T) {
	store := new(MockStore)
	store.On("List", mock.Anything, 2, 4).Return([]models.ProductRecord{
		*chair(),
		{URL: "https://example.com/p2", Name: "Lamp", Color: "Default"},
	}, nil)
	server := newTestServer(t, store, nil)

	var body ListResponse
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/api/v1/products?limit=2&offset=4", &body))
	require.Len(t, body.Products, 2)
	assert.Equal(t, "https://cdn/chair.glb", body.Products[0].GLBURL)
	assert.Empty(t, body.Products[1].GLBURL)
	assert.Equal(t, 2, body.Limit)
	store.AssertExpectations(t)
}

func TestListProducts_BadParams(t *testing.T) {
	server := newTestServer(t, new(MockStore), nil)

	for _, query := range []string{"limit=0", "limit=abc", "limit=1000", "offset=-1"} {
		t.Run(query, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, getJSON(t, server.URL+"/api/v1/products?"+query, nil))
		})
	}
}

func TestLookupProduct(t *testing.T) {
	store := new(MockStore)
	store.On("Get", mock.Anything, "https://example.com/p1").Return(chair(), nil)
	store.On("Get", mock.Anything, "https://example.com/missing").Return(nil, database.ErrNotFound)
	server := newTestServer(t, store, nil)

	lookup := func(variantURL string) string {
		return server.URL + "/api/v1/products/lookup?url=" + url.QueryEscape(variantURL)
	}

	var body ProductResponse
	require.Equal(t, http.StatusOK, getJSON(t, lookup("https://example.com/p1"), &body))
	assert.Equal(t, "Chair", body.Name)
	assert.True(t, body.Downloaded)

	assert.Equal(t, http.StatusNotFound, getJSON(t, lookup("https://example.com/missing"), nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, server.URL+"/api/v1/products/lookup", nil))
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, new(MockStore), nil)

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "glb_scraper_catalog_pages_total 1")
}
