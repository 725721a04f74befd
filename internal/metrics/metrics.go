// Package metrics exposes Prometheus counters for a crawl run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "glb_scraper"

// Outcome labels.
const (
	ProductProcessed = "processed"
	ProductSkipped   = "skipped"
	ProductFailed    = "failed"

	VariantRecorded = "recorded"
	VariantSkipped  = "skipped"
	VariantDegraded = "degraded"
	VariantNoAsset  = "no_asset"

	DownloadOK        = "ok"
	DownloadTruncated = "truncated"
	DownloadFailed    = "failed"
)

type Metrics struct {
	PagesCrawled     prometheus.Counter
	Products         *prometheus.CounterVec
	Variants         *prometheus.CounterVec
	Downloads        *prometheus.CounterVec
	DownloadedBytes  prometheus.Counter
	DownloadDuration prometheus.Histogram
	ActiveWorkers    prometheus.Gauge
}

// New registers the crawl metrics with reg, or the default registerer when
// reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		PagesCrawled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "catalog_pages_total",
			Help:      "Catalog pages that returned product links",
		}),
		Products: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "products_total",
			Help:      "Product links handled, by outcome",
		}, []string{"outcome"}),
		Variants: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "variants_total",
			Help:      "Color variants handled, by outcome",
		}, []string{"outcome"}),
		Downloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "downloads_total",
			Help:      "Asset downloads, by result",
		}, []string{"result"}),
		DownloadedBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes written to asset files",
		}),
		DownloadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "download_duration_seconds",
			Help:      "Time spent fetching one asset",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		ActiveWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_workers",
			Help:      "Products currently being processed",
		}),
	}
}

func (m *Metrics) ObservePage() {
	m.PagesCrawled.Inc()
}

func (m *Metrics) ObserveProduct(outcome string) {
	m.Products.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveVariant(outcome string) {
	m.Variants.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDownload(result string, written int64, took time.Duration) {
	m.Downloads.WithLabelValues(result).Inc()
	m.DownloadedBytes.Add(float64(written))
	m.DownloadDuration.Observe(took.Seconds())
}

func (m *Metrics) WorkerStarted() { m.ActiveWorkers.Inc() }
func (m *Metrics) WorkerDone()    { m.ActiveWorkers.Dec() }
