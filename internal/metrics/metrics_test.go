package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObservePage()
	m.ObservePage()
	m.ObserveProduct(ProductProcessed)
	m.ObserveProduct(ProductSkipped)
	m.ObserveVariant(VariantRecorded)
	m.ObserveDownload(DownloadOK, 2048, 150*time.Millisecond)
	m.WorkerStarted()
	m.WorkerStarted()
	m.WorkerDone()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PagesCrawled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Products.WithLabelValues(ProductProcessed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Products.WithLabelValues(ProductSkipped)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Products.WithLabelValues(ProductFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Variants.WithLabelValues(VariantRecorded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Downloads.WithLabelValues(DownloadOK)))
	assert.Equal(t, 2048.0, testutil.ToFloat64(m.DownloadedBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveWorkers))
}

func TestNew_SeparateRegistries(t *testing.T) {
	require.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
