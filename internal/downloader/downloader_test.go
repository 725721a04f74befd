package downloader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingProgress struct {
	name    string
	total   int64
	updates []int64
	done    bool
	failed  bool
}

func (p *recordingProgress) Start(name string, total int64) Tracker {
	p.name, p.total = name, total
	return p
}

func (p *recordingProgress) Set(written int64) { p.updates = append(p.updates, written) }
func (p *recordingProgress) Done()             { p.done = true }
func (p *recordingProgress) Fail()             { p.failed = true }

func TestDownload(t *testing.T) {
	payload := bytes.Repeat([]byte("glTF"), 1000)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload)
	}))
	defer server.Close()

	progress := &recordingProgress{}
	d := New(server.Client(), Options{ChunkSize: 1024, Progress: progress}, testLogger())

	dest := filepath.Join(t.TempDir(), "downloads", "Chair - Red.glb")
	result, err := d.Download(context.Background(), server.URL+"/chair.glb", dest)
	require.NoError(t, err)

	assert.Equal(t, int64(len(payload)), result.Written)
	assert.Equal(t, int64(len(payload)), result.Declared)
	assert.False(t, result.Truncated())

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	assert.Equal(t, "Chair - Red.glb", progress.name)
	assert.Equal(t, int64(len(payload)), progress.total)
	require.NotEmpty(t, progress.updates)
	assert.Equal(t, int64(len(payload)), progress.updates[len(progress.updates)-1])
	for i := 1; i < len(progress.updates); i++ {
		assert.Greater(t, progress.updates[i], progress.updates[i-1])
	}
	assert.True(t, progress.done)
}

func TestDownload_OverwritesExistingFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("new"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "Chair - Red.glb")
	require.NoError(t, os.WriteFile(dest, []byte("previous, longer content"), 0o644))

	d := New(server.Client(), Options{}, testLogger())
	result, err := d.Download(context.Background(), server.URL, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Written)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestDownload_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "missing.glb")
	d := New(server.Client(), Options{}, testLogger())

	_, err := d.Download(context.Background(), server.URL+"/missing.glb", dest)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusNotFound, transportErr.StatusCode)
	assert.NoFileExists(t, dest)
}

type failingDoer struct{ err error }

func (f failingDoer) Do(*http.Request) (*http.Response, error) { return nil, f.err }

func TestDownload_TransportFailure(t *testing.T) {
	refused := errors.New("connection refused")
	d := New(failingDoer{refused}, Options{}, testLogger())

	_, err := d.Download(context.Background(), "https://cdn.example/chair.glb", filepath.Join(t.TempDir(), "x.glb"))
	assert.ErrorIs(t, err, refused)
}

func TestDownload_ShortBodyAccepted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.Write([]byte("glTF..."))
	}))
	defer server.Close()

	progress := &recordingProgress{}
	d := New(server.Client(), Options{ChunkSize: 4, Progress: progress}, testLogger())

	dest := filepath.Join(t.TempDir(), "c.glb")
	result, err := d.Download(context.Background(), server.URL+"/chair.glb", dest)
	require.NoError(t, err)

	assert.True(t, result.Truncated())
	assert.Equal(t, int64(100), result.Declared)
	assert.Equal(t, int64(7), result.Written)
	assert.True(t, progress.done)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "glTF...", string(data))
}

type brokenReader struct{ err error }

func (r brokenReader) Read([]byte) (int, error) { return 0, r.err }

type brokenWriter struct{ err error }

func (w brokenWriter) Write([]byte) (int, error) { return 0, w.err }

func TestCopyChunks_SeparatesFailures(t *testing.T) {
	reset := errors.New("connection reset by peer")
	diskFull := errors.New("no space left on device")
	d := New(failingDoer{}, Options{ChunkSize: 4}, testLogger())

	tests := []struct {
		name     string
		dst      io.Writer
		src      io.Reader
		readErr  error
		writeErr error
	}{
		{"Read failure", io.Discard, brokenReader{reset}, reset, nil},
		{"Write failure", brokenWriter{diskFull}, bytes.NewReader([]byte("glTF")), nil, diskFull},
		{"Clean EOF", io.Discard, bytes.NewReader([]byte("glTF")), nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, readErr, writeErr := d.copyChunks(tt.dst, tt.src, nopTracker{})
			assert.Equal(t, tt.readErr, readErr)
			assert.Equal(t, tt.writeErr, writeErr)
		})
	}
}

type brokenBodyDoer struct{ err error }

func (d brokenBodyDoer) Do(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Body:       io.NopCloser(brokenReader{d.err}),
		Request:    req,
	}, nil
}

func TestDownload_ReadFailure(t *testing.T) {
	reset := errors.New("connection reset by peer")
	progress := &recordingProgress{}
	d := New(brokenBodyDoer{reset}, Options{Progress: progress}, testLogger())

	_, err := d.Download(context.Background(), "https://cdn.example/chair.glb", filepath.Join(t.TempDir(), "c.glb"))
	require.ErrorIs(t, err, reset)
	assert.Contains(t, err.Error(), "failed to read asset body")
	assert.True(t, progress.failed)
}

func TestDownload_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := New(server.Client(), Options{}, testLogger())
	_, err := d.Download(ctx, server.URL, filepath.Join(t.TempDir(), "c.glb"))
	assert.ErrorIs(t, err, context.Canceled)
}
