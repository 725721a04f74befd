package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
)

const DefaultChunkSize = 32 * 1024

// Doer is the part of *http.Client the downloader needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TransportError reports an asset fetch that got a non-2xx answer.
type TransportError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("unexpected status %s fetching %s", e.Status, e.URL)
}

type Result struct {
	Written  int64
	Declared int64
}

// Truncated reports whether fewer bytes arrived than the server announced.
func (r Result) Truncated() bool {
	return r.Declared > 0 && r.Written < r.Declared
}

type Options struct {
	ChunkSize int
	Progress  Progress
}

type Downloader struct {
	client    Doer
	chunkSize int
	progress  Progress
	logger    *slog.Logger
}

func New(client Doer, opts Options, logger *slog.Logger) *Downloader {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Progress == nil {
		opts.Progress = NopProgress{}
	}

	return &Downloader{
		client:    client,
		chunkSize: opts.ChunkSize,
		progress:  opts.Progress,
		logger:    logger.With("component", "downloader"),
	}
}

// Download streams assetURL into destPath, replacing any existing file.
// A body shorter than its Content-Length is not an error; see
// Result.Truncated.
func (d *Downloader) Download(ctx context.Context, assetURL, destPath string) (Result, error) {
	var result Result

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return result, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return result, fmt.Errorf("failed to fetch asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return result, &TransportError{URL: assetURL, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	if resp.ContentLength > 0 {
		result.Declared = resp.ContentLength
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return result, fmt.Errorf("failed to create download directory: %w", err)
	}

	file, err := os.Create(destPath)
	if err != nil {
		return result, fmt.Errorf("failed to create file: %w", err)
	}

	tracker := d.progress.Start(filepath.Base(destPath), result.Declared)
	written, readErr, writeErr := d.copyChunks(file, resp.Body, tracker)
	result.Written = written
	closeErr := file.Close()

	// net/http reports a body shorter than its Content-Length as
	// io.ErrUnexpectedEOF; that is a truncated download, not a failure.
	if errors.Is(readErr, io.ErrUnexpectedEOF) && result.Declared > 0 && ctx.Err() == nil {
		readErr = nil
	}

	switch {
	case writeErr != nil:
		err = fmt.Errorf("failed to write %s: %w", destPath, writeErr)
	case readErr != nil:
		err = fmt.Errorf("failed to read asset body: %w", readErr)
	case closeErr != nil:
		err = fmt.Errorf("failed to close %s: %w", destPath, closeErr)
	}
	if err != nil {
		tracker.Fail()
		return result, err
	}

	tracker.Done()
	d.logger.Debug("asset downloaded", "url", assetURL, "path", destPath, "bytes", result.Written)
	return result, nil
}

// copyChunks copies src to dst chunkSize bytes at a time and reports the
// running total after each chunk. A read or write failure is returned on its
// own side.
func (d *Downloader) copyChunks(dst io.Writer, src io.Reader, tracker Tracker) (written int64, readErr, writeErr error) {
	buf := make([]byte, d.chunkSize)

	for {
		n, err := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			written += int64(w)
			if werr != nil {
				return written, nil, werr
			}
			tracker.Set(written)
		}

		if errors.Is(err, io.EOF) {
			return written, nil, nil
		}
		if err != nil {
			return written, err, nil
		}
	}
}
