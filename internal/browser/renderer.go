package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrTimeout       = errors.New("timed out waiting for element")
	ErrScrollLimit   = errors.New("document kept growing past the scroll limit")
	ErrSessionClosed = errors.New("session is closed")
)

// Renderer opens rendering sessions. Every session returned by Open must be
// closed by the caller.
type Renderer interface {
	Open(ctx context.Context, url string) (Session, error)
}

// Session is one loaded page.
type Session interface {
	// WaitForElement blocks until selector matches an attached element or
	// returns ErrTimeout.
	WaitForElement(selector string, timeout time.Duration) error
	// ScrollToBottomUntilStable scrolls until two consecutive height
	// measurements match and returns how many measurements were taken.
	ScrollToBottomUntilStable(poll time.Duration) (int, error)
	FindAll(selector string) ([]Element, error)
	Title() (string, error)
	Content() (string, error)
	Close() error
}

type Element interface {
	Attribute(name string) (string, error)
}

// Scroller is the part of a page the scroll loop needs.
type Scroller interface {
	ScrollToBottom() error
	DocumentHeight() (int64, error)
}

// ScrollUntilStable measures the document height, then repeatedly scrolls to
// the bottom, waits poll and measures again until a measurement equals the
// previous one. At most maxScrolls scrolls are performed; hitting the bound
// returns ErrScrollLimit together with the measurement count.
func ScrollUntilStable(ctx context.Context, s Scroller, poll time.Duration, maxScrolls int) (int, error) {
	last, err := s.DocumentHeight()
	if err != nil {
		return 0, fmt.Errorf("failed to measure document height: %w", err)
	}
	measurements := 1

	for scrolls := 0; scrolls < maxScrolls; scrolls++ {
		if err := s.ScrollToBottom(); err != nil {
			return measurements, fmt.Errorf("failed to scroll: %w", err)
		}

		if poll > 0 {
			timer := time.NewTimer(poll)
			select {
			case <-ctx.Done():
				timer.Stop()
				return measurements, ctx.Err()
			case <-timer.C:
			}
		}

		height, err := s.DocumentHeight()
		if err != nil {
			return measurements, fmt.Errorf("failed to measure document height: %w", err)
		}
		measurements++

		if height == last {
			return measurements, nil
		}
		last = height
	}

	return measurements, ErrScrollLimit
}
