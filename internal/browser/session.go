package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

var _ Session = (*pageSession)(nil)

type pageSession struct {
	ctx        context.Context
	page       playwright.Page
	release    func()
	maxScrolls int
	logger     *slog.Logger

	closeOnce sync.Once
	closed    bool
	mu        sync.Mutex
}

func newPageSession(ctx context.Context, page playwright.Page, release func(), maxScrolls int, logger *slog.Logger) *pageSession {
	return &pageSession{
		ctx:        ctx,
		page:       page,
		release:    release,
		maxScrolls: maxScrolls,
		logger:     logger,
	}
}

func (s *pageSession) WaitForElement(selector string, timeout time.Duration) error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	_, err := s.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return fmt.Errorf("%w: %s after %s", ErrTimeout, selector, timeout)
		}
		return fmt.Errorf("failed to wait for %s: %w", selector, err)
	}

	return nil
}

func (s *pageSession) ScrollToBottomUntilStable(poll time.Duration) (int, error) {
	if s.isClosed() {
		return 0, ErrSessionClosed
	}

	n, err := ScrollUntilStable(s.ctx, s, poll, s.maxScrolls)
	s.logger.Debug("scrolled page", "url", s.page.URL(), "measurements", n)
	return n, err
}

func (s *pageSession) ScrollToBottom() error {
	_, err := s.page.Evaluate(`() => window.scrollTo(0, document.body.scrollHeight)`)
	return err
}

func (s *pageSession) DocumentHeight() (int64, error) {
	result, err := s.page.Evaluate(`() => document.body.scrollHeight`)
	if err != nil {
		return 0, err
	}

	switch v := result.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("unexpected scroll height type %T", result)
	}
}

func (s *pageSession) FindAll(selector string) ([]Element, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}

	locator := s.page.Locator(selector)
	count, err := locator.Count()
	if err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", selector, err)
	}

	elements := make([]Element, 0, count)
	for i := 0; i < count; i++ {
		elements = append(elements, &locatorElement{locator: locator.Nth(i)})
	}

	return elements, nil
}

func (s *pageSession) Title() (string, error) {
	if s.isClosed() {
		return "", ErrSessionClosed
	}
	return s.page.Title()
}

func (s *pageSession) Content() (string, error) {
	if s.isClosed() {
		return "", ErrSessionClosed
	}
	return s.page.Content()
}

// Close releases the page and its pool slot. Calling it more than once is
// a no-op.
func (s *pageSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		if closeErr := s.page.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close page: %w", closeErr)
		}
		s.release()
	})
	return err
}

func (s *pageSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type locatorElement struct {
	locator playwright.Locator
}

func (e *locatorElement) Attribute(name string) (string, error) {
	return e.locator.GetAttribute(name)
}
