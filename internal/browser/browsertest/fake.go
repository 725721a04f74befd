// Package browsertest provides an in-memory browser.Renderer for tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maltedev/glb-scraper/internal/browser"
)

// Page describes what a fake session shows for one URL. Selectors without
// elements time out, except "title" which is present whenever Title is set.
type Page struct {
	Title     string
	HTML      string
	Elements  map[string][]Element
	OpenErr   error
	WaitErr   map[string]error
	ScrollErr error
}

type Element struct {
	Attrs map[string]string
	Err   error
}

// Link returns an element carrying an href.
func Link(href string) Element {
	return Element{Attrs: map[string]string{"href": href}}
}

// Links returns one link element per href.
func Links(hrefs ...string) []Element {
	elements := make([]Element, 0, len(hrefs))
	for _, href := range hrefs {
		elements = append(elements, Link(href))
	}
	return elements
}

// Renderer serves registered pages; unknown URLs render as blank pages.
type Renderer struct {
	mu     sync.Mutex
	pages  map[string]*Page
	opened []string
	live   int
	closed int
}

func New() *Renderer {
	return &Renderer{pages: make(map[string]*Page)}
}

func (r *Renderer) AddPage(url string, page *Page) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages[url] = page
}

func (r *Renderer) Open(ctx context.Context, url string) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.opened = append(r.opened, url)

	page, ok := r.pages[url]
	if !ok {
		page = &Page{}
	}
	if page.OpenErr != nil {
		return nil, page.OpenErr
	}

	r.live++
	return &session{renderer: r, page: page}, nil
}

// Opened returns every URL passed to Open, in order.
func (r *Renderer) Opened() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.opened...)
}

func (r *Renderer) OpenCount(url string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, u := range r.opened {
		if u == url {
			n++
		}
	}
	return n
}

// Live returns the number of sessions opened and not yet closed.
func (r *Renderer) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

func (r *Renderer) Closed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

var (
	_ browser.Renderer = (*Renderer)(nil)
	_ browser.Session  = (*session)(nil)
	_ browser.Element  = Element{}
)

type session struct {
	renderer *Renderer
	page     *Page
	once     sync.Once
}

func (s *session) WaitForElement(selector string, timeout time.Duration) error {
	if err := s.page.WaitErr[selector]; err != nil {
		return err
	}
	if len(s.page.Elements[selector]) > 0 {
		return nil
	}
	if selector == "title" && s.page.Title != "" {
		return nil
	}
	return fmt.Errorf("%w: %s after %s", browser.ErrTimeout, selector, timeout)
}

func (s *session) ScrollToBottomUntilStable(poll time.Duration) (int, error) {
	if s.page.ScrollErr != nil {
		return 1, s.page.ScrollErr
	}
	return 2, nil
}

func (s *session) FindAll(selector string) ([]browser.Element, error) {
	elements := s.page.Elements[selector]
	result := make([]browser.Element, 0, len(elements))
	for i := range elements {
		result = append(result, elements[i])
	}
	return result, nil
}

func (s *session) Title() (string, error) {
	return s.page.Title, nil
}

func (s *session) Content() (string, error) {
	return s.page.HTML, nil
}

func (s *session) Close() error {
	s.once.Do(func() {
		s.renderer.mu.Lock()
		s.renderer.live--
		s.renderer.closed++
		s.renderer.mu.Unlock()
	})
	return nil
}

func (e Element) Attribute(name string) (string, error) {
	if e.Err != nil {
		return "", e.Err
	}
	return e.Attrs[name], nil
}
