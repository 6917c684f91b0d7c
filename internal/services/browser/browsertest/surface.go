// Package browsertest provides a scripted in-memory BrowserSurface for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/harvester/internal/interfaces"
	"github.com/ternarybob/harvester/internal/services/browser"
)

// ErrInjected is returned by scripted faults
var ErrInjected = errors.New("injected surface fault")

const blankPage = "<html><head></head><body></body></html>"

// Surface replays scripted markup. Every Navigate or Reload of a URL counts as
// one load of that URL; load N serves the Nth scripted page, and the last page
// repeats once the script runs out.
type Surface struct {
	mu sync.Mutex

	pages  map[string][]string
	loads  map[string]int
	clicks map[string]string

	current string
	markup  string

	failNavigations int
	failReloads     int
	failQueries     int

	navigations []string
	reloads     int
	clickCount  int
	queries     int
	closed      bool

	// OnNavigate runs after every navigation, before it returns
	OnNavigate func(url string)
	// OnReload runs after every reload, before it returns
	OnReload func(url string)
}

var _ interfaces.BrowserSurface = (*Surface)(nil)

// New creates an empty surface; unscripted URLs render a blank page
func New() *Surface {
	return &Surface{
		pages:  make(map[string][]string),
		loads:  make(map[string]int),
		clicks: make(map[string]string),
		markup: blankPage,
	}
}

// Script sets the markup served for successive loads of url
func (s *Surface) Script(url string, pages ...string) *Surface {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[url] = pages
	return s
}

// OnClick replaces the current markup when the element at selector[index] is clicked
func (s *Surface) OnClick(selector string, index int, markup string) *Surface {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicks[clickKey(selector, index)] = markup
	return s
}

// FailNavigations makes the next n navigations fail
func (s *Surface) FailNavigations(n int) *Surface {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNavigations = n
	return s
}

// FailReloads makes the next n reloads fail
func (s *Surface) FailReloads(n int) *Surface {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failReloads = n
	return s
}

// FailQueries makes the next n queries fail
func (s *Surface) FailQueries(n int) *Surface {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failQueries = n
	return s
}

func clickKey(selector string, index int) string {
	return fmt.Sprintf("%s#%d", selector, index)
}

// load advances the load counter of url and serves its next page
func (s *Surface) load(url string) {
	s.loads[url]++
	s.current = url

	pages := s.pages[url]
	if len(pages) == 0 {
		s.markup = blankPage
		return
	}
	n := s.loads[url] - 1
	if n >= len(pages) {
		n = len(pages) - 1
	}
	s.markup = pages[n]
}

func (s *Surface) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.navigations = append(s.navigations, url)
	if s.failNavigations > 0 {
		s.failNavigations--
		s.mu.Unlock()
		return fmt.Errorf("navigate %s: %w", url, ErrInjected)
	}
	s.load(url)
	hook := s.OnNavigate
	s.mu.Unlock()

	if hook != nil {
		hook(url)
	}
	return nil
}

func (s *Surface) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.reloads++
	if s.failReloads > 0 {
		s.failReloads--
		s.mu.Unlock()
		return fmt.Errorf("reload: %w", ErrInjected)
	}
	url := s.current
	s.load(url)
	hook := s.OnReload
	s.mu.Unlock()

	if hook != nil {
		hook(url)
	}
	return nil
}

func (s *Surface) Markup(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markup, nil
}

func (s *Surface) Query(ctx context.Context, selector string) ([]interfaces.Element, error) {
	s.mu.Lock()
	s.queries++
	if s.failQueries > 0 {
		s.failQueries--
		s.mu.Unlock()
		return nil, fmt.Errorf("query %s: %w", selector, ErrInjected)
	}
	markup := s.markup
	s.mu.Unlock()

	return browser.QueryMarkup(markup, selector)
}

func (s *Surface) Click(ctx context.Context, element interfaces.Element) error {
	s.mu.Lock()
	markup := s.markup
	s.mu.Unlock()

	matches, err := browser.QueryMarkup(markup, element.Selector)
	if err != nil {
		return err
	}
	if element.Index >= len(matches) {
		return fmt.Errorf("%w: %s[%d]", browser.ErrStaleElement, element.Selector, element.Index)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.clickCount++
	if next, ok := s.clicks[clickKey(element.Selector, element.Index)]; ok {
		s.markup = next
	}
	return nil
}

// WaitFor answers immediately from the current markup
func (s *Surface) WaitFor(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	matches, err := s.Query(ctx, selector)
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

func (s *Surface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Navigations returns every URL passed to Navigate, including failed ones
func (s *Surface) Navigations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigations...)
}

// Reloads returns the number of Reload calls, including failed ones
func (s *Surface) Reloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloads
}

// Clicks returns the number of successful clicks
func (s *Surface) Clicks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clickCount
}

// Loads returns how many times url has been loaded
func (s *Surface) Loads(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads[url]
}

// Closed reports whether Close was called
func (s *Surface) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
