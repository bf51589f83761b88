// Package browsertest provides an in-memory browser.Session that serves scripted pages.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/AlfredBerg/rod-records/internal/browser"
)

// Action runs when a scripted element is clicked.
type Action func(s *Session) error

// Goto replaces the current window's page with the page served at url. Like a real
// navigating click, the page cannot be read or printed until WaitSettled.
func Goto(url string) Action {
	return func(s *Session) error {
		if err := s.load(s.current, url); err != nil {
			return err
		}
		s.current.loading = true
		return nil
	}
}

// OpenWindow opens the page served at url in a new window without switching to it.
func OpenWindow(url string) Action {
	return func(s *Session) error {
		w := &window{handle: s.nextHandle(), loading: true}
		s.windows = append(s.windows, w)
		return s.load(w, url)
	}
}

// Fail makes the click itself fail.
func Fail(err error) Action {
	return func(*Session) error { return err }
}

type Element struct {
	OnClick Action
	// Hidden elements are present but never clickable.
	Hidden bool
}

// Page is a scripted page. Build is called on every load so state can depend on
// what the session typed so far.
type Page struct {
	HTML     string
	Elements map[browser.Selector]*Element
	Build    func(s *Session) *Page
}

type Input struct {
	URL      string
	Selector browser.Selector
	Value    string
}

type window struct {
	handle string
	url    string
	page   *Page
	values map[browser.Selector]string

	// loading is set by clicks that navigate and cleared by WaitSettled.
	loading bool
}

// Session serves Pages by URL. It records navigations, typed values, selected options and
// prints for assertions.
type Session struct {
	Pages map[string]*Page

	Navigations []string
	Inputs      []Input
	Selected    []Input
	Printed     []string
	Settled     int
	Closed      bool

	// PrintFunc overrides the default printout, which is "%PDF " followed by the URL.
	PrintFunc func(url string) ([]byte, error)

	windows []*window
	current *window
	handles int
}

func New(pages map[string]*Page) *Session {
	s := &Session{Pages: pages}
	w := &window{handle: s.nextHandle(), url: "about:blank", page: &Page{}}
	s.windows = []*window{w}
	s.current = w
	return s
}

func (s *Session) nextHandle() string {
	s.handles++
	return "window-" + strconv.Itoa(s.handles)
}

func (s *Session) load(w *window, url string) error {
	p, ok := s.Pages[url]
	if !ok {
		return fmt.Errorf("browsertest: no page at %s", url)
	}
	if p.Build != nil {
		p = p.Build(s)
	}
	w.url = url
	w.page = p
	w.values = map[browser.Selector]string{}
	return nil
}

// Value returns the last value typed into sel anywhere in the session.
func (s *Session) Value(sel browser.Selector) string {
	for i := len(s.Inputs) - 1; i >= 0; i-- {
		if s.Inputs[i].Selector == sel {
			return s.Inputs[i].Value
		}
	}
	return ""
}

// URL is the address of the current window.
func (s *Session) URL() string {
	if s.current == nil {
		return ""
	}
	return s.current.url
}

func (s *Session) win() (*window, error) {
	if s.current == nil {
		return nil, fmt.Errorf("browsertest: no current window")
	}
	return s.current, nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w, err := s.win()
	if err != nil {
		return err
	}
	s.Navigations = append(s.Navigations, url)
	w.loading = false
	return s.load(w, url)
}

// ErrNotSettled is returned when a page is read or printed while it is still loading.
var ErrNotSettled = errors.New("browsertest: page read before it settled")

func (s *Session) WaitSettled(ctx context.Context) error {
	w, err := s.win()
	if err != nil {
		return err
	}
	s.Settled++
	w.loading = false
	return nil
}

func (s *Session) settled() (*window, error) {
	w, err := s.win()
	if err != nil {
		return nil, err
	}
	if w.loading {
		return nil, fmt.Errorf("%w: %s", ErrNotSettled, w.url)
	}
	return w, nil
}

func (s *Session) lookup(sel browser.Selector) (*handle, error) {
	w, err := s.win()
	if err != nil {
		return nil, err
	}
	el, ok := w.page.Elements[sel]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", browser.ErrElementNotFound, sel, w.url)
	}
	return &handle{s: s, w: w, sel: sel, el: el}, nil
}

func (s *Session) Find(ctx context.Context, sel browser.Selector) (browser.Element, error) {
	return s.lookup(sel)
}

func (s *Session) WaitPresent(ctx context.Context, sel browser.Selector) (browser.Element, error) {
	return s.lookup(sel)
}

func (s *Session) WaitClickable(ctx context.Context, sel browser.Selector) (browser.Element, error) {
	h, err := s.lookup(sel)
	if err != nil {
		return nil, err
	}
	if h.el.Hidden {
		return nil, fmt.Errorf("%w: %s", browser.ErrElementNotInteractable, sel)
	}
	return h, nil
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	w, err := s.settled()
	if err != nil {
		return "", err
	}
	return w.page.HTML, nil
}

func (s *Session) Windows(ctx context.Context) ([]string, error) {
	handles := make([]string, 0, len(s.windows))
	for _, w := range s.windows {
		handles = append(handles, w.handle)
	}
	return handles, nil
}

func (s *Session) Current() string {
	if s.current == nil {
		return ""
	}
	return s.current.handle
}

func (s *Session) SwitchTo(ctx context.Context, h string) error {
	for _, w := range s.windows {
		if w.handle == h {
			s.current = w
			return nil
		}
	}
	return fmt.Errorf("browsertest: window %s is gone", h)
}

func (s *Session) CloseWindow(ctx context.Context) error {
	w, err := s.win()
	if err != nil {
		return err
	}
	for i, o := range s.windows {
		if o == w {
			s.windows = append(s.windows[:i], s.windows[i+1:]...)
			break
		}
	}
	s.current = nil
	return nil
}

func (s *Session) Print(ctx context.Context) ([]byte, error) {
	w, err := s.settled()
	if err != nil {
		return nil, err
	}
	s.Printed = append(s.Printed, w.url)
	if s.PrintFunc != nil {
		return s.PrintFunc(w.url)
	}
	return []byte("%PDF " + w.url), nil
}

func (s *Session) Close() error {
	s.Closed = true
	return nil
}

type handle struct {
	s   *Session
	w   *window
	sel browser.Selector
	el  *Element
}

func (h *handle) Click(ctx context.Context) error {
	if h.el.Hidden {
		return fmt.Errorf("%w: %s", browser.ErrElementNotInteractable, h.sel)
	}
	if h.el.OnClick == nil {
		return nil
	}
	return h.el.OnClick(h.s)
}

func (h *handle) ClickJS(ctx context.Context) error {
	if h.el.OnClick == nil {
		return nil
	}
	return h.el.OnClick(h.s)
}

func (h *handle) Clear(ctx context.Context) error {
	h.w.values[h.sel] = ""
	return nil
}

func (h *handle) Type(ctx context.Context, text string) error {
	h.w.values[h.sel] += text
	h.s.Inputs = append(h.s.Inputs, Input{URL: h.w.url, Selector: h.sel, Value: h.w.values[h.sel]})
	return nil
}

func (h *handle) SelectOption(ctx context.Context, text string) error {
	h.s.Selected = append(h.s.Selected, Input{URL: h.w.url, Selector: h.sel, Value: text})
	return nil
}
