package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/AlfredBerg/rod-records/internal/js"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

type PrintMode string

const (
	// PrintPDF renders the page with the devtools printToPDF command and hands the bytes
	// straight back to the caller.
	PrintPDF PrintMode = "pdf"
	// PrintDialog calls window.print(). The browser must run with kiosk printing and a
	// profile whose default destination is "Save as PDF" into the download directory.
	PrintDialog PrintMode = "dialog"
)

type RodOptions struct {
	Headless  bool
	Downloads string
	// UserDataDir is the browser profile, needed by PrintDialog to pick up the print
	// destination. Empty uses a throwaway profile.
	UserDataDir string
	PrintMode   PrintMode
	Wait        time.Duration
}

// RodSession drives a local Chromium through go-rod.
type RodSession struct {
	opts     RodOptions
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	log      *zap.Logger

	mu       sync.Mutex
	dialogOn map[proto.TargetTargetID]bool
}

func NewRodSession(opts RodOptions, log *zap.Logger) (*RodSession, error) {
	if opts.Wait <= 0 {
		opts.Wait = DefaultWait
	}
	if opts.PrintMode == "" {
		opts.PrintMode = PrintPDF
	}
	downloads, err := filepath.Abs(opts.Downloads)
	if err != nil {
		return nil, fmt.Errorf("resolve download dir: %w", err)
	}
	opts.Downloads = downloads

	l := launcher.New().
		Headless(opts.Headless).
		NoSandbox(true).
		Set(flags.Flag("disable-gpu")).
		Set(flags.Flag("window-size"), "1920,1080")
	if opts.PrintMode == PrintDialog {
		l = l.Set(flags.Flag("kiosk-printing"))
	}
	if opts.UserDataDir != "" {
		l = l.UserDataDir(opts.UserDataDir)
	}

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	// Let printouts and PDF links land in the watched download dir
	err = proto.BrowserSetDownloadBehavior{
		Behavior:         proto.BrowserSetDownloadBehaviorBehaviorAllow,
		BrowserContextID: browser.BrowserContextID,
		DownloadPath:     opts.Downloads,
	}.Call(browser)
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, fmt.Errorf("set download behavior: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, fmt.Errorf("open page: %w", err)
	}

	s := &RodSession{
		opts:     opts,
		launcher: l,
		browser:  browser,
		log:      log,
		dialogOn: map[proto.TargetTargetID]bool{},
	}
	s.use(page)
	return s, nil
}

// use makes p the current window and makes sure alerts on it never block navigation.
func (s *RodSession) use(p *rod.Page) {
	s.page = p

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dialogOn[p.TargetID] {
		return
	}
	s.dialogOn[p.TargetID] = true
	go p.EachEvent(func(e *proto.PageJavascriptDialogOpening) {
		s.log.Debug("dismissing javascript dialog", zap.String("type", string(e.Type)), zap.String("message", e.Message))
		_ = proto.PageHandleJavaScriptDialog{Accept: false, PromptText: ""}.Call(p)
	})()
}

func (s *RodSession) current(ctx context.Context) (*rod.Page, error) {
	if s.page == nil {
		return nil, errors.New("no current window")
	}
	return s.page.Context(ctx), nil
}

func (s *RodSession) Navigate(ctx context.Context, url string) error {
	p, err := s.current(ctx)
	if err != nil {
		return err
	}
	p = p.Timeout(s.opts.Wait)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait for %s to load: %w", url, err)
	}
	return nil
}

func (s *RodSession) find(p *rod.Page, sel Selector) (*rod.Element, error) {
	query, isXPath := sel.Query()
	var (
		el  *rod.Element
		err error
	)
	if isXPath {
		el, err = p.ElementX(query)
	} else {
		el, err = p.Element(query)
	}
	if err != nil {
		var notFound *rod.ErrElementNotFound
		if errors.As(err, &notFound) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrElementNotFound, sel)
		}
		return nil, fmt.Errorf("find %s: %w", sel, err)
	}
	return el, nil
}

func (s *RodSession) Find(ctx context.Context, sel Selector) (Element, error) {
	p, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	el, err := s.find(p.Sleeper(rod.NotFoundSleeper), sel)
	if err != nil {
		return nil, err
	}
	return &rodElement{el: el, sel: sel, wait: s.opts.Wait}, nil
}

func (s *RodSession) WaitPresent(ctx context.Context, sel Selector) (Element, error) {
	p, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	el, err := s.find(p.Timeout(s.opts.Wait), sel)
	if err != nil {
		return nil, err
	}
	// Drop the wait deadline so later actions on the element are not bound by it
	return &rodElement{el: el.CancelTimeout(), sel: sel, wait: s.opts.Wait}, nil
}

func (s *RodSession) WaitClickable(ctx context.Context, sel Selector) (Element, error) {
	p, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	p = p.Timeout(s.opts.Wait)
	el, err := s.find(p, sel)
	if err != nil {
		return nil, err
	}
	if err := el.WaitVisible(); err != nil {
		return nil, fmt.Errorf("%w: %s not visible: %v", ErrElementNotInteractable, sel, err)
	}
	if err := el.WaitEnabled(); err != nil {
		return nil, fmt.Errorf("%w: %s not enabled: %v", ErrElementNotInteractable, sel, err)
	}
	return &rodElement{el: el.CancelTimeout(), sel: sel, wait: s.opts.Wait}, nil
}

func (s *RodSession) HTML(ctx context.Context) (string, error) {
	p, err := s.current(ctx)
	if err != nil {
		return "", err
	}
	return p.Timeout(s.opts.Wait).HTML()
}

// settleTime is how long the DOM must stay unchanged for a page to count as settled.
const settleTime = time.Second

func (s *RodSession) WaitSettled(ctx context.Context) error {
	p, err := s.current(ctx)
	if err != nil {
		return err
	}
	p = p.Timeout(s.opts.Wait)
	defer p.CancelTimeout()
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait for page load: %w", err)
	}
	if err := p.WaitStable(settleTime); err != nil {
		return fmt.Errorf("wait for page to settle: %w", err)
	}
	return nil
}

func (s *RodSession) Windows(ctx context.Context) ([]string, error) {
	pages, err := s.browser.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	handles := make([]string, 0, len(pages))
	for _, p := range pages {
		handles = append(handles, string(p.TargetID))
	}
	return handles, nil
}

func (s *RodSession) Current() string {
	if s.page == nil {
		return ""
	}
	return string(s.page.TargetID)
}

func (s *RodSession) SwitchTo(ctx context.Context, handle string) error {
	pages, err := s.browser.Context(ctx).Pages()
	if err != nil {
		return fmt.Errorf("list windows: %w", err)
	}
	for _, p := range pages {
		if string(p.TargetID) != handle {
			continue
		}
		if _, err := p.Activate(); err != nil {
			return fmt.Errorf("activate window %s: %w", handle, err)
		}
		s.use(p)
		return nil
	}
	return fmt.Errorf("window %s is gone", handle)
}

func (s *RodSession) CloseWindow(ctx context.Context) error {
	p, err := s.current(ctx)
	if err != nil {
		return err
	}
	s.page = nil
	if err := p.Close(); err != nil {
		return fmt.Errorf("close window: %w", err)
	}
	return nil
}

func (s *RodSession) Print(ctx context.Context) ([]byte, error) {
	p, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	p = p.Timeout(s.opts.Wait)

	if s.opts.PrintMode == PrintDialog {
		if _, err := p.Eval(js.PRINT); err != nil {
			return nil, fmt.Errorf("window.print: %w", err)
		}
		return nil, nil
	}

	r, err := p.PDF(&proto.PagePrintToPDF{PrintBackground: true})
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}
	return io.ReadAll(r)
}

func (s *RodSession) Close() error {
	err := s.browser.Close()
	s.launcher.Cleanup()
	return err
}

type rodElement struct {
	el   *rod.Element
	sel  Selector
	wait time.Duration
}

// bound returns the element under ctx and the session wait. rod retries actionability
// checks until the context ends, so every action needs a deadline of its own.
func (e *rodElement) bound(ctx context.Context) *rod.Element {
	return e.el.Context(ctx).Timeout(e.wait)
}

// actionErr wraps a failed element action. Running out of time means the element never
// became usable.
func actionErr(sel Selector, action string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s %s: %w", ErrElementNotInteractable, action, sel, err)
	}
	return fmt.Errorf("%s %s: %w", action, sel, err)
}

func (e *rodElement) Click(ctx context.Context) error {
	el := e.bound(ctx)
	defer el.CancelTimeout()
	if err := el.ScrollIntoView(); err != nil {
		return actionErr(e.sel, "scroll to", err)
	}

	// Is the element actually on top and can be clicked?
	xp, err := el.GetXPath(false)
	if err != nil {
		return actionErr(e.sel, "xpath of", err)
	}
	res, err := el.Page().Context(el.GetContext()).Eval(js.IS_TOP_VISIBLE, xp)
	if err != nil {
		return actionErr(e.sel, "visibility of", err)
	}
	if !res.Value.Bool() {
		return e.ClickJS(ctx)
	}

	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return actionErr(e.sel, "click", err)
	}
	return nil
}

func (e *rodElement) ClickJS(ctx context.Context) error {
	el := e.bound(ctx)
	defer el.CancelTimeout()
	if _, err := el.Eval(js.SCROLL_CLICK); err != nil {
		return actionErr(e.sel, "script click", err)
	}
	return nil
}

func (e *rodElement) Clear(ctx context.Context) error {
	el := e.bound(ctx)
	defer el.CancelTimeout()
	if _, err := el.Eval(js.CLEAR_VALUE); err != nil {
		return actionErr(e.sel, "clear", err)
	}
	return nil
}

func (e *rodElement) Type(ctx context.Context, text string) error {
	el := e.bound(ctx)
	defer el.CancelTimeout()
	if err := el.Input(text); err != nil {
		return actionErr(e.sel, "input into", err)
	}
	return nil
}

func (e *rodElement) SelectOption(ctx context.Context, text string) error {
	el := e.bound(ctx)
	defer el.CancelTimeout()
	if err := el.Select([]string{text}, true, rod.SelectorTypeText); err != nil {
		return actionErr(e.sel, fmt.Sprintf("select %q in", text), err)
	}
	return nil
}
