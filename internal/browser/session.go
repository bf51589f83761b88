package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrElementNotFound        = errors.New("element not found")
	ErrElementNotInteractable = errors.New("element not interactable")
	ErrNoNewWindow            = errors.New("no new window opened")
)

// DefaultWait bounds every navigation and element wait unless a caller asks for less.
const DefaultWait = 15 * time.Second

type By int

const (
	ByID By = iota
	ByName
	ByCSS
	ByXPath
	ByLinkText
	ByPartialLinkText
)

// Selector is a declarative way of locating one element on the current page.
type Selector struct {
	By    By
	Value string
}

func ID(id string) Selector                { return Selector{By: ByID, Value: id} }
func Name(name string) Selector            { return Selector{By: ByName, Value: name} }
func CSS(css string) Selector              { return Selector{By: ByCSS, Value: css} }
func XPath(xp string) Selector             { return Selector{By: ByXPath, Value: xp} }
func LinkText(text string) Selector        { return Selector{By: ByLinkText, Value: text} }
func PartialLinkText(text string) Selector { return Selector{By: ByPartialLinkText, Value: text} }

func (s Selector) String() string {
	switch s.By {
	case ByID:
		return "id=" + s.Value
	case ByName:
		return "name=" + s.Value
	case ByCSS:
		return "css=" + s.Value
	case ByXPath:
		return "xpath=" + s.Value
	case ByLinkText:
		return "link=" + s.Value
	case ByPartialLinkText:
		return "partial-link=" + s.Value
	}
	return fmt.Sprintf("selector(%d)=%s", s.By, s.Value)
}

// Query returns the selector as either a CSS selector or an XPath expression.
// Link text selectors are always expressed as XPath.
func (s Selector) Query() (query string, xpath bool) {
	switch s.By {
	case ByID:
		return `[id=` + cssString(s.Value) + `]`, false
	case ByName:
		return `[name=` + cssString(s.Value) + `]`, false
	case ByCSS:
		return s.Value, false
	case ByXPath:
		return s.Value, true
	case ByLinkText:
		return `//a[normalize-space(.)=` + xpathString(s.Value) + `]`, true
	case ByPartialLinkText:
		return `//a[contains(normalize-space(.), ` + xpathString(s.Value) + `)]`, true
	}
	return s.Value, false
}

func cssString(v string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) + `"`
}

// xpathString quotes v as an XPath 1.0 literal, which has no escape sequences.
func xpathString(v string) string {
	if !strings.Contains(v, `"`) {
		return `"` + v + `"`
	}
	if !strings.Contains(v, `'`) {
		return `'` + v + `'`
	}
	parts := strings.Split(v, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		quoted = append(quoted, `"`+p+`"`)
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// Element is a handle to one element of the page it was found on.
type Element interface {
	Click(ctx context.Context) error
	// ClickJS scrolls the element into the middle of the viewport and clicks it from a
	// script, which works for links obscured by sticky headers and overlays.
	ClickJS(ctx context.Context) error
	Clear(ctx context.Context) error
	Type(ctx context.Context, text string) error
	SelectOption(ctx context.Context, text string) error
}

// Session is one browser with a current window. A Session is not safe for concurrent use:
// window switching and printing mutate state shared by every caller.
type Session interface {
	Navigate(ctx context.Context, url string) error

	// Find looks the element up once without waiting.
	Find(ctx context.Context, sel Selector) (Element, error)
	// WaitPresent waits up to the session wait for the element to be in the DOM.
	WaitPresent(ctx context.Context, sel Selector) (Element, error)
	// WaitClickable waits up to the session wait for the element to be visible and enabled.
	WaitClickable(ctx context.Context, sel Selector) (Element, error)

	HTML(ctx context.Context) (string, error)
	// WaitSettled waits up to the session wait for the current page to finish loading
	// and its DOM to stop changing. Clicks that navigate return before the new page is
	// there, so anything read or printed after one must wait for it first.
	WaitSettled(ctx context.Context) error

	Windows(ctx context.Context) ([]string, error)
	Current() string
	SwitchTo(ctx context.Context, handle string) error
	// CloseWindow closes the current window. Callers must SwitchTo another window before
	// using the session again.
	CloseWindow(ctx context.Context) error

	// Print prints the current page. When the returned slice is empty the printout is
	// written asynchronously into the browser's download directory instead.
	Print(ctx context.Context) ([]byte, error)

	Close() error
}
