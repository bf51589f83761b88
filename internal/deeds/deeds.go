package deeds

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/multierr"
)

var ErrMalformedToken = errors.New("malformed deed token")

// PageWidth is the width deed pages are zero-padded to in registry searches.
const PageWidth = 3

// Reference is a book/page locator into a register of deeds.
type Reference struct {
	Book string
	Page string
}

// PaddedPage left-pads the page with zeros to PageWidth. Longer pages are unchanged.
func (r Reference) PaddedPage() string {
	if len(r.Page) >= PageWidth {
		return r.Page
	}
	return strings.Repeat("0", PageWidth-len(r.Page)) + r.Page
}

// Label names the captured deed image.
func (r Reference) Label() string {
	return "DB " + r.Book + " " + r.PaddedPage()
}

func (r Reference) String() string {
	return r.Book + " " + r.Page
}

// ParseToken splits a "book page" token at its first whitespace.
func ParseToken(token string) (Reference, error) {
	token = strings.TrimSpace(token)
	i := strings.IndexFunc(token, unicode.IsSpace)
	if i <= 0 {
		return Reference{}, fmt.Errorf("%w: %q has no page", ErrMalformedToken, token)
	}
	ref := Reference{Book: token[:i], Page: strings.TrimSpace(token[i:])}
	if ref.Page == "" || strings.IndexFunc(ref.Page, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0 {
		return Reference{}, fmt.Errorf("%w: %q has a non-numeric page", ErrMalformedToken, token)
	}
	return ref, nil
}

// AcceptFunc decides whether a non-empty token names a deed worth fetching. An error
// means the token could not be judged and the row is skipped.
type AcceptFunc func(token string) (bool, error)

// AcceptAll accepts every non-empty token.
func AcceptAll(string) (bool, error) { return true, nil }

// MinLetterBook accepts books that are purely numeric, and lettered books ("A285") whose
// number is at least threshold. Older lettered books predate the online registry.
func MinLetterBook(threshold int) AcceptFunc {
	return func(token string) (bool, error) {
		first := []rune(token)[0]
		switch {
		case unicode.IsDigit(first):
			return true, nil
		case !unicode.IsLetter(first):
			return false, nil
		}

		book := token
		if i := strings.IndexFunc(token, unicode.IsSpace); i > 0 {
			book = token[:i]
		}
		n, err := strconv.Atoi(book[len(string(first)):])
		if err != nil {
			return false, fmt.Errorf("%w: book %q is not a letter followed by a number", ErrMalformedToken, book)
		}
		return n >= threshold, nil
	}
}

// Rules locate the deed table of one portal and filter its rows.
type Rules struct {
	// Rows selects the table rows, header row included.
	Rows string
	// Column is the zero-based cell holding the "book page" token.
	Column int
	Accept AcceptFunc
}

// RowError reports a table row that was skipped.
type RowError struct {
	Row   int
	Token string
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d (%q): %v", e.Row, e.Token, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Extract reads deed references from the table in a rendered page, top to bottom,
// skipping the header row. Duplicates are kept. Rows that cannot be parsed are left out
// and reported in the returned error, which is nil when every row parsed; the references
// are valid either way.
func Extract(html string, rules Rules) ([]Reference, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	accept := rules.Accept
	if accept == nil {
		accept = AcceptAll
	}

	var (
		refs    []Reference
		skipped error
	)
	doc.Find(rules.Rows).Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() <= rules.Column {
			return
		}
		token := strings.TrimSpace(cells.Eq(rules.Column).Text())
		if token == "" {
			return
		}

		ok, err := accept(token)
		if err != nil {
			skipped = multierr.Append(skipped, &RowError{Row: i, Token: token, Err: err})
			return
		}
		if !ok {
			return
		}
		ref, err := ParseToken(token)
		if err != nil {
			skipped = multierr.Append(skipped, &RowError{Row: i, Token: token, Err: err})
			return
		}
		refs = append(refs, ref)
	})
	return refs, skipped
}
