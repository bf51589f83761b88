package county_test

import (
	"context"
	"errors"
	"testing"

	"github.com/AlfredBerg/rod-records/internal/browser"
	"github.com/AlfredBerg/rod-records/internal/browser/browsertest"
	"github.com/AlfredBerg/rod-records/internal/capture"
	"github.com/AlfredBerg/rod-records/internal/county"
	"github.com/AlfredBerg/rod-records/internal/county/countytest"
	"github.com/AlfredBerg/rod-records/internal/deeds"
	"github.com/AlfredBerg/rod-records/internal/parcel"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type harness struct {
	fs      afero.Fs
	session *browsertest.Session
	visit   *county.Visit
}

func newHarness(t *testing.T, req parcel.Request, pages map[string]*browsertest.Page) *harness {
	fs := afero.NewMemMapFs()
	dir := "/records/" + req.ID
	require.NoError(t, fs.MkdirAll(dir, 0o755))
	s := browsertest.New(pages)
	return &harness{
		fs:      fs,
		session: s,
		visit: &county.Visit{
			Session:  s,
			Capturer: capture.New(s, fs, "/downloads", zaptest.NewLogger(t)),
			Parcel:   req,
			Dir:      dir,
			Logger:   zaptest.NewLogger(t),
		},
	}
}

func (h *harness) files(t *testing.T) []string {
	entries, err := afero.ReadDir(h.fs, h.visit.Dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func labels(docs []county.Document) []string {
	var out []string
	for _, d := range docs {
		out = append(out, d.Label)
	}
	return out
}

func TestCharlestonOneDeedAboveThreshold(t *testing.T) {
	req := parcel.Request{ID: "123-45-6789", Jurisdiction: parcel.Charleston}
	h := newHarness(t, req, countytest.Charleston{
		PIN:          "123456789",
		Transactions: []string{"A285 112", "A100 004"},
	}.Pages())

	res := county.Run(context.Background(), county.NewCharleston(county.CharlestonOptions{}), h.visit)
	require.NoError(t, res.Err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, county.Done, res.Stage)

	assert.Equal(t, []string{"A285 112"}, countytest.Lookups(h.session))
	assert.Equal(t, []deeds.Reference{{Book: "A285", Page: "112"}}, res.Deeds)
	assert.Equal(t, 1, res.Fetched)
	assert.Equal(t, []string{"Property Card", "Tax Info", "DB A285 112"}, labels(res.Documents))
	assert.ElementsMatch(t, []string{"Property Card.pdf", "Tax Info.pdf", "DB A285 112.pdf"}, h.files(t))

	deed, err := afero.ReadFile(h.fs, "/records/123-45-6789/DB A285 112.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF "+countytest.DocURL(countytest.CharlestonRegister, "A285", "112"), string(deed))
}

func TestCharlestonDeedLoopKeepsTableOrderAndPadsPages(t *testing.T) {
	req := parcel.Request{ID: "123-45-6789", Jurisdiction: parcel.Charleston}
	h := newHarness(t, req, countytest.Charleston{
		PIN:          "123456789",
		Transactions: []string{"1234 7", "A300 42", "AXY 1", "A285 112", "1234 7"},
	}.Pages())

	res := county.Run(context.Background(), county.NewCharleston(county.CharlestonOptions{}), h.visit)
	require.NoError(t, res.Err)

	assert.Equal(t, []string{"1234 007", "A300 042", "A285 112", "1234 007"}, countytest.Lookups(h.session))
	assert.Equal(t, 4, res.Fetched)
	// Every deed window was closed and the session is back on the register
	windows, err := h.session.Windows(context.Background())
	require.NoError(t, err)
	assert.Len(t, windows, 1)
}

func TestCharlestonNoDeeds(t *testing.T) {
	req := parcel.Request{ID: "123-45-6789", Jurisdiction: parcel.Charleston}
	h := newHarness(t, req, countytest.Charleston{PIN: "123456789"}.Pages())

	res := county.Run(context.Background(), county.NewCharleston(county.CharlestonOptions{}), h.visit)
	require.NoError(t, res.Err)
	assert.Equal(t, county.Done, res.Stage)
	assert.Empty(t, countytest.Lookups(h.session))
	assert.ElementsMatch(t, []string{"Property Card.pdf", "Tax Info.pdf"}, h.files(t))
}

func TestCharlestonUnknownParcel(t *testing.T) {
	req := parcel.Request{ID: "999-99-9999", Jurisdiction: parcel.Charleston}
	h := newHarness(t, req, countytest.Charleston{PIN: "123456789"}.Pages())

	res := county.Run(context.Background(), county.NewCharleston(county.CharlestonOptions{}), h.visit)
	require.Error(t, res.Err)
	var stageErr *county.StageError
	require.True(t, errors.As(res.Err, &stageErr))
	assert.Equal(t, county.ParcelLocated, stageErr.Stage)
	assert.Equal(t, county.StartSearch, res.Stage)
	assert.True(t, errors.Is(res.Err, browser.ErrElementNotFound))
	assert.Empty(t, h.files(t))
}

func TestCharlestonDeedLoopFailureKeepsEarlierDocuments(t *testing.T) {
	req := parcel.Request{ID: "123-45-6789", Jurisdiction: parcel.Charleston}
	h := newHarness(t, req, countytest.Charleston{
		PIN:          "123456789",
		Transactions: []string{"A290 1", "A291 2", "A292 3"},
		Missing:      map[string]bool{"A291 002": true},
	}.Pages())

	res := county.Run(context.Background(), county.NewCharleston(county.CharlestonOptions{}), h.visit)
	require.Error(t, res.Err)
	assert.False(t, res.Succeeded())
	assert.Equal(t, county.DeedLoop, res.Stage)
	assert.Equal(t, 1, res.Fetched)
	assert.Equal(t, []string{"A290 001", "A291 002"}, countytest.Lookups(h.session))
	assert.ElementsMatch(t, []string{"Property Card.pdf", "Tax Info.pdf", "DB A290 001.pdf"}, h.files(t))
}

func TestCaptureFailureDoesNotStopParcel(t *testing.T) {
	req := parcel.Request{ID: "123-45-6789", Jurisdiction: parcel.Charleston}
	h := newHarness(t, req, countytest.Charleston{PIN: "123456789", Transactions: []string{"A285 112"}}.Pages())
	h.visit.Capturer = &failingCapturer{next: h.visit.Capturer, label: "Tax Info"}

	res := county.Run(context.Background(), county.NewCharleston(county.CharlestonOptions{}), h.visit)
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"Tax Info"}, res.Missing)
	assert.ElementsMatch(t, []string{"Property Card.pdf", "DB A285 112.pdf"}, h.files(t))
}

type failingCapturer struct {
	next  county.Capturer
	label string
}

func (f *failingCapturer) Capture(ctx context.Context, label, dir string) (string, error) {
	if label == f.label {
		return "", capture.ErrCaptureTimeout
	}
	return f.next.Capture(ctx, label, dir)
}

func TestRunRecoversPanics(t *testing.T) {
	req := parcel.Request{ID: "1", Jurisdiction: parcel.Charleston}
	h := newHarness(t, req, nil)

	res := county.Run(context.Background(), panicky{}, h.visit)
	require.Error(t, res.Err)
	var stageErr *county.StageError
	require.True(t, errors.As(res.Err, &stageErr))
	assert.Equal(t, county.PrimaryCaptured, stageErr.Stage)
	assert.Contains(t, res.Err.Error(), "page crashed")
}

type panicky struct{}

func (panicky) Jurisdiction() parcel.Jurisdiction { return parcel.Charleston }
func (panicky) Locate(context.Context, *county.Visit) error { return nil }
func (panicky) CaptureRecord(context.Context, *county.Visit) error { panic("page crashed") }
func (panicky) CaptureSecondary(context.Context, *county.Visit) error { return nil }
func (panicky) ExtractDeeds(context.Context, *county.Visit) ([]deeds.Reference, error) {
	return nil, nil
}
func (panicky) LookupDeed(context.Context, *county.Visit, deeds.Reference) error { return nil }

func TestRunStopsOnCancelledContext(t *testing.T) {
	req := parcel.Request{ID: "123-45-6789", Jurisdiction: parcel.Charleston}
	h := newHarness(t, req, countytest.Charleston{PIN: "123456789"}.Pages())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := county.Run(ctx, county.NewCharleston(county.CharlestonOptions{}), h.visit)
	assert.True(t, errors.Is(res.Err, context.Canceled))
	assert.Empty(t, h.session.Navigations)
}

// clickThrough opens a page by clicking a link and captures it straight away.
type clickThrough struct{}

const (
	clickStart = "https://example.test/search"
	clickCard  = "https://example.test/card"
)

func (clickThrough) Jurisdiction() parcel.Jurisdiction { return parcel.Charleston }
func (clickThrough) Locate(ctx context.Context, v *county.Visit) error {
	if err := v.Session.Navigate(ctx, clickStart); err != nil {
		return err
	}
	el, err := v.Session.WaitClickable(ctx, browser.LinkText("Card"))
	if err != nil {
		return err
	}
	return el.ClickJS(ctx)
}
func (clickThrough) CaptureRecord(ctx context.Context, v *county.Visit) error {
	v.Capture(ctx, "Property Card")
	return nil
}
func (clickThrough) ExtractDeeds(context.Context, *county.Visit) ([]deeds.Reference, error) {
	return nil, nil
}
func (clickThrough) CaptureSecondary(context.Context, *county.Visit) error { return nil }
func (clickThrough) LookupDeed(context.Context, *county.Visit, deeds.Reference) error {
	return nil
}

func TestCaptureWaitsForNavigationToSettle(t *testing.T) {
	req := parcel.Request{ID: "1", Jurisdiction: parcel.Charleston}
	h := newHarness(t, req, map[string]*browsertest.Page{
		clickStart: {Elements: map[browser.Selector]*browsertest.Element{
			browser.LinkText("Card"): {OnClick: browsertest.Goto(clickCard)},
		}},
		clickCard: {HTML: "<h1>Card</h1>"},
	})

	res := county.Run(context.Background(), clickThrough{}, h.visit)
	require.NoError(t, res.Err)
	assert.Empty(t, res.Missing)
	assert.Equal(t, []string{clickCard}, h.session.Printed)
	assert.Equal(t, 1, h.session.Settled)
}

func TestUnsettledPageIsNotPrinted(t *testing.T) {
	s := browsertest.New(map[string]*browsertest.Page{
		clickStart: {Elements: map[browser.Selector]*browsertest.Element{
			browser.LinkText("Card"): {OnClick: browsertest.Goto(clickCard)},
		}},
		clickCard: {HTML: "<h1>Card</h1>"},
	})
	ctx := context.Background()
	require.NoError(t, s.Navigate(ctx, clickStart))
	el, err := s.Find(ctx, browser.LinkText("Card"))
	require.NoError(t, err)
	require.NoError(t, el.ClickJS(ctx))

	_, err = s.Print(ctx)
	assert.ErrorIs(t, err, browsertest.ErrNotSettled)
	_, err = s.HTML(ctx)
	assert.ErrorIs(t, err, browsertest.ErrNotSettled)
}
