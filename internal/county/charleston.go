package county

import (
	"context"

	"github.com/AlfredBerg/rod-records/internal/browser"
	"github.com/AlfredBerg/rod-records/internal/deeds"
	"github.com/AlfredBerg/rod-records/internal/parcel"
	"go.uber.org/zap"
)

const (
	CharlestonServicesURL = "https://charlestoncounty.org/online-services.php"
	CharlestonRegisterURL = "https://docviewer.charlestoncounty.org/ROD/BookSearch.aspx"
	// CharlestonMinBook is the first lettered deed book kept in the online register.
	CharlestonMinBook = 280
)

// Charleston selectors.
var (
	chsPayTaxes       = browser.PartialLinkText("Pay Taxes & View Records")
	chsRealProperty   = browser.LinkText("Real Property Record Search")
	chsPIN            = browser.ID("txtPIN")
	chsSearch         = browser.ID("btnSearch")
	chsViewDetails    = browser.LinkText("View Details")
	chsTaxInfo        = browser.LinkText("Tax Info")
	chsBook           = browser.Name("book[booknum]")
	chsPage           = browser.Name("book[pagenum]")
	chsDisclaimer     = browser.ID("disclaimerCheck")
	chsRegisterSearch = browser.XPath(`//input[@value="Search"]`)
	chsViewDocument   = browser.PartialLinkText("View Document")
)

type CharlestonOptions struct {
	ServicesURL string
	RegisterURL string
	// MinBook drops lettered deed books below this number.
	MinBook int
}

// CharlestonNavigator fetches the property card and tax info from the county's real
// property search and deed images from its register of deeds.
type CharlestonNavigator struct {
	opts  CharlestonOptions
	rules deeds.Rules
}

func NewCharleston(opts CharlestonOptions) *CharlestonNavigator {
	if opts.ServicesURL == "" {
		opts.ServicesURL = CharlestonServicesURL
	}
	if opts.RegisterURL == "" {
		opts.RegisterURL = CharlestonRegisterURL
	}
	if opts.MinBook <= 0 {
		opts.MinBook = CharlestonMinBook
	}
	return &CharlestonNavigator{
		opts: opts,
		rules: deeds.Rules{
			Rows:   "table#grdTransactions tr",
			Column: 1,
			Accept: deeds.MinLetterBook(opts.MinBook),
		},
	}
}

func (n *CharlestonNavigator) Jurisdiction() parcel.Jurisdiction { return parcel.Charleston }

func (n *CharlestonNavigator) Locate(ctx context.Context, v *Visit) error {
	s := v.Session
	if err := s.Navigate(ctx, n.opts.ServicesURL); err != nil {
		return err
	}
	for _, link := range []browser.Selector{chsPayTaxes, chsRealProperty} {
		if err := clickJS(ctx, s, link); err != nil {
			return err
		}
	}

	if _, err := browser.SetField(ctx, s, chsPIN, v.Parcel.SearchID()); err != nil {
		return err
	}
	if err := click(ctx, s, chsSearch); err != nil {
		return err
	}
	return clickJS(ctx, s, chsViewDetails)
}

func (n *CharlestonNavigator) CaptureRecord(ctx context.Context, v *Visit) error {
	v.Capture(ctx, "Property Card")
	return nil
}

func (n *CharlestonNavigator) ExtractDeeds(ctx context.Context, v *Visit) ([]deeds.Reference, error) {
	return extract(ctx, v, n.rules)
}

func (n *CharlestonNavigator) CaptureSecondary(ctx context.Context, v *Visit) error {
	if err := clickJS(ctx, v.Session, chsTaxInfo); err != nil {
		return err
	}
	v.Capture(ctx, "Tax Info")
	return nil
}

func (n *CharlestonNavigator) LookupDeed(ctx context.Context, v *Visit, ref deeds.Reference) error {
	s := v.Session
	v.Logger.Debug("searching register of deeds", zap.String("book", ref.Book), zap.String("page", ref.PaddedPage()))
	if err := s.Navigate(ctx, n.opts.RegisterURL); err != nil {
		return err
	}

	if _, err := browser.SetField(ctx, s, chsBook, ref.Book); err != nil {
		return err
	}
	if _, err := browser.SetField(ctx, s, chsPage, ref.PaddedPage()); err != nil {
		return err
	}
	for _, sel := range []browser.Selector{chsDisclaimer, chsRegisterSearch} {
		if err := click(ctx, s, sel); err != nil {
			return err
		}
	}

	return captureInNewWindow(ctx, v, chsViewDocument, ref.Label())
}

// clickJS waits for a link to be clickable and clicks it from a script.
func clickJS(ctx context.Context, s browser.Session, sel browser.Selector) error {
	el, err := s.WaitClickable(ctx, sel)
	if err != nil {
		return err
	}
	return el.ClickJS(ctx)
}
