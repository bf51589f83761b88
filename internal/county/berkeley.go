package county

import (
	"context"
	"errors"
	"fmt"

	"github.com/AlfredBerg/rod-records/internal/browser"
	"github.com/AlfredBerg/rod-records/internal/deeds"
	"github.com/AlfredBerg/rod-records/internal/parcel"
	"go.uber.org/zap"
)

const (
	BerkeleyCardURL  = "https://berkeleycountysc.gov/propcards/property_card.php"
	BerkeleyTaxURL   = "https://taxsearch.berkeleycountysc.gov/"
	BerkeleyDeedsURL = "https://search.berkeleydeeds.com/NameSearch.php?Accept=Accept"
)

// Berkeley selectors.
var (
	bkTMS           = browser.Name("tms")
	bkRetrieveCard  = browser.XPath(`//input[@value="Retrieve Property Card"]`)
	bkParcelID      = browser.Name("parcelid")
	bkTaxSubmit     = browser.XPath(`//button[@type="submit"]`)
	bkView          = browser.LinkText("View")
	bkBill          = browser.LinkText("View & Print Bill")
	bkReceipt       = browser.LinkText("View & Print Receipt")
	bkBookType      = browser.Name("booktype")
	bkBook          = browser.Name("book[booknum]")
	bkPage          = browser.Name("book[pagenum]")
	bkDeedsSearch   = browser.XPath(`//input[@value="Search"]`)
	bkDocumentImage = browser.PartialLinkText("Document Image")
)

type BerkeleyOptions struct {
	CardURL  string
	TaxURL   string
	DeedsURL string
	BookType BookTypePolicy
}

// BerkeleyNavigator fetches the property card, the tax bill and receipt, and deed images
// from three separate Berkeley county sites.
type BerkeleyNavigator struct {
	opts  BerkeleyOptions
	rules deeds.Rules
}

func NewBerkeley(opts BerkeleyOptions) *BerkeleyNavigator {
	if opts.CardURL == "" {
		opts.CardURL = BerkeleyCardURL
	}
	if opts.TaxURL == "" {
		opts.TaxURL = BerkeleyTaxURL
	}
	if opts.DeedsURL == "" {
		opts.DeedsURL = BerkeleyDeedsURL
	}
	if opts.BookType == nil {
		opts.BookType = AssumeOldRealProperty
	}
	return &BerkeleyNavigator{
		opts: opts,
		rules: deeds.Rules{
			Rows:   "#previousOwnerHistory tr",
			Column: 1,
			Accept: deeds.AcceptAll,
		},
	}
}

func (n *BerkeleyNavigator) Jurisdiction() parcel.Jurisdiction { return parcel.Berkeley }

func (n *BerkeleyNavigator) Locate(ctx context.Context, v *Visit) error {
	s := v.Session
	if err := s.Navigate(ctx, n.opts.CardURL); err != nil {
		return err
	}
	if _, err := browser.SetField(ctx, s, bkTMS, v.Parcel.SearchID()); err != nil {
		return err
	}
	return click(ctx, s, bkRetrieveCard)
}

func (n *BerkeleyNavigator) CaptureRecord(ctx context.Context, v *Visit) error {
	v.Capture(ctx, "Property Card")
	return nil
}

func (n *BerkeleyNavigator) ExtractDeeds(ctx context.Context, v *Visit) ([]deeds.Reference, error) {
	return extract(ctx, v, n.rules)
}

func (n *BerkeleyNavigator) CaptureSecondary(ctx context.Context, v *Visit) error {
	s := v.Session
	if err := s.Navigate(ctx, n.opts.TaxURL); err != nil {
		return err
	}
	if _, err := browser.SetField(ctx, s, bkParcelID, v.Parcel.SearchID()); err != nil {
		return err
	}
	if err := click(ctx, s, bkTaxSubmit); err != nil {
		return err
	}
	if err := clickJS(ctx, s, bkView); err != nil {
		return err
	}
	if err := clickJS(ctx, s, bkBill); err != nil {
		return err
	}
	v.Capture(ctx, "Tax Bill")

	// Unpaid bills have no receipt
	err := clickJS(ctx, s, bkReceipt)
	if errors.Is(err, browser.ErrElementNotFound) || errors.Is(err, browser.ErrElementNotInteractable) {
		v.Logger.Info("no tax receipt available", zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}
	v.Capture(ctx, "Tax Receipt")
	return nil
}

func (n *BerkeleyNavigator) LookupDeed(ctx context.Context, v *Visit, ref deeds.Reference) error {
	s := v.Session
	bookType := n.opts.BookType(ref)
	v.Logger.Debug("searching deeds",
		zap.String("book", ref.Book), zap.String("page", ref.PaddedPage()), zap.String("book_type", string(bookType)))
	if err := s.Navigate(ctx, n.opts.DeedsURL); err != nil {
		return err
	}

	dropdown, err := s.WaitClickable(ctx, bkBookType)
	if err != nil {
		return err
	}
	if err := dropdown.SelectOption(ctx, string(bookType)); err != nil {
		return err
	}
	if _, err := browser.SetField(ctx, s, bkBook, ref.Book); err != nil {
		return err
	}
	if _, err := browser.SetField(ctx, s, bkPage, ref.PaddedPage()); err != nil {
		return err
	}
	if err := click(ctx, s, bkDeedsSearch); err != nil {
		return err
	}

	return captureInNewWindow(ctx, v, bkDocumentImage, ref.Label())
}

// click finds an element that is already on the page and clicks it.
func click(ctx context.Context, s browser.Session, sel browser.Selector) error {
	el, err := s.Find(ctx, sel)
	if err != nil {
		return err
	}
	if err := el.Click(ctx); err != nil {
		return fmt.Errorf("click %s: %w", sel, err)
	}
	return nil
}
