// Package countytest simulates the Charleston and Berkeley county portals on top of
// browsertest.
package countytest

import (
	"net/url"
	"strings"

	"github.com/AlfredBerg/rod-records/internal/browser"
	"github.com/AlfredBerg/rod-records/internal/browser/browsertest"
)

// Form fields shared by both registers of deeds.
var (
	BookField = browser.Name("book[booknum]")
	PageField = browser.Name("book[pagenum]")
	BookType  = browser.Name("booktype")

	registerSearch = browser.XPath(`//input[@value="Search"]`)
)

const (
	CharlestonServices   = "https://charlestoncounty.org/online-services.php"
	CharlestonRegister   = "https://docviewer.charlestoncounty.org/ROD/BookSearch.aspx"
	BerkeleyCard         = "https://berkeleycountysc.gov/propcards/property_card.php"
	BerkeleyTax          = "https://taxsearch.berkeleycountysc.gov/"
	BerkeleyDeeds        = "https://search.berkeleydeeds.com/NameSearch.php?Accept=Accept"
	charlestonPay        = "https://charlestoncounty.org/pay-taxes"
	charlestonSearch     = "https://charlestoncounty.org/real-property/search"
	charlestonResults    = "https://charlestoncounty.org/real-property/results"
	charlestonDetails    = "https://charlestoncounty.org/real-property/details"
	charlestonTaxInfo    = "https://charlestoncounty.org/real-property/tax-info"
	charlestonRegResults = "https://docviewer.charlestoncounty.org/ROD/BookResults.aspx"
	berkeleyCardView     = "https://berkeleycountysc.gov/propcards/view"
	berkeleyTaxResults   = "https://taxsearch.berkeleycountysc.gov/results"
	berkeleyTaxParcel    = "https://taxsearch.berkeleycountysc.gov/parcel"
	berkeleyTaxBill      = "https://taxsearch.berkeleycountysc.gov/bill"
	berkeleyTaxReceipt   = "https://taxsearch.berkeleycountysc.gov/receipt"
	berkeleyDeedsResults = "https://search.berkeleydeeds.com/results"
)

// DocURL is the address of the deed image window the registers open for book/page.
func DocURL(register, book, page string) string {
	return register + "#doc?" + url.Values{"book": {book}, "page": {page}}.Encode()
}

func table(attrs string, tokens []string) string {
	var b strings.Builder
	b.WriteString(`<table ` + attrs + `><tr><th>Date</th><th>Book Page</th><th>Sale Price</th></tr>`)
	for _, tok := range tokens {
		b.WriteString(`<tr><td>01/01/2000</td><td>` + tok + `</td><td>$1</td></tr>`)
	}
	b.WriteString(`</table>`)
	return b.String()
}

func els(m map[browser.Selector]browsertest.Action) map[browser.Selector]*browsertest.Element {
	out := make(map[browser.Selector]*browsertest.Element, len(m))
	for sel, a := range m {
		out[sel] = &browsertest.Element{OnClick: a}
	}
	return out
}

// registerResults serves the result of a book/page search. Searches for a book listed in
// missing find nothing.
func registerResults(register string, link browser.Selector, missing map[string]bool) *browsertest.Page {
	return &browsertest.Page{Build: func(s *browsertest.Session) *browsertest.Page {
		book, page := s.Value(BookField), s.Value(PageField)
		if missing[book+" "+page] {
			return &browsertest.Page{HTML: "<p>No documents found</p>"}
		}
		doc := DocURL(register, book, page)
		s.Pages[doc] = &browsertest.Page{HTML: "<embed src='deed.pdf'>"}
		return &browsertest.Page{Elements: els(map[browser.Selector]browsertest.Action{
			link: browsertest.OpenWindow(doc),
		})}
	}}
}

type Charleston struct {
	// PIN is the separator-free identifier the search knows.
	PIN string
	// Transactions are the Book/Page cells of the transaction table.
	Transactions []string
	// Missing deeds ("A285 112") have no document in the register.
	Missing map[string]bool
	// NoTaxInfo hides the tax info link.
	NoTaxInfo bool
}

func (c Charleston) Pages() map[string]*browsertest.Page {
	details := els(map[browser.Selector]browsertest.Action{
		browser.LinkText("Tax Info"): browsertest.Goto(charlestonTaxInfo),
	})
	if c.NoTaxInfo {
		details = nil
	}
	return map[string]*browsertest.Page{
		CharlestonServices: {Elements: els(map[browser.Selector]browsertest.Action{
			browser.PartialLinkText("Pay Taxes & View Records"): browsertest.Goto(charlestonPay),
		})},
		charlestonPay: {Elements: els(map[browser.Selector]browsertest.Action{
			browser.LinkText("Real Property Record Search"): browsertest.Goto(charlestonSearch),
		})},
		charlestonSearch: {Elements: els(map[browser.Selector]browsertest.Action{
			browser.ID("txtPIN"):    nil,
			browser.ID("btnSearch"): browsertest.Goto(charlestonResults),
		})},
		charlestonResults: {Build: func(s *browsertest.Session) *browsertest.Page {
			if s.Value(browser.ID("txtPIN")) != c.PIN {
				return &browsertest.Page{HTML: "<p>No parcels found</p>"}
			}
			return &browsertest.Page{Elements: els(map[browser.Selector]browsertest.Action{
				browser.LinkText("View Details"): browsertest.Goto(charlestonDetails),
			})}
		}},
		charlestonDetails: {
			HTML:     `<html><body><h1>Property Card</h1>` + table(`id="grdTransactions"`, c.Transactions) + `</body></html>`,
			Elements: details,
		},
		charlestonTaxInfo: {HTML: "<h1>Tax Info</h1>"},
		CharlestonRegister: {Elements: els(map[browser.Selector]browsertest.Action{
			BookField:                     nil,
			PageField:                     nil,
			browser.ID("disclaimerCheck"): nil,
			registerSearch:                browsertest.Goto(charlestonRegResults),
		})},
		charlestonRegResults: registerResults(CharlestonRegister, browser.PartialLinkText("View Document"), c.Missing),
	}
}

var (
	retrieveCard = browser.XPath(`//input[@value="Retrieve Property Card"]`)
	taxSubmit    = browser.XPath(`//button[@type="submit"]`)
	receiptTab   = browser.LinkText("View & Print Receipt")
)

type Berkeley struct {
	TMS         string
	Conveyances []string
	// Receipt shows the tax receipt tab.
	Receipt bool
	// ReceiptDisabled shows the receipt tab but never lets it be clicked.
	ReceiptDisabled bool
	Missing         map[string]bool
}

func (b Berkeley) Pages() map[string]*browsertest.Page {
	parcel := map[browser.Selector]browsertest.Action{
		browser.LinkText("View & Print Bill"): browsertest.Goto(berkeleyTaxBill),
	}
	if b.Receipt || b.ReceiptDisabled {
		parcel[receiptTab] = browsertest.Goto(berkeleyTaxReceipt)
	}
	tabs := func() map[browser.Selector]*browsertest.Element {
		out := els(parcel)
		if b.ReceiptDisabled {
			out[receiptTab].Hidden = true
		}
		return out
	}
	return map[string]*browsertest.Page{
		BerkeleyCard: {Elements: els(map[browser.Selector]browsertest.Action{
			browser.Name("tms"): nil,
			retrieveCard:        browsertest.Goto(berkeleyCardView),
		})},
		berkeleyCardView: {Build: func(s *browsertest.Session) *browsertest.Page {
			if s.Value(browser.Name("tms")) != b.TMS {
				return &browsertest.Page{HTML: "<p>Parcel not found</p>"}
			}
			return &browsertest.Page{
				HTML: `<html><body><div id="previousOwnerHistory">` + table("", b.Conveyances) + `</div></body></html>`,
			}
		}},
		BerkeleyTax: {Elements: els(map[browser.Selector]browsertest.Action{
			browser.Name("parcelid"): nil,
			taxSubmit:                browsertest.Goto(berkeleyTaxResults),
		})},
		berkeleyTaxResults: {Elements: els(map[browser.Selector]browsertest.Action{
			browser.LinkText("View"): browsertest.Goto(berkeleyTaxParcel),
		})},
		berkeleyTaxParcel: {Elements: tabs()},
		// Both tabs stay reachable from the bill and receipt views.
		berkeleyTaxBill:    {HTML: "<h1>Bill</h1>", Elements: tabs()},
		berkeleyTaxReceipt: {HTML: "<h1>Receipt</h1>", Elements: tabs()},
		BerkeleyDeeds: {Elements: els(map[browser.Selector]browsertest.Action{
			BookType:       nil,
			BookField:      nil,
			PageField:      nil,
			registerSearch: browsertest.Goto(berkeleyDeedsResults),
		})},
		berkeleyDeedsResults: registerResults(BerkeleyDeeds, browser.PartialLinkText("Document Image"), b.Missing),
	}
}

// Merge combines the pages of several portals into one browser.
func Merge(sites ...map[string]*browsertest.Page) map[string]*browsertest.Page {
	out := map[string]*browsertest.Page{}
	for _, site := range sites {
		for url, p := range site {
			out[url] = p
		}
	}
	return out
}

// Lookups returns the "book page" pairs submitted to the registers, in order.
func Lookups(s *browsertest.Session) []string {
	var (
		out  []string
		book string
	)
	for _, in := range s.Inputs {
		switch in.Selector {
		case BookField:
			book = in.Value
		case PageField:
			out = append(out, book+" "+in.Value)
		}
	}
	return out
}
