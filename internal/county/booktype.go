package county

import (
	"fmt"
	"strings"

	"github.com/AlfredBerg/rod-records/internal/deeds"
)

// BookType is an option of the Berkeley deeds search "book type" dropdown.
type BookType string

const (
	OldRealProperty BookType = "OLD REAL PROPERTY"
	RecordBook      BookType = "RECORD BOOK"
)

// BookTypePolicy picks the book type a deed is searched under.
//
// The registry files deeds recorded before its 2015 cut-over under OLD REAL PROPERTY and
// later ones under RECORD BOOK, but the filing date is not known at search time. Until it
// is, the policy is provisional and defaults to AssumeOldRealProperty.
type BookTypePolicy func(ref deeds.Reference) BookType

func AssumeOldRealProperty(deeds.Reference) BookType { return OldRealProperty }

// FixedBookType searches every deed under bt.
func FixedBookType(bt BookType) BookTypePolicy {
	return func(deeds.Reference) BookType { return bt }
}

// ParseBookTypePolicy maps a configured book type name to a fixed policy. An empty name
// selects the default.
func ParseBookTypePolicy(name string) (BookTypePolicy, error) {
	switch BookType(strings.ToUpper(strings.TrimSpace(name))) {
	case "", OldRealProperty:
		return AssumeOldRealProperty, nil
	case RecordBook:
		return FixedBookType(RecordBook), nil
	}
	return nil, fmt.Errorf("unknown book type %q", name)
}
