package crawl

import (
	"time"

	"github.com/AlfredBerg/rod-records/internal/browser"
	"github.com/AlfredBerg/rod-records/internal/county"
	"github.com/AlfredBerg/rod-records/internal/parcel"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// OutputHandler records the outcome of every parcel of a run.
type OutputHandler interface {
	HandleResult(runID string, res *county.Result) error
}

type Job struct {
	Session    browser.Session
	Navigators map[parcel.Jurisdiction]county.Navigator
	Capturer   county.Capturer

	// OutputRoot gets one directory per parcel, named by the identifier as given.
	OutputRoot string
	Fs         afero.Fs

	// OutputHandler is optional.
	OutputHandler OutputHandler
	Logger        *zap.Logger

	// ParcelTimeout bounds the navigation of one parcel, 0 means no deadline.
	ParcelTimeout time.Duration
	// Wait bounds waiting for deed windows to open.
	Wait time.Duration
}

// Summary counts the parcels of a run.
type Summary struct {
	RunID     string
	Total     int
	Succeeded int
	Failed    int
	// Skipped parcels had no navigator or an unusable identifier.
	Skipped int
	Results []*county.Result
}
