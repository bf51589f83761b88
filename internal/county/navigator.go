package county

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AlfredBerg/rod-records/internal/browser"
	"github.com/AlfredBerg/rod-records/internal/deeds"
	"github.com/AlfredBerg/rod-records/internal/parcel"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Stage is how far the retrieval of one parcel got.
type Stage int

const (
	StartSearch Stage = iota
	ParcelLocated
	PrimaryCaptured
	DeedReferencesExtracted
	SecondaryDocumentsCaptured
	DeedLoop
	Done
)

func (s Stage) String() string {
	switch s {
	case StartSearch:
		return "start-search"
	case ParcelLocated:
		return "parcel-located"
	case PrimaryCaptured:
		return "primary-captured"
	case DeedReferencesExtracted:
		return "deed-references-extracted"
	case SecondaryDocumentsCaptured:
		return "secondary-documents-captured"
	case DeedLoop:
		return "deed-loop"
	case Done:
		return "done"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Navigator walks the portals of one jurisdiction. Each method runs one step for the parcel
// of the Visit and leaves the browser where the next step expects it.
type Navigator interface {
	Jurisdiction() parcel.Jurisdiction
	// Locate searches the parcel and opens its primary record.
	Locate(ctx context.Context, v *Visit) error
	CaptureRecord(ctx context.Context, v *Visit) error
	// ExtractDeeds reads the deed references off the primary record.
	ExtractDeeds(ctx context.Context, v *Visit) ([]deeds.Reference, error)
	// CaptureSecondary captures the tax documents.
	CaptureSecondary(ctx context.Context, v *Visit) error
	// LookupDeed searches the deeds registry for ref and captures the deed image.
	LookupDeed(ctx context.Context, v *Visit, ref deeds.Reference) error
}

// Capturer saves the page of the current window as dir/{label}.
type Capturer interface {
	Capture(ctx context.Context, label, dir string) (string, error)
}

type Document struct {
	Label string
	Path  string
}

// StageError is why a parcel stopped before Done.
type StageError struct {
	// Stage is the stage that was being worked towards.
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Result is the outcome of one parcel. Documents captured before a failure stay on disk
// and are listed here.
type Result struct {
	Parcel parcel.Request
	Dir    string
	// Stage is the last stage completed.
	Stage Stage
	// Err is a *StageError, nil when the parcel reached Done.
	Err error

	Documents []Document
	// Missing lists labels whose capture failed without stopping the parcel.
	Missing []string
	Deeds   []deeds.Reference
	// Fetched counts the deeds looked up.
	Fetched int
}

func (r *Result) Succeeded() bool { return r.Err == nil }

// Visit is the navigation state of one parcel. It owns the browser session until Run
// returns.
type Visit struct {
	Session  browser.Session
	Capturer Capturer
	Parcel   parcel.Request
	Dir      string
	Logger   *zap.Logger
	// Wait bounds waiting for a deed window to open.
	Wait time.Duration

	result     *Result
	attempting Stage
}

// Capture saves the current page under label once it has settled. A failed capture is logged and recorded as
// missing; it never stops the parcel.
func (v *Visit) Capture(ctx context.Context, label string) bool {
	path, err := v.capture(ctx, label)
	if err != nil {
		v.Logger.Warn("failed to save document", zap.String("label", label), zap.Error(err))
		v.result.Missing = append(v.result.Missing, label)
		return false
	}
	v.Logger.Info("saved document", zap.String("label", label), zap.String("path", path))
	v.result.Documents = append(v.result.Documents, Document{Label: label, Path: path})
	return true
}

func (v *Visit) capture(ctx context.Context, label string) (string, error) {
	if err := v.Session.WaitSettled(ctx); err != nil {
		return "", err
	}
	return v.Capturer.Capture(ctx, label, v.Dir)
}

func (v *Visit) wait() time.Duration {
	if v.Wait <= 0 {
		return browser.DefaultWait
	}
	return v.Wait
}

// Run takes one parcel from StartSearch to Done. Any error or panic along the way ends the
// parcel and is returned inside the Result.
func Run(ctx context.Context, nav Navigator, v *Visit) *Result {
	res := &Result{Parcel: v.Parcel, Dir: v.Dir, Stage: StartSearch}
	v.result = res
	if v.Logger == nil {
		v.Logger = zap.NewNop()
	}

	var pc panics.Catcher
	pc.Try(func() {
		res.Err = walk(ctx, nav, v, res)
	})
	if r := pc.Recovered(); r != nil {
		res.Err = &StageError{Stage: v.attempting, Err: r.AsError()}
	}
	return res
}

func walk(ctx context.Context, nav Navigator, v *Visit, res *Result) error {
	step := func(next Stage, f func() error) error {
		v.attempting = next
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: next, Err: err}
		}
		if err := f(); err != nil {
			return &StageError{Stage: next, Err: err}
		}
		res.Stage = next
		v.Logger.Debug("reached stage", zap.Stringer("stage", next))
		return nil
	}

	if err := step(ParcelLocated, func() error { return nav.Locate(ctx, v) }); err != nil {
		return err
	}
	if err := step(PrimaryCaptured, func() error { return nav.CaptureRecord(ctx, v) }); err != nil {
		return err
	}
	err := step(DeedReferencesExtracted, func() error {
		refs, err := nav.ExtractDeeds(ctx, v)
		res.Deeds = refs
		return err
	})
	if err != nil {
		return err
	}
	if err := step(SecondaryDocumentsCaptured, func() error { return nav.CaptureSecondary(ctx, v) }); err != nil {
		return err
	}

	for _, ref := range res.Deeds {
		err := step(DeedLoop, func() error {
			if err := nav.LookupDeed(ctx, v, ref); err != nil {
				return fmt.Errorf("deed %s: %w", ref, err)
			}
			res.Fetched++
			return nil
		})
		if err != nil {
			return err
		}
	}

	res.Stage = Done
	return nil
}

// extract reads the deed references of the page, logging the rows it had to skip.
func extract(ctx context.Context, v *Visit, rules deeds.Rules) ([]deeds.Reference, error) {
	if err := v.Session.WaitSettled(ctx); err != nil {
		return nil, err
	}
	html, err := v.Session.HTML(ctx)
	if err != nil {
		return nil, err
	}
	refs, err := deeds.Extract(html, rules)
	for _, e := range multierr.Errors(err) {
		var row *deeds.RowError
		if !errors.As(e, &row) {
			return nil, e
		}
		v.Logger.Warn("skipped deed row", zap.Int("row", row.Row), zap.String("token", row.Token), zap.Error(row.Err))
	}
	v.Logger.Info("found deed references", zap.Int("count", len(refs)))
	return refs, nil
}

// captureInNewWindow clicks the result link, captures the window it opens, closes that
// window and returns to the window it started from.
func captureInNewWindow(ctx context.Context, v *Visit, link browser.Selector, label string) (err error) {
	s := v.Session
	el, err := s.WaitClickable(ctx, link)
	if err != nil {
		return err
	}
	origin := s.Current()

	handle, err := browser.OpenWindow(ctx, s, el, v.wait())
	if err != nil {
		return err
	}
	if err := s.SwitchTo(ctx, handle); err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, s.SwitchTo(ctx, origin))
	}()

	v.Capture(ctx, label)
	return s.CloseWindow(ctx)
}
