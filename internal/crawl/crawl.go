package crawl

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/AlfredBerg/rod-records/internal/county"
	"github.com/AlfredBerg/rod-records/internal/parcel"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Run retrieves the records of every parcel in order, one at a time. A failing parcel is
// logged and recorded, the batch always continues. The session is closed once all parcels
// are done.
func (j *Job) Run(ctx context.Context, parcels []parcel.Request) Summary {
	if j.Logger == nil {
		j.Logger = zap.NewNop()
	}
	sum := Summary{RunID: uuid.NewString(), Total: len(parcels)}
	log := j.Logger.With(zap.String("run", sum.RunID))
	log.Info("starting run", zap.Int("parcels", len(parcels)))

	defer func() {
		if err := j.Session.Close(); err != nil {
			log.Warn("failed to close browser session", zap.Error(err))
		}
	}()

	for _, p := range parcels {
		if ctx.Err() != nil {
			log.Warn("run cancelled, remaining parcels not processed", zap.Error(ctx.Err()))
			break
		}
		plog := log.With(zap.String("parcel", p.ID), zap.Stringer("jurisdiction", p.Jurisdiction))

		res, err := j.parcel(ctx, p, plog)
		if err != nil {
			plog.Warn("skipping parcel", zap.Error(err))
			sum.Skipped++
			continue
		}
		sum.Results = append(sum.Results, res)

		if res.Succeeded() {
			sum.Succeeded++
			plog.Info("parcel done", zap.Int("deeds", len(res.Deeds)), zap.Int("documents", len(res.Documents)),
				zap.Strings("missing", res.Missing))
		} else {
			sum.Failed++
			plog.Error("parcel failed", zap.Stringer("stage", res.Stage), zap.Int("documents", len(res.Documents)),
				zap.Error(res.Err))
		}

		if j.OutputHandler != nil {
			if err := j.OutputHandler.HandleResult(sum.RunID, res); err != nil {
				plog.Warn("failed to record result", zap.Error(err))
			}
		}
	}

	log.Info("run done", zap.Int("total", sum.Total), zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed), zap.Int("skipped", sum.Skipped))
	return sum
}

// parcel runs one parcel. An error means the parcel was skipped before anything was
// written for it.
func (j *Job) parcel(ctx context.Context, p parcel.Request, log *zap.Logger) (*county.Result, error) {
	nav, ok := j.Navigators[p.Jurisdiction]
	if !ok {
		return nil, fmt.Errorf("%w: %q", parcel.ErrUnknownJurisdiction, p.Tag)
	}
	dir, err := j.dir(p)
	if err != nil {
		return nil, err
	}
	if err := j.Fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	if j.ParcelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.ParcelTimeout)
		defer cancel()
	}

	log.Info("retrieving parcel", zap.String("dir", dir))
	return county.Run(ctx, nav, &county.Visit{
		Session:  j.Session,
		Capturer: j.Capturer,
		Parcel:   p,
		Dir:      dir,
		Logger:   log,
		Wait:     j.Wait,
	}), nil
}

// dir is the output directory of p. The identifier is used as given, so it must stay a
// single path element.
func (j *Job) dir(p parcel.Request) (string, error) {
	id := p.ID
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("parcel identifier %q is not usable as a directory name", id)
	}
	return filepath.Join(j.OutputRoot, id), nil
}
