package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var ErrCaptureTimeout = errors.New("no new document appeared in the download directory")

const (
	DefaultExt          = ".pdf"
	DefaultPollInterval = time.Second
	DefaultTimeout      = 10 * time.Second
)

// Printer triggers the browser's print action on the current page. An empty result means
// the printout will show up in the download directory on its own.
type Printer interface {
	Print(ctx context.Context) ([]byte, error)
}

// Capturer saves the current page of a browser as {label}{ext} in a destination
// directory. It must not be used for two captures at the same time: files in the download
// directory are attributed to whichever capture is waiting.
type Capturer struct {
	Printer   Printer
	Fs        afero.Fs
	Downloads string

	Ext          string
	PollInterval time.Duration
	Timeout      time.Duration

	Logger *zap.Logger
}

func New(p Printer, fs afero.Fs, downloads string, log *zap.Logger) *Capturer {
	return &Capturer{
		Printer:      p,
		Fs:           fs,
		Downloads:    downloads,
		Ext:          DefaultExt,
		PollInterval: DefaultPollInterval,
		Timeout:      DefaultTimeout,
		Logger:       log,
	}
}

// Capture prints the current page and stores it as dir/{label}{ext}, overwriting any
// earlier file of the same label. It returns the written path.
func (c *Capturer) Capture(ctx context.Context, label, dir string) (string, error) {
	dest := filepath.Join(dir, label+c.ext())

	before, err := c.scan()
	if err != nil {
		return "", err
	}

	data, err := c.Printer.Print(ctx)
	if err != nil {
		return "", fmt.Errorf("print %q: %w", label, err)
	}
	if len(data) > 0 {
		if err := afero.WriteFile(c.Fs, dest, data, 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", dest, err)
		}
		c.log().Debug("saved printout", zap.String("label", label), zap.String("path", dest))
		return dest, nil
	}

	src, err := c.waitForNew(ctx, before)
	if err != nil {
		return "", fmt.Errorf("capture %q: %w", label, err)
	}
	if err := c.move(src, dest); err != nil {
		return "", err
	}
	c.log().Debug("saved download", zap.String("label", label), zap.String("from", src), zap.String("path", dest))
	return dest, nil
}

func (c *Capturer) ext() string {
	if c.Ext == "" {
		return DefaultExt
	}
	return c.Ext
}

func (c *Capturer) log() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// scan lists the matching files in the download directory with their modification times.
func (c *Capturer) scan() (map[string]time.Time, error) {
	entries, err := afero.ReadDir(c.Fs, c.Downloads)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]time.Time{}, nil
		}
		return nil, fmt.Errorf("read download dir: %w", err)
	}
	files := make(map[string]time.Time, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), c.ext()) {
			continue
		}
		files[filepath.Join(c.Downloads, e.Name())] = e.ModTime()
	}
	return files, nil
}

// newest returns the most recently written file that is not in before, or was rewritten
// since. Several candidates are possible when a previous capture timed out and its file
// arrived late, so the newest one wins. Modification time stands in for creation time,
// which is not portable across file systems.
func newest(before, now map[string]time.Time) (string, bool) {
	var (
		best     string
		bestTime time.Time
	)
	for path, mod := range now {
		if old, ok := before[path]; ok && !mod.After(old) {
			continue
		}
		if best == "" || mod.After(bestTime) || (mod.Equal(bestTime) && path > best) {
			best, bestTime = path, mod
		}
	}
	return best, best != ""
}

func (c *Capturer) waitForNew(ctx context.Context, before map[string]time.Time) (string, error) {
	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	// On a real disk wake up as soon as the browser writes something. The poll ticker still
	// bounds the wait when notifications are unavailable.
	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if _, ok := c.Fs.(*afero.OsFs); ok {
		if w, err := fsnotify.NewWatcher(); err == nil {
			defer w.Close()
			if err := w.Add(c.Downloads); err == nil {
				events, errs = w.Events, w.Errors
			} else {
				c.log().Debug("not watching download dir", zap.Error(err))
			}
		}
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", fmt.Errorf("%w after %s", ErrCaptureTimeout, timeout)
		case <-tick.C:
		case <-events:
		case err := <-errs:
			c.log().Debug("download dir watch error", zap.Error(err))
		}

		now, err := c.scan()
		if err != nil {
			return "", err
		}
		if path, ok := newest(before, now); ok {
			return path, nil
		}
	}
}

// move renames src to dest, falling back to copy and delete when the two are on different
// devices.
func (c *Capturer) move(src, dest string) error {
	if err := c.Fs.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("replace %s: %w", dest, err)
	}
	if err := c.Fs.Rename(src, dest); err == nil {
		return nil
	}

	if err := c.copy(src, dest); err != nil {
		return err
	}
	return c.Fs.Remove(src)
}

func (c *Capturer) copy(src, dest string) error {
	in, err := c.Fs.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	out, err := c.Fs.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
