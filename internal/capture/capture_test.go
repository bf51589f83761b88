package capture

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type printerFunc func(ctx context.Context) ([]byte, error)

func (f printerFunc) Print(ctx context.Context) ([]byte, error) { return f(ctx) }

// downloadPrinter writes files into the download dir the way a browser print dialog would.
func downloadPrinter(t *testing.T, fs afero.Fs, files map[string]time.Time) Printer {
	return printerFunc(func(context.Context) ([]byte, error) {
		for path, mod := range files {
			require.NoError(t, afero.WriteFile(fs, path, []byte(filepath.Base(path)), 0o644))
			require.NoError(t, fs.Chtimes(path, mod, mod))
		}
		return nil, nil
	})
}

func newTestCapturer(t *testing.T, fs afero.Fs, p Printer) *Capturer {
	require.NoError(t, fs.MkdirAll("/downloads", 0o755))
	require.NoError(t, fs.MkdirAll("/out/123-45", 0o755))
	c := New(p, fs, "/downloads", zaptest.NewLogger(t))
	c.PollInterval = 10 * time.Millisecond
	c.Timeout = 300 * time.Millisecond
	return c
}

func stale(t *testing.T, fs afero.Fs, name string, age time.Duration) string {
	path := filepath.Join("/downloads", name)
	require.NoError(t, afero.WriteFile(fs, path, []byte("stale "+name), 0o644))
	mod := time.Now().Add(-age)
	require.NoError(t, fs.Chtimes(path, mod, mod))
	return path
}

func TestCapturePicksFreshFileOverStaleOnes(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := newTestCapturer(t, fs, nil)
	old1 := stale(t, fs, "old1.pdf", time.Hour)
	old2 := stale(t, fs, "old2.pdf", time.Minute)
	c.Printer = downloadPrinter(t, fs, map[string]time.Time{"/downloads/print.pdf": time.Now()})

	path, err := c.Capture(context.Background(), "Property Card", "/out/123-45")
	require.NoError(t, err)
	assert.Equal(t, "/out/123-45/Property Card.pdf", path)

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "print.pdf", string(data))

	for _, p := range []string{old1, old2} {
		ok, err := afero.Exists(fs, p)
		require.NoError(t, err)
		assert.True(t, ok, "stale file %s must be left alone", p)
	}
}

func TestCapturePicksNewestOfSeveralNewFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	now := time.Now()
	c := newTestCapturer(t, fs, nil)
	c.Printer = downloadPrinter(t, fs, map[string]time.Time{
		"/downloads/a.pdf": now.Add(-2 * time.Second),
		"/downloads/b.pdf": now,
		"/downloads/c.pdf": now.Add(-time.Second),
	})

	path, err := c.Capture(context.Background(), "Tax Bill", "/out/123-45")
	require.NoError(t, err)
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "b.pdf", string(data))
}

func TestCaptureDetectsRewrittenFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := newTestCapturer(t, fs, nil)
	stale(t, fs, "page.pdf", time.Hour)
	c.Printer = downloadPrinter(t, fs, map[string]time.Time{"/downloads/page.pdf": time.Now()})

	_, err := c.Capture(context.Background(), "Tax Info", "/out/123-45")
	require.NoError(t, err)
	data, err := afero.ReadFile(fs, "/out/123-45/Tax Info.pdf")
	require.NoError(t, err)
	assert.Equal(t, "page.pdf", string(data))
}

func TestCaptureIgnoresOtherExtensions(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := newTestCapturer(t, fs, nil)
	c.Printer = downloadPrinter(t, fs, map[string]time.Time{"/downloads/print.pdf.crdownload": time.Now()})

	_, err := c.Capture(context.Background(), "Tax Info", "/out/123-45")
	assert.True(t, errors.Is(err, ErrCaptureTimeout))
}

func TestCaptureTimesOutWithOnlyStaleFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := newTestCapturer(t, fs, downloadPrinter(t, fs, nil))
	old := stale(t, fs, "old.pdf", time.Hour)

	start := time.Now()
	_, err := c.Capture(context.Background(), "Tax Receipt", "/out/123-45")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCaptureTimeout))
	assert.GreaterOrEqual(t, time.Since(start), c.Timeout)

	ok, err := afero.Exists(fs, "/out/123-45/Tax Receipt.pdf")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = afero.Exists(fs, old)
	require.NoError(t, err)
	assert.True(t, ok, "a stale file must never be attributed to a new label")
}

func TestCaptureWritesPrintedBytes(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := newTestCapturer(t, fs, printerFunc(func(context.Context) ([]byte, error) {
		return []byte("%PDF-1.7"), nil
	}))

	path, err := c.Capture(context.Background(), "DB A285 112", "/out/123-45")
	require.NoError(t, err)
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))
}

func TestCaptureOverwritesSameLabel(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := newTestCapturer(t, fs, nil)
	require.NoError(t, afero.WriteFile(fs, "/out/123-45/Property Card.pdf", []byte("first"), 0o644))
	c.Printer = downloadPrinter(t, fs, map[string]time.Time{"/downloads/print.pdf": time.Now()})

	path, err := c.Capture(context.Background(), "Property Card", "/out/123-45")
	require.NoError(t, err)
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "print.pdf", string(data))
}

func TestCapturePrintError(t *testing.T) {
	fs := afero.NewMemMapFs()
	boom := errors.New("boom")
	c := newTestCapturer(t, fs, printerFunc(func(context.Context) ([]byte, error) { return nil, boom }))

	_, err := c.Capture(context.Background(), "Property Card", "/out/123-45")
	assert.True(t, errors.Is(err, boom))
}

func TestNewest(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	before := map[string]time.Time{"a": t0, "b": t0}
	now := map[string]time.Time{"a": t0, "b": t0.Add(time.Second), "c": t0.Add(2 * time.Second)}

	path, ok := newest(before, now)
	require.True(t, ok)
	assert.Equal(t, "c", path)

	_, ok = newest(before, before)
	assert.False(t, ok)
}
