package browser

import (
	"context"
	"fmt"
	"time"
)

// SetField waits for the field to be present, clears it and types value verbatim.
// Normalising value is the caller's job.
func SetField(ctx context.Context, s Session, sel Selector, value string) (Element, error) {
	el, err := s.WaitPresent(ctx, sel)
	if err != nil {
		return nil, err
	}
	if err := el.Clear(ctx); err != nil {
		return nil, fmt.Errorf("clear %s: %w", sel, err)
	}
	if err := el.Type(ctx, value); err != nil {
		return nil, fmt.Errorf("type into %s: %w", sel, err)
	}
	return el, nil
}

// OpenWindow clicks el and waits up to timeout for a window that did not exist before the
// click. It returns the new window's handle without switching to it.
func OpenWindow(ctx context.Context, s Session, el Element, timeout time.Duration) (string, error) {
	before, err := s.Windows(ctx)
	if err != nil {
		return "", err
	}
	known := make(map[string]bool, len(before))
	for _, h := range before {
		known[h] = true
	}

	if err := el.Click(ctx); err != nil {
		return "", err
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		handles, err := s.Windows(ctx)
		if err != nil {
			return "", err
		}
		for _, h := range handles {
			if !known[h] {
				return h, nil
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", fmt.Errorf("%w after %s", ErrNoNewWindow, timeout)
		case <-tick.C:
		}
	}
}
