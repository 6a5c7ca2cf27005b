package reconcile

import (
	"context"
	"errors"
	"fmt"

	"callsync_agent/platform/kvstore"
)

const watermarkKey = "autopost:watermark"

// Watermark is the persisted high-water timestamp of the newest device call
// the polling loop has fully handled. It only ever moves forward.
type Watermark struct {
	store kvstore.Store
}

// NewWatermark creates a watermark over the given store.
func NewWatermark(store kvstore.Store) *Watermark {
	return &Watermark{store: store}
}

// Load returns the stored mark, or 0 when none has been written yet.
func (w *Watermark) Load(ctx context.Context) (int64, error) {
	var mark int64
	err := kvstore.GetJSON(ctx, w.store, watermarkKey, &mark)
	if errors.Is(err, kvstore.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("watermark load: %w", err)
	}
	return mark, nil
}

// Advance moves the mark to ts if ts is ahead of the stored value.
// A lower or equal ts leaves the mark untouched, so the mark is
// monotonically non-decreasing no matter what callers pass in.
func (w *Watermark) Advance(ctx context.Context, ts int64) (int64, error) {
	current, err := w.Load(ctx)
	if err != nil {
		return 0, err
	}
	if ts <= current {
		return current, nil
	}
	if err := kvstore.SetJSON(ctx, w.store, watermarkKey, ts); err != nil {
		return 0, fmt.Errorf("watermark advance: %w", err)
	}
	return ts, nil
}
