package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/ondamlab/yesterday/internal/cache"
	"github.com/ondamlab/yesterday/internal/domain"
)

// KVSendRecorder tracks which subscribers were already notified on a given
// local calendar day. Keys expire on their own, so yesterday's records clean
// themselves up.
type KVSendRecorder struct {
	store cache.Store
	ttl   time.Duration
}

// NewKVSendRecorder creates a recorder over a TTL key-value store. The TTL
// must exceed 24 hours so a record survives its whole local day everywhere.
func NewKVSendRecorder(store cache.Store, ttl time.Duration) *KVSendRecorder {
	return &KVSendRecorder{store: store, ttl: ttl}
}

func sentKey(id, day string) string {
	return fmt.Sprintf("sent:%s:%s", id, day)
}

// AlreadySent reports whether a send was recorded for the subscriber on the
// local day (YYYYMMDD).
func (r *KVSendRecorder) AlreadySent(ctx context.Context, id, day string) (bool, error) {
	_, ok, err := r.store.Get(ctx, sentKey(id, day))
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	return ok, nil
}

// RecordSent marks the subscriber as notified for the local day.
func (r *KVSendRecorder) RecordSent(ctx context.Context, id, day string) error {
	if err := r.store.SetEx(ctx, sentKey(id, day), "1", r.ttl); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	return nil
}
