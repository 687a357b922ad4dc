package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ondamlab/yesterday/internal/cache"
	"github.com/ondamlab/yesterday/internal/domain"
)

func TestKVSendRecorder(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewKVSendRecorder(cache.NewMemoryStore(clock), 48*time.Hour)
	ctx := context.Background()

	sent, err := r.AlreadySent(ctx, "s1", "20250613")
	require.NoError(t, err)
	assert.False(t, sent)

	require.NoError(t, r.RecordSent(ctx, "s1", "20250613"))

	sent, err = r.AlreadySent(ctx, "s1", "20250613")
	require.NoError(t, err)
	assert.True(t, sent)

	// A different day or subscriber is a separate record.
	sent, err = r.AlreadySent(ctx, "s1", "20250614")
	require.NoError(t, err)
	assert.False(t, sent)
	sent, err = r.AlreadySent(ctx, "s2", "20250613")
	require.NoError(t, err)
	assert.False(t, sent)

	// Records expire with their TTL.
	clock.Advance(49 * time.Hour)
	sent, err = r.AlreadySent(ctx, "s1", "20250613")
	require.NoError(t, err)
	assert.False(t, sent)
}

type downStore struct{}

func (downStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("connection refused")
}

func (downStore) SetEx(context.Context, string, string, time.Duration) error {
	return errors.New("connection refused")
}

func TestKVSendRecorder_StoreOutage(t *testing.T) {
	r := NewKVSendRecorder(downStore{}, 48*time.Hour)

	_, err := r.AlreadySent(context.Background(), "s1", "20250613")
	assert.True(t, errors.Is(err, domain.ErrCacheUnavailable))

	err = r.RecordSent(context.Background(), "s1", "20250613")
	assert.True(t, errors.Is(err, domain.ErrCacheUnavailable))
}
