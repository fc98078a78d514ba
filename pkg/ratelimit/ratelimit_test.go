package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllow_WithinLimit(t *testing.T) {
	l := New(Limits{ActionPerMinute: 3, ChatPerMinute: 20, DMPerMinute: 60})

	now := time.Unix(1_700_000_000, 0)
	for i := 0; i < 3; i++ {
		d := l.allowAt("u1", BucketAction, now)
		assert.True(t, d.Allowed)
	}
}

func TestAllow_NPlusOneDenied(t *testing.T) {
	l := New(Limits{ActionPerMinute: 3, ChatPerMinute: 20, DMPerMinute: 60})

	now := time.Unix(1_700_000_000, 0)
	for i := 0; i < 3; i++ {
		require.True(t, l.allowAt("u1", BucketAction, now).Allowed)
	}

	d := l.allowAt("u1", BucketAction, now)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfterMS, int64(0))
}

func TestAllow_WindowRollOff(t *testing.T) {
	l := New(Limits{ActionPerMinute: 2, ChatPerMinute: 20, DMPerMinute: 60})

	now := time.Unix(1_700_000_000, 0)
	require.True(t, l.allowAt("u1", BucketAction, now).Allowed)
	require.True(t, l.allowAt("u1", BucketAction, now).Allowed)
	require.False(t, l.allowAt("u1", BucketAction, now).Allowed)

	// 61 seconds later the first two samples have rolled off the window.
	later := now.Add(61 * time.Second)
	assert.True(t, l.allowAt("u1", BucketAction, later).Allowed)
}

func TestAllow_PerUserIndependent(t *testing.T) {
	l := New(Limits{ActionPerMinute: 1, ChatPerMinute: 20, DMPerMinute: 60})

	now := time.Unix(1_700_000_000, 0)
	require.True(t, l.allowAt("u1", BucketAction, now).Allowed)
	assert.False(t, l.allowAt("u1", BucketAction, now).Allowed)
	assert.True(t, l.allowAt("u2", BucketAction, now).Allowed)
}

func TestAllow_BucketsIndependent(t *testing.T) {
	l := New(Limits{ActionPerMinute: 1, ChatPerMinute: 1, DMPerMinute: 1})

	now := time.Unix(1_700_000_000, 0)
	require.True(t, l.allowAt("u1", BucketAction, now).Allowed)
	assert.True(t, l.allowAt("u1", BucketChat, now).Allowed)
	assert.True(t, l.allowAt("u1", BucketDM, now).Allowed)
}

func TestReap_RemovesIdleWindows(t *testing.T) {
	l := New(Limits{ActionPerMinute: 30, ChatPerMinute: 20, DMPerMinute: 60})
	l.Allow("u1", BucketAction)

	assert.Equal(t, 0, l.Reap(time.Hour))
	assert.Equal(t, 1, l.Reap(-time.Second))
	assert.Len(t, l.windows, 0)
}
