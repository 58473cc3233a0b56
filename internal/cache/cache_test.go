package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour)

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	val := []byte(`{"is_casting_call":true}`)
	require.NoError(t, m.Set(ctx, "k", val, time.Minute))
	val[0] = 'x'

	got, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"is_casting_call":true}`, string(got))
	require.Equal(t, 1, m.Len())
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour)
	require.NoError(t, m.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	require.Eventually(t, func() bool {
		_, ok, _ := m.Get(ctx, "k")
		return !ok
	}, time.Second, 5*time.Millisecond)
}
