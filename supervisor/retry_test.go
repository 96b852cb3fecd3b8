package supervisor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nvrengine/core/models"
)

func TestRetryListOrdersByRetryAtMs(t *testing.T) {
	rl := newRetryList()
	rl.Schedule(retryEntry{RetryAtMs: 300, Msg: models.Message{Camera: "c"}})
	rl.Schedule(retryEntry{RetryAtMs: 100, Msg: models.Message{Camera: "a"}})
	rl.Schedule(retryEntry{RetryAtMs: 200, Msg: models.Message{Camera: "b"}})

	require.Equal(t, 3, rl.Len())
	next, ok := rl.NextWake()
	require.True(t, ok)
	require.Equal(t, int64(100), next)

	ready := rl.DrainReady(250)
	require.Len(t, ready, 3)
	require.Equal(t, "a", ready[0].Msg.Camera)
	require.Equal(t, "b", ready[1].Msg.Camera)
	require.Equal(t, "c", ready[2].Msg.Camera)
	require.Equal(t, 0, rl.Len())
}

func TestRetryListDrainReadyOnlyTakesDue(t *testing.T) {
	rl := newRetryList()
	rl.Schedule(retryEntry{RetryAtMs: 100})
	rl.Schedule(retryEntry{RetryAtMs: 500})

	ready := rl.DrainReady(200)
	require.Len(t, ready, 1)
	require.Equal(t, 1, rl.Len())

	_, ok := rl.NextWake()
	require.True(t, ok)
}

func TestRetryListNextWakeEmpty(t *testing.T) {
	rl := newRetryList()
	_, ok := rl.NextWake()
	require.False(t, ok)
}
