package sink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFormat() Format {
	return Format{SampleRate: 48000, Channels: 2, BitsPerSample: 16, BlockAlign: 4}
}

func TestChannelSinkDeliversBlocks(t *testing.T) {
	s := NewChannelSink(4)
	track, err := s.AddTrack(testFormat())
	require.NoError(t, err)

	pool := NewBlockPool(4)
	block, err := pool.Get(8)
	require.NoError(t, err)
	block.Samples = 2
	track.Send(block)

	select {
	case got := <-s.Blocks():
		assert.Equal(t, 2, got.Samples)
		got.Release()
	case <-time.After(time.Second):
		t.Fatal("no block delivered")
	}
	assert.Equal(t, uint64(0), s.Dropped())
}

func TestChannelSinkDropsWhenConsumerBehind(t *testing.T) {
	s := NewChannelSink(1)
	track, err := s.AddTrack(testFormat())
	require.NoError(t, err)

	pool := NewBlockPool(8)
	for i := 0; i < 3; i++ {
		block, err := pool.Get(4)
		require.NoError(t, err)
		track.Send(block)
	}

	// One block buffered, two dropped, and the dropped ones returned
	// their capacity to the pool.
	assert.Equal(t, uint64(2), s.Dropped())
	assert.Equal(t, 1, pool.InFlight())
}

func TestChannelSinkClock(t *testing.T) {
	s := NewChannelSink(1)
	ref := time.Unix(100, 0)
	s.SetClock(ref)
	assert.Equal(t, ref, s.Clock())
}

func TestChannelSinkCloseEndsStream(t *testing.T) {
	s := NewChannelSink(1)
	_, err := s.AddTrack(testFormat())
	require.NoError(t, err)

	s.Close()
	_, open := <-s.Blocks()
	assert.False(t, open)

	assert.NotPanics(t, s.Close)
}
