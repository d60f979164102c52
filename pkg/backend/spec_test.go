package backend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSampleSpecValid(t *testing.T) {
	valid := SampleSpec{Format: SampleS16NE, Rate: 48000, Channels: 2}
	assert.True(t, valid.Valid())

	assert.False(t, SampleSpec{Format: SampleInvalid, Rate: 48000, Channels: 2}.Valid())
	assert.False(t, SampleSpec{Format: SampleS16NE, Rate: 0, Channels: 2}.Valid())
	assert.False(t, SampleSpec{Format: SampleS16NE, Rate: 48000, Channels: 0}.Valid())
}

func TestSampleSpecSizes(t *testing.T) {
	spec := SampleSpec{Format: SampleS16NE, Rate: 48000, Channels: 2}

	assert.Equal(t, 4, spec.FrameSize())
	assert.Equal(t, 192000, spec.BytesPerSecond())
}

func TestDurationToBytes(t *testing.T) {
	spec := SampleSpec{Format: SampleS16NE, Rate: 48000, Channels: 2}

	// 300ms at 192000 B/s is 57600 bytes, a whole number of frames.
	assert.Equal(t, 57600, spec.DurationToBytes(300*time.Millisecond))
	assert.Equal(t, 0, spec.DurationToBytes(0))
	assert.Equal(t, 0, spec.DurationToBytes(-time.Second))
}

func TestBytesToDuration(t *testing.T) {
	spec := SampleSpec{Format: SampleS16NE, Rate: 48000, Channels: 2}

	assert.Equal(t, 300*time.Millisecond, spec.BytesToDuration(57600))
	assert.Equal(t, time.Duration(0), spec.BytesToDuration(0))
}

func TestStereoMapCompatibility(t *testing.T) {
	spec := SampleSpec{Format: SampleS16NE, Rate: 48000, Channels: 2}
	chmap := StereoMap()

	assert.True(t, chmap.Valid())
	assert.True(t, chmap.CompatibleWith(spec))

	mono := SampleSpec{Format: SampleS16NE, Rate: 48000, Channels: 1}
	assert.False(t, chmap.CompatibleWith(mono))

	assert.False(t, ChannelMap{}.Valid())
	assert.False(t, ChannelMap{Positions: []ChannelPosition{ChannelInvalid}}.Valid())
}
