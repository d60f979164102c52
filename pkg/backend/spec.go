package backend

import "time"

// SampleFormat identifies the encoding of one sample.
type SampleFormat int

const (
	SampleInvalid SampleFormat = iota
	// SampleS16NE is 16-bit signed native-endian interleaved PCM, the
	// only format this pipeline negotiates.
	SampleS16NE
)

// sampleSize returns the byte size of one sample of the format, or zero
// for an invalid format.
func (f SampleFormat) sampleSize() int {
	if f == SampleS16NE {
		return 2
	}
	return 0
}

// SampleSpec describes the sample encoding, rate and channel count of a
// stream.
type SampleSpec struct {
	Format   SampleFormat
	Rate     uint32
	Channels uint8
}

// MaxChannels is the largest channel count a stream may negotiate.
const MaxChannels = 32

// Valid reports whether the spec is self-consistent.
func (s SampleSpec) Valid() bool {
	return s.Format.sampleSize() > 0 && s.Rate > 0 && s.Channels > 0 && s.Channels <= MaxChannels
}

// FrameSize returns the byte size of one sample frame, one sample per
// channel.
func (s SampleSpec) FrameSize() int {
	return s.Format.sampleSize() * int(s.Channels)
}

// BytesPerSecond returns the byte rate of the spec.
func (s SampleSpec) BytesPerSecond() int {
	return s.FrameSize() * int(s.Rate)
}

// DurationToBytes converts a duration of audio into a byte count, rounded
// down to a whole frame.
func (s SampleSpec) DurationToBytes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	frames := int(d * time.Duration(s.Rate) / time.Second)
	return frames * s.FrameSize()
}

// BytesToDuration converts a byte count into the duration of audio it
// holds at this spec's byte rate.
func (s SampleSpec) BytesToDuration(n int) time.Duration {
	bps := s.BytesPerSecond()
	if bps <= 0 || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// ChannelPosition names the speaker role of one interleaved channel.
type ChannelPosition int

const (
	ChannelInvalid ChannelPosition = iota
	ChannelMono
	ChannelFrontLeft
	ChannelFrontRight
	ChannelFrontCenter
	ChannelRearLeft
	ChannelRearRight
	ChannelLFE
)

// ChannelMap assigns a position to every channel of a stream, in
// interleaving order.
type ChannelMap struct {
	Positions []ChannelPosition
}

// StereoMap returns the front-left/front-right map this pipeline
// negotiates by default.
func StereoMap() ChannelMap {
	return ChannelMap{Positions: []ChannelPosition{ChannelFrontLeft, ChannelFrontRight}}
}

// Valid reports whether the map is self-consistent.
func (m ChannelMap) Valid() bool {
	if len(m.Positions) == 0 || len(m.Positions) > MaxChannels {
		return false
	}
	for _, p := range m.Positions {
		if p == ChannelInvalid {
			return false
		}
	}
	return true
}

// CompatibleWith reports whether the map covers exactly the channels of
// the spec.
func (m ChannelMap) CompatibleWith(s SampleSpec) bool {
	return len(m.Positions) == int(s.Channels)
}

// BufferAttr carries the server-side buffering request for a stream. A
// value of -1 leaves the choice to the server.
type BufferAttr struct {
	// MaxLength is the upper bound on the receive buffer, in bytes.
	MaxLength int
	// FragSize is the target size of one data-ready fragment, in bytes.
	FragSize int
}
