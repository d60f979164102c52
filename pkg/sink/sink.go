// Package sink defines the outbound contract of the capture pipeline:
// where delivered media blocks and clock references go.
//
// The pipeline needs exactly three things from a sink: registering a
// track from a format descriptor, publishing a clock reference, and
// accepting ownership of delivered blocks. Everything downstream of
// those three operations is the host's business.
package sink

import "time"

// Format describes the raw PCM layout of a registered track.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	// BlockAlign is the byte size of one interleaved sample frame.
	BlockAlign int
	// Bitrate is the byte-exact bit rate of the track.
	Bitrate int
}

// Track is the registered endpoint blocks are delivered to.
type Track interface {
	// Send transfers ownership of the block to the track. It is called on
	// the event loop goroutine and must not block; a track that cannot
	// keep up releases blocks instead of delaying the loop.
	Send(*Block)
}

// Sink is the destination the capture pipeline feeds.
type Sink interface {
	// AddTrack registers an endpoint for blocks of the given format.
	AddTrack(Format) (Track, error)

	// SetClock publishes the pipeline's current clock reference. It is
	// called before every delivery attempt, including deliveries that are
	// subsequently skipped, so downstream clock synchronization stays
	// current even while no track is registered.
	SetClock(time.Time)
}
