package capture

import (
	"fmt"
	"time"
)

// Capability identifies one of the fixed capability queries a host may
// issue against a source.
type Capability int

const (
	CapSeek Capability = iota
	CapPause
	CapControlPace
	CapControlRate
	CapRecord
	CapMeta
)

// Query is the closed set of synchronous questions a host may ask a
// source. Each kind carries its own typed result slot, filled in by
// Control on success.
type Query interface {
	isQuery()
}

// TimeQuery asks for the stream's server-reported elapsed recording time.
type TimeQuery struct {
	Value time.Duration
}

func (*TimeQuery) isQuery() {}

// DelayQuery asks for the configured end-to-end buffering target. The
// answer is the caching value the source was opened with, not a live
// measurement.
type DelayQuery struct {
	Value time.Duration
}

func (*DelayQuery) isQuery() {}

// CapabilityQuery asks whether the source supports one capability. A live
// capture feed is unseekable, unpausable and fixed rate, so every
// capability reports false.
type CapabilityQuery struct {
	Capability Capability
	Value      bool
}

func (*CapabilityQuery) isQuery() {}

// Control answers a synchronous query. Unrecognized query kinds fail with
// ErrUnsupported; so does a time query the server cannot answer. Queries
// never affect stream health.
func (s *Source) Control(q Query) error {
	switch q := q.(type) {
	case *TimeQuery:
		s.loop.Lock()
		t, err := s.stream.Time()
		s.loop.Unlock()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		q.Value = t

	case *DelayQuery:
		q.Value = s.caching

	case *CapabilityQuery:
		q.Value = false

	default:
		return ErrUnsupported
	}
	return nil
}
