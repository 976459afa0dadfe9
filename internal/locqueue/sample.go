package locqueue

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidSample is returned by AddLocation for malformed input. It is the
// only producer-visible failure: a rejected sample never allocates a
// sequence number, so validation failures leave no gap in the sequence space.
var ErrInvalidSample = errors.New("locqueue: invalid sample")

// Sample is one GPS observation as supplied by a producer.
type Sample struct {
	// DeviceTime is the observation timestamp (ISO-8601), caller-assigned.
	DeviceTime string `json:"deviceTime"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// Optional telemetry, passed through to the server unmodified.
	Speed    *float64 `json:"speed,omitempty"`
	Heading  *float64 `json:"heading,omitempty"`
	Odometer *float64 `json:"odometer,omitempty"`
	Accuracy *float64 `json:"accuracy,omitempty"`
}

// Validate checks the sample before a sequence number is allocated.
func (s Sample) Validate() error {
	if s.DeviceTime == "" {
		return fmt.Errorf("%w: deviceTime is required", ErrInvalidSample)
	}
	if !finite(s.Latitude) || s.Latitude < -90 || s.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidSample, s.Latitude)
	}
	if !finite(s.Longitude) || s.Longitude < -180 || s.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidSample, s.Longitude)
	}
	for name, v := range map[string]*float64{
		"speed": s.Speed, "heading": s.Heading, "odometer": s.Odometer, "accuracy": s.Accuracy,
	} {
		if v != nil && !finite(*v) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidSample, name)
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// BatchSample is the outbound wire form of a queued sample. It carries the
// assigned sequence number and never the local enqueue timestamp.
type BatchSample struct {
	Seq uint64 `json:"seq"`
	Sample
}

// QueuedSample is a sample held in the queue awaiting server confirmation.
type QueuedSample struct {
	Seq uint64 `json:"seq"`
	Sample
	// QueuedAt is the local enqueue time in ms since epoch. Diagnostics
	// only; stripped before the batch is sent.
	QueuedAt int64 `json:"queuedAt"`
}

// Outbound returns the wire form with the local-only fields stripped.
func (q QueuedSample) Outbound() BatchSample {
	return BatchSample{Seq: q.Seq, Sample: q.Sample}
}
