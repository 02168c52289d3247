package viture

import (
	"fmt"
	"time"
)

type Cause string

const (
	CauseDuration  Cause = "duration"
	CauseCancelled Cause = "cancelled"
	CauseError     Cause = "error"
)

type PacketCounts struct {
	Frame     int64 `json:"frame"`
	Telemetry int64 `json:"telemetry"`
	Other     int64 `json:"other"`
}

func (c *PacketCounts) add(typ PacketType, n int64) {
	switch typ {
	case PacketFrame:
		c.Frame += n
	case PacketTelemetry:
		c.Telemetry += n
	default:
		c.Other += n
	}
}

func (c PacketCounts) Total() int64 {
	return c.Frame + c.Telemetry + c.Other
}

// Report is the session summary. A report of a session that died on a
// transport error still carries everything counted before the error.
type Report struct {
	ID       string        `json:"id"`
	State    string        `json:"state"`
	Cause    Cause         `json:"cause,omitempty"`
	Error    string        `json:"error,omitempty"`
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
	Elapsed  time.Duration `json:"elapsed"`

	Bytes   PacketCounts `json:"bytes"`
	Packets PacketCounts `json:"packets"`
	Frames  FrameStats   `json:"frames"`

	Primed      bool `json:"primed"`
	Triggers    int  `json:"triggers"`
	TriggerAcks int  `json:"trigger_acks"`
	SinkErrors  int  `json:"sink_errors,omitempty"`
}

func (r *Report) String() string {
	s := fmt.Sprintf(
		"%s %s in %s: bytes frame=%d telemetry=%d other=%d, frames=%d [%d..%d]",
		r.State, r.Cause, r.Elapsed.Round(time.Millisecond),
		r.Bytes.Frame, r.Bytes.Telemetry, r.Bytes.Other,
		r.Frames.Distinct, r.Frames.Min, r.Frames.Max,
	)
	if r.Error != "" {
		s += ", error: " + r.Error
	}
	return s
}
