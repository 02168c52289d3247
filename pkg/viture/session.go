package viture

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xrcap/xrcap/pkg/core"
)

type State int32

const (
	StateIdle State = iota
	StatePriming
	StateStreaming
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePriming:
		return "priming"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Sink receives every streaming packet after classification.
type Sink interface {
	WritePacket(typ PacketType, b []byte) error
}

type SessionConfig struct {
	Duration time.Duration

	// Trigger is sent once while priming and then on every keep-alive tick
	Trigger []byte

	KeepAlive        time.Duration
	KeepAliveTimeout time.Duration
	StreamTimeout    time.Duration
	StreamSize       int

	DrainAttempts int
	DrainTimeout  time.Duration
	PrimeAttempts int
	PrimeTimeout  time.Duration
	FlushReads    int

	Sink Sink
	Log  zerolog.Logger
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.Trigger == nil {
		c.Trigger = TriggerCommand(TriggerTarget)
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = KeepAlive
	}
	if c.KeepAliveTimeout <= 0 {
		c.KeepAliveTimeout = KeepAliveTimeout
	}
	if c.StreamTimeout <= 0 {
		c.StreamTimeout = StreamTimeout
	}
	if c.StreamSize <= 0 {
		c.StreamSize = StreamReadSize
	}
	if c.DrainAttempts <= 0 {
		c.DrainAttempts = DrainAttempts
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DrainTimeout
	}
	if c.PrimeAttempts <= 0 {
		c.PrimeAttempts = PrimeAttempts
	}
	if c.PrimeTimeout <= 0 {
		c.PrimeTimeout = c.KeepAliveTimeout
	}
	if c.FlushReads <= 0 {
		c.FlushReads = FlushReads
	}
	return c
}

// Session is one bounded capture on a Client.
//
// Idle -> Priming -> Streaming -> Draining -> Closed. A transport error in
// any phase goes straight to Closed. Timeouts never end a session.
type Session struct {
	ID string

	client *Client
	cfg    SessionConfig
	log    zerolog.Logger
	state  atomic.Int32

	// keep-alive reports fatal transport errors here
	fatal chan error

	mu       sync.Mutex
	start    time.Time
	deadline time.Time
	end      time.Time
	bytes    PacketCounts
	packets  PacketCounts
	frames   *Reassembler
	primed   bool
	triggers int
	acks     int
	sinkErrs int
	cause    Cause
	err      error
}

func (c *Client) NewSession(cfg SessionConfig) *Session {
	cfg = cfg.withDefaults()
	id := uuid.NewString()
	return &Session{
		ID:     id,
		client: c,
		cfg:    cfg,
		log:    cfg.Log.With().Str("session", id).Logger(),
		fatal:  make(chan error, 1),
		frames: NewReassembler(),
	}
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
	s.log.Debug().Str("state", state.String()).Msg("[viture] session")
}

// Run captures until the configured duration elapses or ctx is cancelled.
// The report is returned in every case once the session has started; err is
// the transport error that ended it early, if any.
func (s *Session) Run(ctx context.Context) (*Report, error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StatePriming)) {
		return nil, ErrClosed
	}
	if !s.client.busy.CompareAndSwap(false, true) {
		s.state.Store(int32(StateClosed))
		return nil, ErrBusy
	}
	defer s.client.busy.Store(false)

	s.mu.Lock()
	s.start = time.Now()
	s.deadline = s.start.Add(s.cfg.Duration)
	s.mu.Unlock()

	runCtx, cancel := context.WithDeadline(ctx, s.deadline)
	defer cancel()

	s.log.Debug().Dur("duration", s.cfg.Duration).Msg("[viture] priming")

	if err := s.prime(runCtx); err != nil {
		return s.close(CauseError, err)
	}

	s.setState(StateStreaming)

	keepAlive := core.NewWorker(s.cfg.KeepAlive, s.keepAlive)
	err := s.stream(runCtx)
	keepAlive.Stop()

	if err == nil {
		select {
		case err = <-s.fatal:
		default:
		}
	}
	if err != nil {
		return s.close(CauseError, err)
	}

	s.setState(StateDraining)

	if err = s.flush(); err != nil {
		return s.close(CauseError, err)
	}

	if ctx.Err() != nil {
		return s.close(CauseCancelled, nil)
	}
	return s.close(CauseDuration, nil)
}

// clip shortens d so a read never runs past the session deadline.
func (s *Session) clip(d time.Duration) time.Duration {
	if left := time.Until(s.deadline); left < d {
		if left < time.Millisecond {
			return time.Millisecond
		}
		return left
	}
	return d
}

// prime finishes within one keep-alive interval, so the device never waits
// longer for its first trigger than it would for the next one.
func (s *Session) prime(ctx context.Context) error {
	c := s.client

	end := time.Now().Add(s.cfg.KeepAlive)
	if end.After(s.deadline) {
		end = s.deadline
	}

	// best effort: stale responses from an earlier run. Timeouts are
	// skipped, and the last PrimeTimeout is kept for the first trigger.
	drainEnd := end.Add(-s.cfg.PrimeTimeout)

	c.commandMu.Lock()
	for i := 0; i < s.cfg.DrainAttempts && ctx.Err() == nil; i++ {
		left := time.Until(drainEnd)
		if left <= 0 {
			break
		}

		b, err := c.read(c.Endpoints.Response, c.ReadSize, min(s.cfg.DrainTimeout, left))
		if err != nil {
			if IsTimeout(err) {
				continue
			}
			s.log.Warn().Err(err).Msg("[viture] drain stale")
			break
		}
		s.log.Trace().Int("size", len(b)).Msg("[viture] drop stale")
	}
	c.commandMu.Unlock()

	// the device does not always ack a trigger, so after PrimeAttempts
	// streaming starts anyway
	for i := 0; i < s.cfg.PrimeAttempts && ctx.Err() == nil; i++ {
		timeout := s.cfg.PrimeTimeout
		if i > 0 {
			left := time.Until(end)
			if left < time.Millisecond {
				break
			}
			timeout = min(timeout, left)
		}

		res, err := c.Trigger(s.cfg.Trigger, s.clip(timeout))
		s.countTrigger(err == nil)
		if err != nil {
			if IsTimeout(err) {
				continue
			}
			return err
		}

		s.log.Debug().Stringer("response", res).Msg("[viture] trigger ack")

		s.mu.Lock()
		s.primed = true
		s.mu.Unlock()
		return nil
	}

	return nil
}

func (s *Session) keepAlive() time.Duration {
	ts := time.Now()

	_, err := s.client.Trigger(s.cfg.Trigger, s.clip(s.cfg.KeepAliveTimeout))
	s.countTrigger(err == nil)

	if err != nil && !IsTimeout(err) {
		select {
		case s.fatal <- err:
		default:
		}
		return 0
	}

	// keep the period steady whatever the exchange took
	if d := s.cfg.KeepAlive - time.Since(ts); d > 0 {
		return d
	}
	return time.Millisecond
}

func (s *Session) stream(ctx context.Context) error {
	ep := s.client.Endpoints.Stream

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-s.fatal:
			return err
		default:
		}

		b, err := s.client.read(ep, s.cfg.StreamSize, s.clip(s.cfg.StreamTimeout))
		if err != nil {
			if IsTimeout(err) {
				continue
			}
			return err
		}

		s.ingest(b)
	}
}

// flush reads what is still in flight after the last trigger. No writes.
func (s *Session) flush() error {
	ep := s.client.Endpoints.Stream

	for i := 0; i < s.cfg.FlushReads; i++ {
		b, err := s.client.read(ep, s.cfg.StreamSize, s.cfg.StreamTimeout)
		if err != nil {
			if IsTimeout(err) {
				return nil
			}
			return err
		}

		s.ingest(b)
	}

	return nil
}

func (s *Session) ingest(b []byte) {
	if len(b) == 0 {
		return
	}

	typ := Classify(b)

	s.mu.Lock()
	typ = s.frames.Ingest(typ, b)
	s.bytes.add(typ, int64(len(b)))
	s.packets.add(typ, 1)
	s.mu.Unlock()

	if s.cfg.Sink == nil {
		return
	}

	if err := s.cfg.Sink.WritePacket(typ, b); err != nil {
		s.mu.Lock()
		s.sinkErrs++
		s.mu.Unlock()
		s.log.Warn().Err(err).Msg("[viture] sink")
	}
}

func (s *Session) countTrigger(ack bool) {
	s.mu.Lock()
	s.triggers++
	if ack {
		s.acks++
	}
	s.mu.Unlock()
}

func (s *Session) close(cause Cause, err error) (*Report, error) {
	s.mu.Lock()
	s.end = time.Now()
	s.cause = cause
	s.err = err
	s.mu.Unlock()

	s.setState(StateClosed)

	report := s.Snapshot()
	if err != nil {
		s.log.Error().Err(err).Msgf("[viture] %s", report)
	} else {
		s.log.Info().Msgf("[viture] %s", report)
	}

	return report, err
}

// Snapshot returns the counters collected so far. Safe to call while the
// session runs.
func (s *Session) Snapshot() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := &Report{
		ID:          s.ID,
		State:       s.State().String(),
		Cause:       s.cause,
		Start:       s.start,
		Duration:    s.cfg.Duration,
		Bytes:       s.bytes,
		Packets:     s.packets,
		Frames:      s.frames.Stats(),
		Primed:      s.primed,
		Triggers:    s.triggers,
		TriggerAcks: s.acks,
		SinkErrors:  s.sinkErrs,
	}

	switch {
	case !s.end.IsZero():
		r.Elapsed = s.end.Sub(s.start)
	case !s.start.IsZero():
		r.Elapsed = time.Since(s.start)
	}

	if s.err != nil {
		r.Error = s.err.Error()
	}

	return r
}
