// Package pipeline runs chains of external commands as translators.
//
// Two strategies are provided:
//
//   - SimplePipeline spawns the whole chain for every call, writes the
//     input, closes stdin and reads to EOF.
//   - StreamingPipeline spawns the chain once and multiplexes requests over
//     it with the NUL-flush framing protocol (see streaming.go), splitting
//     large inputs so a single write never overruns the pipe buffer.
//
// Every pipeline owns one lock that serializes its write/read pairs, and a
// set of counters maintained by Enter and the release func it returns.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTimeout bounds one framed exchange when Options.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// Options are per-call flags supplied by the caller.
type Options struct {
	// NoSplit sends the whole input as a single framed exchange.
	NoSplit bool
	// Deformat and Reformat name one-shot filter commands run before and
	// after the backbone. Empty disables the filter. See ResolveFormatters.
	Deformat string
	Reformat string
	// Timeout bounds each framed read.
	Timeout time.Duration
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

// Pipeline is one running instance of a parsed mode.
type Pipeline interface {
	// Translate runs text through the pipeline.
	Translate(ctx context.Context, text string, opts Options) (string, error)
	// Enter registers an active caller. The returned release func must be
	// deferred; it is safe to call more than once.
	Enter() (release func())
	ActiveUsers() int
	TotalUses() int64
	LastUsed() time.Time
	// Stuck reports whether a framed exchange timed out. It never resets.
	Stuck() bool
	MarkStuck()
	Streaming() bool
	// PIDs lists the live backbone processes (empty for one-shot pipelines).
	PIDs() []int
	// Close terminates any processes owned by the pipeline.
	Close() error
}

// state carries the lock and counters shared by both pipeline kinds.
type state struct {
	lock     chan struct{}
	users    atomic.Int64
	uses     atomic.Int64
	lastUsed atomic.Int64
	stuck    atomic.Bool
}

func (s *state) init() {
	s.lock = make(chan struct{}, 1)
	s.lastUsed.Store(time.Now().UnixNano())
}

func (s *state) Enter() func() {
	s.users.Add(1)
	s.lastUsed.Store(time.Now().UnixNano())
	var once sync.Once
	return func() {
		once.Do(func() {
			s.users.Add(-1)
			s.uses.Add(1)
			s.lastUsed.Store(time.Now().UnixNano())
		})
	}
}

func (s *state) ActiveUsers() int    { return int(s.users.Load()) }
func (s *state) TotalUses() int64    { return s.uses.Load() }
func (s *state) LastUsed() time.Time { return time.Unix(0, s.lastUsed.Load()) }
func (s *state) Stuck() bool         { return s.stuck.Load() }
func (s *state) MarkStuck()          { s.stuck.Store(true) }

// acquire takes the pipeline lock, giving up when ctx is done. The returned
// func releases it.
func (s *state) acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	select {
	case s.lock <- struct{}{}:
		return func() { <-s.lock }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	}
}
