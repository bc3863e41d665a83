package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"apyd/internal/modes"
)

// Config carries construction-time settings shared by both pipeline kinds.
type Config struct {
	Logger zerolog.Logger
	// CloseGrace is the SIGTERM-to-SIGKILL delay used by Close.
	CloseGrace time.Duration
}

// New builds the pipeline kind matching a parsed mode.
func New(m modes.Parsed, cfg Config) (Pipeline, error) {
	if m.Streaming {
		return NewStreaming(m.Stages, m.Dir, cfg)
	}
	return NewSimple(m.Stages, m.Dir, cfg), nil
}

var nul = []byte{0}

// exchangeResult is the outcome of one framed write/read.
type exchangeResult struct {
	out []byte
	err error
}

// StreamingPipeline keeps its stage chain (the backbone) alive and frames
// every request with a NUL byte and a unique token:
//
//	input NUL [token] NUL
//
// Stages run with the raw flag, so they flush and pass NULs through. The
// reply is read up to "[token] NUL", which cannot belong to anyone else's
// request.
type StreamingPipeline struct {
	state
	chain *chain
	out   *bufio.Reader
	log   zerolog.Logger
	grace time.Duration

	// pending is an exchange abandoned by a timed-out or cancelled caller.
	// It is drained before the next exchange reads. Guarded by the lock.
	pending <-chan exchangeResult

	closeOnce sync.Once
	closeErr  error
}

// NewStreaming spawns the backbone.
func NewStreaming(stages [][]string, dir string, cfg Config) (*StreamingPipeline, error) {
	c, err := startChain(stages, dir, cfg.Logger)
	if err != nil {
		return nil, err
	}
	p := &StreamingPipeline{
		chain: c,
		out:   bufio.NewReaderSize(c.out, PipeBufferSize),
		log:   cfg.Logger,
		grace: cfg.CloseGrace,
	}
	p.state.init()
	return p, nil
}

// Translate sends text through the backbone. Unless opts.NoSplit is set the
// input is split into pipe-safe chunks which are submitted concurrently;
// results are joined in input order.
func (p *StreamingPipeline) Translate(ctx context.Context, text string, opts Options) (string, error) {
	if opts.NoSplit {
		return p.exchange(ctx, text, opts)
	}
	chunks, err := Split(text, p.ActiveUsers())
	if err != nil {
		return "", err
	}
	switch len(chunks) {
	case 0:
		return "", nil
	case 1:
		return p.exchange(ctx, chunks[0], opts)
	}
	results := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			out, err := p.exchange(gctx, chunk, opts)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return strings.Join(results, ""), nil
}

// exchange performs one framed request while holding the pipeline lock.
func (p *StreamingPipeline) exchange(ctx context.Context, text string, opts Options) (string, error) {
	release, err := p.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	in := []byte(text)
	if opts.Deformat != "" {
		if in, err = runFilter(opts.Deformat, in, p.log); err != nil {
			return "", err
		}
	}
	timeout := opts.timeout()
	if err := p.drainPending(ctx, timeout); err != nil {
		return "", err
	}

	token := newToken()
	frame := make([]byte, 0, len(in)+len(token)+2)
	frame = append(frame, in...)
	frame = append(frame, 0)
	frame = append(frame, token...)
	frame = append(frame, 0)
	marker := append(append([]byte(nil), token...), 0)

	done := make(chan exchangeResult, 1)
	go func() {
		// Write and read concurrently so a reply larger than the pipe
		// buffer cannot stall the write.
		werr := make(chan error, 1)
		go func() {
			_, err := p.chain.in.Write(frame)
			werr <- err
		}()
		out, rerr := readUntil(p.out, marker)
		if rerr != nil {
			done <- exchangeResult{err: p.backboneFailure(rerr)}
			return
		}
		// The token was echoed, so the write has completed.
		if err := <-werr; err != nil {
			done <- exchangeResult{err: p.backboneFailure(err)}
			return
		}
		done <- exchangeResult{out: out}
	}()

	res, err := p.await(ctx, done, timeout)
	if err != nil {
		return "", err
	}
	if res.err != nil {
		p.MarkStuck()
		return "", res.err
	}

	out := stripToken(res.out, token)
	if opts.Reformat == "" {
		return string(bytes.ReplaceAll(out, nul, nil)), nil
	}
	if out, err = runFilter(opts.Reformat, out, p.log); err != nil {
		return "", err
	}
	return string(out), nil
}

// await waits for an exchange. When the caller gives up first the exchange
// is parked in p.pending; a timeout also marks the pipeline stuck.
func (p *StreamingPipeline) await(ctx context.Context, done <-chan exchangeResult, timeout time.Duration) (exchangeResult, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		return res, nil
	case <-timer.C:
		p.pending = done
		p.MarkStuck()
		p.log.Warn().Ints("pids", p.PIDs()).Dur("timeout", timeout).Msg("pipeline event=exchange_timeout")
		return exchangeResult{}, timeoutError{after: timeout}
	case <-ctx.Done():
		p.pending = done
		return exchangeResult{}, ctx.Err()
	}
}

// drainPending consumes the reply of an abandoned exchange so its bytes are
// never mistaken for the next caller's.
func (p *StreamingPipeline) drainPending(ctx context.Context, timeout time.Duration) error {
	if p.pending == nil {
		return nil
	}
	res, err := p.await(ctx, p.pending, timeout)
	if err != nil {
		return err
	}
	p.pending = nil
	if res.err != nil {
		p.MarkStuck()
		return res.err
	}
	return nil
}

func (p *StreamingPipeline) backboneFailure(err error) error {
	last := p.chain.procs[len(p.chain.procs)-1]
	return &processFailure{stage: last.name, stderr: last.stderr.Tail(), cause: fmt.Errorf("backbone: %w", err)}
}

func (p *StreamingPipeline) Streaming() bool { return true }
func (p *StreamingPipeline) PIDs() []int     { return p.chain.pids() }

// Close terminates the backbone. Callers still inside Translate will fail.
func (p *StreamingPipeline) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.chain.close(p.grace)
		p.log.Debug().Msg("pipeline event=closed")
	})
	return p.closeErr
}

// newToken returns a fresh flush token: a random UUID in superblank
// brackets, which translation stages pass through verbatim.
func newToken() []byte {
	return []byte("[" + uuid.NewString() + "]")
}

// readUntil reads from r until the accumulated bytes end with marker, which
// must end in a NUL byte.
func readUntil(r *bufio.Reader, marker []byte) ([]byte, error) {
	var buf []byte
	for {
		chunk, err := r.ReadSlice(0)
		buf = append(buf, chunk...)
		switch {
		case err == nil:
			if bytes.HasSuffix(buf, marker) {
				return buf, nil
			}
		case errors.Is(err, bufio.ErrBufferFull):
		default:
			return buf, err
		}
	}
}

func stripToken(out, token []byte) []byte {
	i := bytes.LastIndex(out, token)
	if i < 0 {
		return out
	}
	return append(out[:i], out[i+len(token):]...)
}
