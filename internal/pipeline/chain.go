package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// defaultCloseGrace is how long Close waits after SIGTERM before killing.
const defaultCloseGrace = 2 * time.Second

// proc is one started stage of a chain.
type proc struct {
	name   string
	cmd    *exec.Cmd
	stderr *stderrLog
	done   chan struct{}
	err    error // valid once done is closed
}

func (p *proc) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// failure converts the stage's exit status into a processFailure.
func (p *proc) failure() error {
	if p.err == nil {
		return nil
	}
	pf := &processFailure{stage: p.name, stderr: p.stderr.Tail(), cause: p.err}
	var ee *exec.ExitError
	if errors.As(p.err, &ee) {
		pf.code = ee.ExitCode()
	}
	return pf
}

// chain is a set of stages connected stdout-to-stdin through OS pipes. The
// parent keeps only the write end of the first stdin and the read end of the
// last stdout.
type chain struct {
	procs []*proc
	in    *os.File
	out   *os.File
}

func startChain(stages [][]string, dir string, log zerolog.Logger) (*chain, error) {
	if len(stages) == 0 {
		return nil, errors.New("pipeline: no stages")
	}
	inR, inW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	c := &chain{in: inW}
	// Child-side descriptors are closed in the parent once every stage has
	// started, so EOF propagates when a stage exits.
	childEnds := []*os.File{inR}
	fail := func(err error) (*chain, error) {
		closeFiles(childEnds)
		_ = inW.Close()
		c.kill()
		return nil, err
	}

	prev := inR
	for i, args := range stages {
		if len(args) == 0 {
			return fail(fmt.Errorf("pipeline: stage %d is empty", i+1))
		}
		r, w, err := os.Pipe()
		if err != nil {
			return fail(fmt.Errorf("stage pipe: %w", err))
		}
		childEnds = append(childEnds, w)

		name := filepath.Base(args[0])
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = dir
		cmd.Stdin = prev
		cmd.Stdout = w
		se := newStderrLog(log, name)
		cmd.Stderr = se
		if err := cmd.Start(); err != nil {
			_ = r.Close()
			return fail(&processFailure{stage: name, cause: err})
		}
		p := &proc{name: name, cmd: cmd, stderr: se, done: make(chan struct{})}
		go func() {
			p.err = cmd.Wait()
			close(p.done)
		}()
		c.procs = append(c.procs, p)

		if i < len(stages)-1 {
			childEnds = append(childEnds, r)
		} else {
			c.out = r
		}
		prev = r
	}
	closeFiles(childEnds)
	return c, nil
}

func closeFiles(fs []*os.File) {
	for _, f := range fs {
		_ = f.Close()
	}
}

func (c *chain) pids() []int {
	var out []int
	for _, p := range c.procs {
		if !p.exited() {
			out = append(out, p.cmd.Process.Pid)
		}
	}
	return out
}

// kill terminates every started stage without grace and waits for them.
func (c *chain) kill() {
	for _, p := range c.procs {
		_ = p.cmd.Process.Kill()
	}
	for _, p := range c.procs {
		<-p.done
	}
}

// close shuts stdin, asks every stage to terminate, and kills whatever is
// still running after grace.
func (c *chain) close(grace time.Duration) error {
	if grace <= 0 {
		grace = defaultCloseGrace
	}
	_ = c.in.Close()
	for _, p := range c.procs {
		if !p.exited() {
			_ = p.cmd.Process.Signal(syscall.SIGTERM)
		}
	}
	deadline := time.NewTimer(grace)
	defer deadline.Stop()
	for _, p := range c.procs {
		select {
		case <-p.done:
		case <-deadline.C:
			c.kill()
			return c.out.Close()
		}
	}
	return c.out.Close()
}

// runOnce spawns stages, feeds input, reads stdout to EOF and waits for every
// stage. Any non-zero exit is a processFailure.
func runOnce(stages [][]string, dir string, input []byte, log zerolog.Logger) ([]byte, error) {
	c, err := startChain(stages, dir, log)
	if err != nil {
		return nil, err
	}
	writeErr := make(chan error, 1)
	go func() {
		_, err := c.in.Write(input)
		if cerr := c.in.Close(); err == nil {
			err = cerr
		}
		// A stage may legitimately exit without consuming all of its input.
		if errors.Is(err, syscall.EPIPE) {
			err = nil
		}
		writeErr <- err
	}()
	out, readErr := io.ReadAll(c.out)
	_ = c.out.Close()
	for _, p := range c.procs {
		<-p.done
	}
	for _, p := range c.procs {
		if err := p.failure(); err != nil {
			return nil, err
		}
	}
	if err := <-writeErr; err != nil {
		return nil, fmt.Errorf("write input: %w", err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("read output: %w", readErr)
	}
	return out, nil
}

const stderrTailBytes = 4096

// stderrLog forwards a stage's stderr to the logger line by line and keeps
// the last few KiB for error reports.
type stderrLog struct {
	mu    sync.Mutex
	log   zerolog.Logger
	stage string
	line  []byte
	tail  []byte
}

func newStderrLog(log zerolog.Logger, stage string) *stderrLog {
	return &stderrLog{log: log, stage: stage}
}

func (s *stderrLog) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tail = append(s.tail, p...)
	if over := len(s.tail) - stderrTailBytes; over > 0 {
		s.tail = append(s.tail[:0], s.tail[over:]...)
	}
	s.line = append(s.line, p...)
	for {
		i := bytes.IndexByte(s.line, '\n')
		if i < 0 {
			break
		}
		if l := bytes.TrimSpace(s.line[:i]); len(l) > 0 {
			s.log.Debug().Str("stage", s.stage).Msg(string(l))
		}
		s.line = s.line[i+1:]
	}
	if len(s.line) > stderrTailBytes {
		s.log.Debug().Str("stage", s.stage).Msg(string(s.line))
		s.line = s.line[:0]
	}
	return len(p), nil
}

// Tail returns the most recent stderr output.
func (s *stderrLog) Tail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(bytes.TrimSpace(s.tail))
}
