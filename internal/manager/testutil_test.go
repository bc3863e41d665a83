package manager

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"apyd/internal/modes"
	"apyd/internal/pipeline"
	"apyd/internal/registry"
)

// fakePipeline is an in-memory pipeline used to test pool behaviour without
// spawning processes.
type fakePipeline struct {
	users    atomic.Int64
	uses     atomic.Int64
	lastUsed atomic.Int64
	stuck    atomic.Bool
	closed   atomic.Bool
	parsed   modes.Parsed
	fn       func(ctx context.Context, text string) (string, error)
}

func newFakePipeline(parsed modes.Parsed) *fakePipeline {
	f := &fakePipeline{parsed: parsed}
	f.lastUsed.Store(time.Now().UnixNano())
	return f
}

func (f *fakePipeline) Translate(ctx context.Context, text string, _ pipeline.Options) (string, error) {
	if f.fn != nil {
		return f.fn(ctx, text)
	}
	return text, nil
}

func (f *fakePipeline) Enter() func() {
	f.users.Add(1)
	f.lastUsed.Store(time.Now().UnixNano())
	var once sync.Once
	return func() {
		once.Do(func() {
			f.users.Add(-1)
			f.uses.Add(1)
			f.lastUsed.Store(time.Now().UnixNano())
		})
	}
}

func (f *fakePipeline) ActiveUsers() int    { return int(f.users.Load()) }
func (f *fakePipeline) TotalUses() int64    { return f.uses.Load() }
func (f *fakePipeline) LastUsed() time.Time { return time.Unix(0, f.lastUsed.Load()) }
func (f *fakePipeline) Stuck() bool         { return f.stuck.Load() }
func (f *fakePipeline) MarkStuck()          { f.stuck.Store(true) }
func (f *fakePipeline) Streaming() bool     { return f.parsed.Streaming }
func (f *fakePipeline) PIDs() []int         { return nil }
func (f *fakePipeline) Close() error        { f.closed.Store(true); return nil }

// fakeFactory records every pipeline it builds.
type fakeFactory struct {
	mu    sync.Mutex
	built []*fakePipeline
	fn    func(parsed modes.Parsed) func(ctx context.Context, text string) (string, error)
}

func (ff *fakeFactory) New(parsed modes.Parsed, _ pipeline.Config) (pipeline.Pipeline, error) {
	p := newFakePipeline(parsed)
	if ff.fn != nil {
		p.fn = ff.fn(parsed)
	}
	ff.mu.Lock()
	ff.built = append(ff.built, p)
	ff.mu.Unlock()
	return p, nil
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.built)
}

func (ff *fakeFactory) get(i int) *fakePipeline {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.built[i]
}

// installModes writes <root>/<pkg>/modes/<name>.mode files and scans them.
func installModes(t *testing.T, files map[string]string) (*registry.Registry, string) {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		dir := filepath.Join(root, "apertium-"+name, "modes")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, name+".mode"), []byte(content), 0o644); err != nil {
			t.Fatalf("write mode: %v", err)
		}
	}
	reg, err := registry.Scan(root)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	return reg, root
}

// testParser lets plain coreutils act as stages.
func testParser() *modes.Parser {
	p := modes.DefaultParser()
	p.NoRawFlagCommands = append(append([]string(nil), p.NoRawFlagCommands...), "cat", "sleep")
	return &p
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}
