package manager

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"apyd/internal/langpair"
	"apyd/internal/modes"
	"apyd/internal/pipeline"
	"apyd/internal/registry"
)

func defaultOpts() pipeline.Options { return pipeline.Options{NoSplit: true} }

func TestResolvePair(t *testing.T) {
	m, _ := newFakeManager(t, ManagerConfig{}, "eng-spa", "spa-cat_valencia")
	cases := map[string]string{
		"eng-spa":                  "eng-spa",
		"eng_US-spa":               "eng-spa",
		"spa-cat_valencia_uni":     "spa-cat_valencia",
		"spa-cat_valencia":         "spa-cat_valencia",
		"eng_GB_scouse-spa_ES_mad": "eng-spa",
	}
	for in, want := range cases {
		k, err := m.ResolvePair(in)
		if err != nil {
			t.Fatalf("ResolvePair(%q): %v", in, err)
		}
		if k.String() != want {
			t.Fatalf("ResolvePair(%q)=%s want %s", in, k, want)
		}
	}
	if _, err := m.ResolvePair("fra-spa"); !IsNotInstalled(err) {
		t.Fatalf("expected not installed, got %v", err)
	}
	if _, err := m.ResolvePair("eng"); !IsInvalidPair(err) {
		t.Fatalf("expected invalid pair, got %v", err)
	}
}

func TestTranslateChain(t *testing.T) {
	reg, _ := installModes(t, map[string]string{"eng-spa": "cat", "spa-cat": "cat", "cat-oci": "cat"})
	ff := &fakeFactory{fn: func(parsed modes.Parsed) func(context.Context, string) (string, error) {
		return func(_ context.Context, text string) (string, error) {
			return text + ">" + strings.TrimPrefix(filepath.Base(parsed.Dir), "apertium-"), nil
		}
	}}
	m := NewWithConfig(ManagerConfig{Registry: reg, NewPipeline: ff.New})
	defer m.Close()

	out, path, err := m.TranslateChain(testCtx(t), "eng", "oci", "x", defaultOpts())
	if err != nil {
		t.Fatalf("TranslateChain: %v", err)
	}
	if strings.Join(path, ",") != "eng,spa,cat,oci" {
		t.Fatalf("path %v", path)
	}
	if out != "x>eng-spa>spa-cat>cat-oci" {
		t.Fatalf("hops applied out of order: %q", out)
	}

	// A directly installed pair is a single hop.
	if _, path, err := m.TranslateChain(testCtx(t), "eng", "spa", "x", defaultOpts()); err != nil || len(path) != 2 {
		t.Fatalf("direct chain: path=%v err=%v", path, err)
	}
	if _, _, err := m.TranslateChain(testCtx(t), "oci", "eng", "x", defaultOpts()); !IsNotInstalled(err) {
		t.Fatalf("expected no path, got %v", err)
	}
}

func TestRunModeUsesUmbrellaCommand(t *testing.T) {
	reg, root := installModes(t, map[string]string{"eng-morph": "lt-proc eng.automorf.bin", "eng-spa": "cat"})
	ff := &fakeFactory{}
	m := NewWithConfig(ManagerConfig{Registry: reg, NewPipeline: ff.New})
	defer m.Close()

	if _, err := m.RunMode(testCtx(t), registry.Analyzers, "eng", "houses"); err != nil {
		t.Fatalf("RunMode: %v", err)
	}
	got := ff.get(0).parsed
	dir := filepath.Join(root, "apertium-eng-morph")
	want := []string{"apertium", "-d", dir, "-f", "none", "eng-morph"}
	if got.Streaming || len(got.Stages) != 1 || strings.Join(got.Stages[0], " ") != strings.Join(want, " ") {
		t.Fatalf("unexpected one-shot stages %+v", got)
	}
	if !ff.get(0).closed.Load() {
		t.Fatalf("one-shot pipeline not closed")
	}
	if _, err := m.RunMode(testCtx(t), registry.Generators, "eng", "x"); !IsNotInstalled(err) {
		t.Fatalf("expected not installed, got %v", err)
	}
}

func TestListing(t *testing.T) {
	m, _ := newFakeManager(t, ManagerConfig{}, "eng-spa", "spa-eng", "eng-tagger")
	if pairs := m.ListPairs(); len(pairs) != 2 || pairs[0].String() != "eng-spa" {
		t.Fatalf("ListPairs: %v", pairs)
	}
	if tg := m.ListModes(registry.Taggers); tg["eng"] != "eng-tagger" {
		t.Fatalf("ListModes: %v", tg)
	}
	if p := m.Paths("eng"); len(p["spa"]) != 2 {
		t.Fatalf("Paths: %v", p)
	}
	if !m.Ready() {
		t.Fatalf("manager with installed pairs should be ready")
	}
	if NewWithConfig(ManagerConfig{}).Ready() {
		t.Fatalf("empty manager should not be ready")
	}
}

func TestStatusReportsPipelines(t *testing.T) {
	m, _ := newFakeManager(t, ManagerConfig{}, "eng-spa")
	_, release, err := m.GetPipeline(testCtx(t), langpair.MustKey("eng-spa"))
	if err != nil {
		t.Fatalf("GetPipeline: %v", err)
	}
	st := m.Status()
	release()
	if st.InstalledPairs != 1 || st.StartsTotal != 1 || len(st.Pairs) != 1 {
		t.Fatalf("unexpected status %+v", st)
	}
	if ps := st.Pairs[0].Pipelines; len(ps) != 1 || ps[0].Users != 1 {
		t.Fatalf("unexpected pipelines %+v", st.Pairs[0])
	}
}

// The tests below run real processes through mode files.

func realManager(t *testing.T, cfg ManagerConfig, files map[string]string) *Manager {
	t.Helper()
	reg, _ := installModes(t, files)
	cfg.Registry = reg
	cfg.Parser = testParser()
	m := NewWithConfig(cfg)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestTranslateThroughStreamingBackbone(t *testing.T) {
	m := realManager(t, ManagerConfig{}, map[string]string{"eng-spa": "cat | cat"})
	out, err := m.Translate(testCtx(t), langpair.MustKey("eng-spa"), "hello", pipeline.Options{})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if out != "hello" {
		t.Fatalf("got %q", out)
	}
	st := m.Status()
	if len(st.Pairs) != 1 || !st.Pairs[0].Pipelines[0].Streaming || len(st.Pairs[0].Pipelines[0].PIDs) != 2 {
		t.Fatalf("expected one streaming backbone of two processes, got %+v", st.Pairs)
	}
}

func TestConcurrentTranslationsStayWithinCeiling(t *testing.T) {
	m := realManager(t, ManagerConfig{MaxPipesPerPair: 3, MaxUsersPerPipe: 1}, map[string]string{"eng-spa": "cat"})
	key := langpair.MustKey("eng-spa")

	const callers = 24
	ctx := testCtx(t)
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := fmt.Sprintf("request %d %s", i, strings.Repeat("z", i*100))
			out, err := m.Translate(ctx, key, in, pipeline.Options{})
			if err != nil {
				errs <- err
				return
			}
			if out != in {
				errs <- fmt.Errorf("caller %d received %q", i, out)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	st := m.Status()
	if len(st.Pairs) != 1 || len(st.Pairs[0].Pipelines) > 3 {
		t.Fatalf("pool exceeded its ceiling: %+v", st.Pairs)
	}
}

func TestTimeoutRetiresStuckPipeline(t *testing.T) {
	pub := NewMemoryPublisher()
	m := realManager(t, ManagerConfig{Publisher: pub, Timeout: 100 * time.Millisecond, CloseGrace: 200 * time.Millisecond},
		map[string]string{"eng-spa": "sleep 60"})
	_, err := m.Translate(testCtx(t), langpair.MustKey("eng-spa"), "hello", pipeline.Options{NoSplit: true})
	if !pipeline.IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	m.closing.Wait()
	if len(pub.Named(EventPipelineStuck)) != 1 {
		t.Fatalf("expected a stuck event, got %+v", pub.Events())
	}
	if len(pub.Named(EventPipelineClose)) != 1 {
		t.Fatalf("stuck pipeline was not closed: %+v", pub.Events())
	}
	if st := m.Status(); len(st.Pairs) != 0 || st.Holding != 0 {
		t.Fatalf("stuck pipeline still pooled: %+v", st)
	}
}

func TestUnparsableModeFile(t *testing.T) {
	m := realManager(t, ManagerConfig{}, map[string]string{"eng-spa": "  "})
	_, err := m.Translate(testCtx(t), langpair.MustKey("eng-spa"), "x", pipeline.Options{})
	if !modes.IsParseError(err) {
		t.Fatalf("expected parse error, got %v", err)
	}
}
