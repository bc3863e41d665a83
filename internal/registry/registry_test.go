package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeMode(t *testing.T, root, pkg, name string) string {
	t.Helper()
	dir := filepath.Join(root, pkg, "modes")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	p := filepath.Join(dir, name+".mode")
	if err := os.WriteFile(p, []byte("cat"), 0o644); err != nil {
		t.Fatalf("write mode: %v", err)
	}
	return p
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		kind Kind
		key  string
	}{
		{"eng-spa", Pairs, "eng-spa"},
		{"spa-cat_valencia", Pairs, "spa-cat_valencia"},
		{"eng-morph", Analyzers, "eng"},
		{"eng-mor", Analyzers, "eng"},
		{"sme-nob-anmor", Analyzers, "sme-nob"},
		{"eng-gener", Generators, "eng"},
		{"eng-generador", Generators, "eng"},
		{"eng-tagger", Taggers, "eng"},
	}
	for _, c := range cases {
		kind, key, ok := Classify(c.name)
		if !ok || kind != c.kind || key != c.key {
			t.Fatalf("Classify(%q)=(%s,%s,%v) want (%s,%s)", c.name, kind, key, ok, c.kind, c.key)
		}
	}
	for _, bad := range []string{"README", "english-spanish", "eng", "eng-spa-debug-extra"} {
		if _, _, ok := Classify(bad); ok {
			t.Fatalf("Classify(%q) should fail", bad)
		}
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"pairs": Pairs, "analyzer": Analyzers, "Generators": Generators, "tagger": Taggers} {
		if got, ok := ParseKind(in); !ok || got != want {
			t.Fatalf("ParseKind(%q)=%s,%v", in, got, ok)
		}
	}
	if _, ok := ParseKind("spellers"); ok {
		t.Fatalf("unknown kind accepted")
	}
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	pairPath := writeMode(t, root, "apertium-eng-spa", "eng-spa")
	writeMode(t, root, "apertium-eng-spa", "spa-eng")
	writeMode(t, root, "apertium-eng", "eng-morph")
	writeMode(t, root, "apertium-eng", "eng-gener")
	writeMode(t, root, "apertium-eng", "eng-tagger")
	writeMode(t, root, "apertium-eng", "not a mode")
	// A .mode file outside a modes directory is ignored.
	if err := os.WriteFile(filepath.Join(root, "stray-eng.mode"), []byte("cat"), 0o644); err != nil {
		t.Fatal(err)
	}

	reg, err := Scan(root)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(reg.Pairs) != 2 || len(reg.Analyzers) != 1 || len(reg.Generators) != 1 || len(reg.Taggers) != 1 {
		t.Fatalf("unexpected registry: %+v", reg)
	}
	m, ok := reg.Lookup(Pairs, "eng-spa")
	if !ok {
		t.Fatalf("eng-spa not registered")
	}
	if m.Path != pairPath || m.Dir != filepath.Join(root, "apertium-eng-spa") || m.Name != "eng-spa" {
		t.Fatalf("unexpected mode: %+v", m)
	}
	if got := reg.Names(Pairs); len(got) != 2 || got[0] != "eng-spa" || got[1] != "spa-eng" {
		t.Fatalf("names: %v", got)
	}
	installed := reg.Installed()
	if len(installed) != 2 {
		t.Fatalf("installed: %v", installed)
	}
	if reg.Empty() {
		t.Fatalf("registry should not be empty")
	}
}

func TestScanFirstDirWins(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	first := writeMode(t, a, "p", "eng-spa")
	writeMode(t, b, "p", "eng-spa")
	reg, err := Scan(a, b)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if reg.Pairs["eng-spa"].Path != first {
		t.Fatalf("expected %s to win, got %s", first, reg.Pairs["eng-spa"].Path)
	}
}

func TestScanMissingDir(t *testing.T) {
	reg, err := Scan(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("missing dir should not fail: %v", err)
	}
	if !reg.Empty() {
		t.Fatalf("expected empty registry")
	}
}

func TestModesDirs(t *testing.T) {
	root := t.TempDir()
	writeMode(t, root, "a", "eng-spa")
	writeMode(t, root, "b", "spa-eng")
	if got := ModesDirs(root); len(got) != 2 {
		t.Fatalf("expected 2 modes dirs, got %v", got)
	}
}

func TestWatcherRescansOnNewMode(t *testing.T) {
	root := t.TempDir()
	writeMode(t, root, "apertium-eng-spa", "eng-spa")

	changes := make(chan *Registry, 4)
	w, err := NewWatcher(WatchConfig{
		Dirs:     []string{root},
		Debounce: 20 * time.Millisecond,
		Logger:   zerolog.Nop(),
		OnChange: func(r *Registry) { changes <- r },
	})
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	defer w.Close()
	if len(w.Watched()) != 2 {
		t.Fatalf("expected root and modes dir watched, got %v", w.Watched())
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	writeMode(t, root, "apertium-eng-spa", "spa-eng")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case reg := <-changes:
			if _, ok := reg.Pairs["spa-eng"]; ok {
				return
			}
		case <-deadline:
			t.Fatalf("no rescan observed")
		}
	}
}
