package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apyd/internal/manager"
)

func TestSplitCSV(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b , c ", []string{"a", "b", "c"}},
		{"a,,c", []string{"a", "c"}},
		{"", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, splitCSV(tt.in), "input %q", tt.in)
	}
}

// installModes lays out root/apertium-<name>/modes/<name>.mode files.
func installModes(t *testing.T, names ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, name := range names {
		dir := filepath.Join(root, "apertium-"+name, "modes")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".mode"), []byte("cat\n"), 0o644))
	}
	return root
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("APYD_MODES_DIRS", "")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPairsCommand(t *testing.T) {
	root := installModes(t, "eng-spa", "spa-cat", "eng-morph")
	out, err := run(t, "pairs", "--modes-dir", root)
	require.NoError(t, err)
	assert.Equal(t, "eng-spa\nspa-cat\n", out)

	out, err = run(t, "pairs", "--modes-dir", root, "--kind", "analyzers")
	require.NoError(t, err)
	assert.Equal(t, "eng\teng-morph\n", out)

	_, err = run(t, "pairs", "--modes-dir", root, "--kind", "dictionaries")
	assert.Error(t, err)
}

func TestPathsCommand(t *testing.T) {
	root := installModes(t, "eng-spa", "spa-cat", "cat-oci")
	out, err := run(t, "paths", "eng", "--modes-dir", root)
	require.NoError(t, err)
	assert.Equal(t, "cat\teng > spa > cat\noci\teng > spa > cat > oci\nspa\teng > spa\n", out)

	_, err = run(t, "paths")
	assert.Error(t, err)
}

func TestServeRefusesEmptyInstallation(t *testing.T) {
	_, err := run(t, "serve", "--modes-dir", t.TempDir(), "--addr", "127.0.0.1:0")
	require.Error(t, err)
	assert.True(t, manager.IsEmptyServerConfiguration(err), "got %v", err)
}

func TestServeFlagsOverrideConfigFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "apyd.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
addr: ":9000"
modes_dirs: ["/from/file"]
max_pipes_per_pair: 2
timeout_secs: 30
`), 0o644))

	t.Setenv("APYD_MODES_DIRS", "")
	t.Setenv("APYD_ADDR", "")
	opts := &rootOptions{configPath: cfgPath}
	serve := newServeCmd(opts)
	require.NoError(t, serve.Flags().Parse([]string{"--max-pipes-per-pair", "4"}))

	cfg, err := loadServeConfig(serve, opts, &serveOptions{addr: defaultAddr, maxPipesPerPair: 4})
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, []string{"/from/file"}, cfg.ModesDirs)
	assert.Equal(t, 4, cfg.MaxPipesPerPair)
	assert.Equal(t, 30, cfg.TimeoutSecs)
}

func TestLoadConfigEnvModesDirs(t *testing.T) {
	t.Setenv("APYD_MODES_DIRS", "/a, /b")
	cmd := newRootCmd()
	cfg, err := loadConfig(cmd, &rootOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b"}, cfg.ModesDirs)

	t.Setenv("APYD_MODES_DIRS", "")
	cfg, err = loadConfig(newRootCmd(), &rootOptions{})
	require.NoError(t, err)
	assert.Equal(t, defaultModesDirs, cfg.ModesDirs)
}
