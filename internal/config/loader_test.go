package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func checkCommon(t *testing.T, cfg Config) {
	t.Helper()
	if cfg.Addr != ":2737" || len(cfg.ModesDirs) != 2 || cfg.ModesDirs[1] != "/usr/local/share/apertium" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.MaxPipesPerPair != 3 || cfg.MinPipesPerPair != 1 || cfg.MaxUsersPerPipe != 4 || cfg.RestartPipeAfter != 500 {
		t.Fatalf("unexpected pool settings: %+v", cfg)
	}
	if cfg.MaxIdle() != 60*time.Second || cfg.Timeout() != 5*time.Second {
		t.Fatalf("unexpected durations: %v %v", cfg.MaxIdle(), cfg.Timeout())
	}
	if !cfg.CORS.Enabled || cfg.CORS.Origins[0] != "*" || cfg.Tracing.Endpoint != "otel:4317" || !cfg.Tracing.Insecure {
		t.Fatalf("unexpected nested sections: %+v %+v", cfg.CORS, cfg.Tracing)
	}
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", `addr: ":2737"
modes_dirs: [/usr/share/apertium, /usr/local/share/apertium]
max_pipes_per_pair: 3
min_pipes_per_pair: 1
max_users_per_pipe: 4
max_idle_secs: 60
restart_pipe_after: 500
timeout_secs: 5
oneshot_markers: ["ca-oc@aran"]
cors:
  enabled: true
  origins: ["*"]
tracing:
  endpoint: otel:4317
  insecure: true
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	checkCommon(t, cfg)
	if len(cfg.OneShotMarkers) != 1 {
		t.Fatalf("markers: %v", cfg.OneShotMarkers)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":2737","modes_dirs":["/usr/share/apertium","/usr/local/share/apertium"],
"max_pipes_per_pair":3,"min_pipes_per_pair":1,"max_users_per_pipe":4,"max_idle_secs":60,"restart_pipe_after":500,"timeout_secs":5,
"cors":{"enabled":true,"origins":["*"]},"tracing":{"endpoint":"otel:4317","insecure":true}}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	checkCommon(t, cfg)
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", `addr = ":2737"
modes_dirs = ["/usr/share/apertium", "/usr/local/share/apertium"]
max_pipes_per_pair = 3
min_pipes_per_pair = 1
max_users_per_pipe = 4
max_idle_secs = 60
restart_pipe_after = 500
timeout_secs = 5

[cors]
enabled = true
origins = ["*"]

[tracing]
endpoint = "otel:4317"
insecure = true
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	checkCommon(t, cfg)
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}

func TestValidate(t *testing.T) {
	if err := (Config{}).Validate(); err != nil {
		t.Fatalf("zero config should be valid: %v", err)
	}
	err := Config{TimeoutSecs: -1, MaxPipesPerPair: 1, MinPipesPerPair: 2}.Validate()
	if err == nil || !strings.Contains(err.Error(), "timeout_secs") || !strings.Contains(err.Error(), "min_pipes_per_pair (2)") {
		t.Fatalf("expected both violations, got %v", err)
	}
}
