package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaults(t *testing.T) {
	c, err := Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Default(), c); diff != "" {
		t.Errorf("Parse(nil) mismatch (-want +got):\n%s", diff)
	}
	if got := c.TickInterval(); got != 100*time.Millisecond {
		t.Errorf("got %v, want 100ms", got)
	}
	if c.Log.SlogLevel() != slog.LevelInfo {
		t.Errorf("got %v, want %v", c.Log.SlogLevel(), slog.LevelInfo)
	}
}

func TestParse(t *testing.T) {
	c, err := Parse([]byte(`
data_dir: /var/lib/juicevox
tick_rate_hz: 20
active_object_radius: 16
script_cache_ttl: 30s
save_interval: 5m
log:
  level: debug
  file: /var/log/juicevox.log
spawn:
  - type: test
    pos: [0, 20, 0]
  - type: scripted
    script: mob
    pos: [1.5, 2, -3]
    data: "hello"
`))
	if err != nil {
		t.Fatal(err)
	}
	want := Default()
	want.DataDir = "/var/lib/juicevox"
	want.TickRateHz = 20
	want.ActiveObjectRadius = 16
	want.ScriptCacheTTL = 30 * time.Second
	want.SaveInterval = 5 * time.Minute
	want.Log.Level = "debug"
	want.Log.File = "/var/log/juicevox.log"
	want.Spawn = []Spawn{
		{Type: "test", Pos: [3]float64{0, 20, 0}},
		{Type: "scripted", Script: "mob", Pos: [3]float64{1.5, 2, -3}, Data: "hello"},
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
	if c.Log.SlogLevel() != slog.LevelDebug {
		t.Errorf("got %v, want %v", c.Log.SlogLevel(), slog.LevelDebug)
	}
}

func TestInvalid(t *testing.T) {
	for _, doc := range []string{
		`tick_rate_hz: -1`,
		`tick_rate_hz: fast`,
		`unknown_key: 1`,
		`save_interval: soon`,
		`console_password_hash: plaintext`,
		`log: {level: loud}`,
		`spawn: [{type: scripted, pos: [0, 0, 0]}]`,
		`spawn: [{type: test, pos: [0, 0]}]`,
		`spawn: [{type: rocket, pos: [0, 0, 0]}]`,
		`spawn: [unclosed`,
	} {
		if _, err := Parse([]byte(doc)); !errors.Is(err, ErrInvalid) {
			t.Errorf("Parse(%q): got %v, want %v", doc, err, ErrInvalid)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "juicevox.yaml")
	if err := os.WriteFile(path, []byte("ssh_addr: 127.0.0.1:2222\n"), 0600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.SSHAddr != "127.0.0.1:2222" || c.HTTPAddr != Default().HTTPAddr {
		t.Errorf("got %+v", c)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v, want %v", err, os.ErrNotExist)
	}
	if c, err := Load(""); err != nil || c.DataDir != "data" {
		t.Errorf("got %+v, %v, want defaults", c, err)
	}
}
