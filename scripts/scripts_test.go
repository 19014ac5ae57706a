package scripts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeBehavior(t *testing.T, dir, name, server, client string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, name), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name, ServerFile), []byte(server), 0600); err != nil {
		t.Fatal(err)
	}
	if client != "" {
		if err := os.WriteFile(filepath.Join(dir, name, ClientFile), []byte(client), 0600); err != nil {
			t.Fatal(err)
		}
	}
}

func TestValidName(t *testing.T) {
	for _, tc := range []struct {
		name string
		want bool
	}{
		{"mob", true},
		{"test_mob-2", true},
		{"", false},
		{".", false},
		{"..", false},
		{".hidden", false},
		{"a/b", false},
		{"../etc", false},
		{`a\b`, false},
	} {
		if got := ValidName(tc.name); got != tc.want {
			t.Errorf("ValidName(%q): got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestStoreLoad(t *testing.T) {
	dir := t.TempDir()
	writeBehavior(t, dir, "mob", "function step() {}", "client side")
	writeBehavior(t, dir, "serveronly", "function step() {}", "")
	s := NewStore(dir, time.Hour)

	pair, err := s.Load("mob")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(&Pair{Server: "function step() {}", Client: "client side"}, pair); diff != "" {
		t.Errorf("Load(mob) mismatch (-want +got):\n%s", diff)
	}
	pair, err = s.Load("serveronly")
	if err != nil {
		t.Fatal(err)
	}
	if pair.Client != "" {
		t.Errorf("got client %q, want empty", pair.Client)
	}
	if _, err := s.Load("missing"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v, want %v", err, os.ErrNotExist)
	}
	if _, err := s.Load("../mob"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("got %v, want %v", err, ErrInvalidName)
	}

	names, err := s.Names()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"mob", "serveronly"}, names); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreCache(t *testing.T) {
	dir := t.TempDir()
	writeBehavior(t, dir, "mob", "v1", "")
	s := NewStore(dir, time.Hour)
	if pair, err := s.Load("mob"); err != nil || pair.Server != "v1" {
		t.Fatalf("got %+v, %v, want v1", pair, err)
	}
	writeBehavior(t, dir, "mob", "v2", "")
	if pair, err := s.Load("mob"); err != nil || pair.Server != "v1" {
		t.Errorf("got %+v, %v, want cached v1", pair, err)
	}
	s.Invalidate("mob")
	if pair, err := s.Load("mob"); err != nil || pair.Server != "v2" {
		t.Errorf("got %+v, %v, want v2", pair, err)
	}
	if err := s.Save("mob", &Pair{Server: "v3", Client: "c3"}); err != nil {
		t.Fatal(err)
	}
	if pair, err := s.Load("mob"); err != nil || pair.Server != "v3" || pair.Client != "c3" {
		t.Errorf("got %+v, %v, want v3/c3", pair, err)
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	m.Set("a", Pair{Server: "s", Client: "c"})
	pair, err := m.Load("a")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(&Pair{Server: "s", Client: "c"}, pair); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}
	if _, err := m.Load("b"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v, want %v", err, os.ErrNotExist)
	}
}

func TestWatcherInvalidates(t *testing.T) {
	dir := t.TempDir()
	writeBehavior(t, dir, "mob", "v1", "")
	s := NewStore(dir, time.Hour)
	if _, err := s.Load("mob"); err != nil {
		t.Fatal(err)
	}
	changed := make(chan string, 8)
	w, err := NewWatcher(s, slog.New(slog.NewTextHandler(io.Discard, nil)), func(name string) {
		changed <- name
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	writeBehavior(t, dir, "mob", "v2", "")
	select {
	case name := <-changed:
		if name != "mob" {
			t.Errorf("got %q, want %q", name, "mob")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}
	if pair, err := s.Load("mob"); err != nil || pair.Server != "v2" {
		t.Errorf("got %+v, %v, want v2", pair, err)
	}
}
