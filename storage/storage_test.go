package storage

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/bxcodec/faker/v4"
	"github.com/google/go-cmp/cmp"
	"github.com/zond/juicevox"
	"github.com/zond/juicevox/mapdb"

	goccy "github.com/goccy/go-json"
)

func withStorage(t *testing.T, f func(s *Storage)) {
	t.Helper()
	s, err := New(context.Background(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			t.Error(err)
		}
	}()
	f(s)
}

func fakeObjects(t *testing.T, n int) []StaticObject {
	t.Helper()
	result := make([]StaticObject, n)
	for i := range result {
		if err := faker.FakeData(&result[i]); err != nil {
			t.Fatal(err)
		}
		result[i].Data = append([]byte{byte(i)}, result[i].Data...)
	}
	return result
}

func TestObjects(t *testing.T) {
	withStorage(t, func(s *Storage) {
		ctx := context.Background()
		objects := fakeObjects(t, 10)
		if err := s.SaveObjects(ctx, objects); err != nil {
			t.Fatal(err)
		}
		got, err := s.LoadObjects(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(objects, got); diff != "" {
			t.Errorf("LoadObjects mismatch (-want +got):\n%s", diff)
		}

		replacement := fakeObjects(t, 3)
		if err := s.SaveObjects(ctx, replacement); err != nil {
			t.Fatal(err)
		}
		if n, err := s.CountObjects(ctx); err != nil || n != 3 {
			t.Errorf("got %v, %v, want 3", n, err)
		}
		got, err = s.LoadObjects(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(replacement, got); diff != "" {
			t.Errorf("LoadObjects mismatch (-want +got):\n%s", diff)
		}

		if err := s.SaveObjects(ctx, nil); err != nil {
			t.Fatal(err)
		}
		if got, err := s.LoadObjects(ctx); err != nil || len(got) != 0 {
			t.Errorf("got %v, %v, want nothing", got, err)
		}
	})
}

func TestObjectsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := New(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	objects := fakeObjects(t, 2)
	if err := s.SaveObjects(ctx, objects); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	s, err = New(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.LoadObjects(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(objects, got); diff != "" {
		t.Errorf("LoadObjects mismatch (-want +got):\n%s", diff)
	}
}

func TestBlocks(t *testing.T) {
	withStorage(t, func(s *Storage) {
		pos := mapdb.BlockPos{X: -1, Y: 2, Z: -300}
		if _, err := s.LoadBlock(pos); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("got %v, want %v", err, os.ErrNotExist)
		}
		want := map[mapdb.BlockPos][]byte{}
		for _, p := range []mapdb.BlockPos{pos, {X: 0, Y: 0, Z: 0}, {X: 2047, Y: -2048, Z: 1}} {
			b := mapdb.NewBlock(p)
			b.Set(1, 2, 3, mapdb.Node{Content: mapdb.ContentMese})
			want[p] = b.Serialize()
			if err := s.SaveBlock(p, want[p]); err != nil {
				t.Fatal(err)
			}
		}
		got, err := s.LoadBlock(pos)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want[pos], got); diff != "" {
			t.Errorf("LoadBlock mismatch (-want +got):\n%s", diff)
		}
		seen := map[mapdb.BlockPos][]byte{}
		if err := s.EachBlock(func(p mapdb.BlockPos, data []byte) error {
			seen[p] = data
			return nil
		}); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, seen); diff != "" {
			t.Errorf("EachBlock mismatch (-want +got):\n%s", diff)
		}
		if n, err := s.CountBlocks(); err != nil || n != len(want) {
			t.Errorf("got %v, %v, want %v", n, err, len(want))
		}
	})
}

func TestMapThroughStorage(t *testing.T) {
	withStorage(t, func(s *Storage) {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		m := mapdb.New()
		p := mapdb.Pos{X: -20, Y: 5, Z: 33}
		m.SetNode(p, mapdb.Node{Content: mapdb.ContentWood, Param: 2})
		if err := m.Save(s); err != nil {
			t.Fatal(err)
		}
		loaded := mapdb.New()
		if err := loaded.Load(s, logger); err != nil {
			t.Fatal(err)
		}
		if got := loaded.GetNodeNoEx(p); got != (mapdb.Node{Content: mapdb.ContentWood, Param: 2}) {
			t.Errorf("got %+v, want wood", got)
		}
	})
}

func TestAuditLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	a, err := NewAuditLogger(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	ctx := WithSessionID(context.Background())
	a.Log(ctx, "SPAWN", AuditSpawn{ID: 4, Type: "scripted", Behavior: "mob", Pos: [3]float64{1, 2, 3}})
	a.Log(context.Background(), "SAVE", AuditSave{Objects: 7})
	a.Log(juicevox.MakeMainContext(context.Background()), "SAVE", AuditSave{Objects: 8})
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	type entry struct {
		SessionID string           `json:"session_id"`
		Event     string           `json:"event"`
		Data      goccy.RawMessage `json:"data"`
	}
	entries := []entry{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		e := entry{}
		if err := goccy.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("parsing %q: %v", scanner.Text(), err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 3 {
		t.Fatalf("got %v entries, want 3", len(entries))
	}
	sessionID, _ := SessionID(ctx)
	if entries[0].SessionID != sessionID || entries[0].Event != "SPAWN" {
		t.Errorf("got %+v, want session %q and SPAWN", entries[0], sessionID)
	}
	spawn := AuditSpawn{}
	if err := goccy.Unmarshal(entries[0].Data, &spawn); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(AuditSpawn{ID: 4, Type: "scripted", Behavior: "mob", Pos: [3]float64{1, 2, 3}}, spawn); diff != "" {
		t.Errorf("spawn mismatch (-want +got):\n%s", diff)
	}
	if entries[1].SessionID != "" || entries[1].Event != "SAVE" {
		t.Errorf("got %+v, want no session and SAVE", entries[1])
	}
	if entries[2].SessionID != MainSession {
		t.Errorf("got %q, want %q", entries[2].SessionID, MainSession)
	}
}
