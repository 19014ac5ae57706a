package server

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/zond/juicevox/game"
	"github.com/zond/juicevox/object"
	"github.com/zond/juicevox/wire"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestEncodeRemoveAdd(t *testing.T) {
	frame, err := EncodeRemoveAdd([]object.ID{5, 0x102}, []game.Added{
		{ID: 7, Type: object.TypeScripted, InitData: []byte("ab")},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0x00, 0x31,
		0x00, 0x02, 0x00, 0x05, 0x01, 0x02,
		0x00, 0x01,
		0x00, 0x07, 0x02, 0x00, 0x00, 0x00, 0x02, 'a', 'b',
	}
	if diff := cmp.Diff(want, frame); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeMessages(t *testing.T) {
	long := object.Message{ID: 3, Data: []byte(strings.Repeat("x", wire.MaxShortString+1))}
	frame, skipped := EncodeMessages([]object.Message{
		{ID: 1, Reliable: true, Data: []byte("hi")},
		long,
		{ID: 0x203, Data: nil},
	})
	want := []byte{
		0x00, 0x32,
		0x00, 0x01, 0x00, 0x02, 'h', 'i',
		0x02, 0x03, 0x00, 0x00,
	}
	if diff := cmp.Diff(want, frame); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}
	if len(skipped) != 1 || skipped[0].ID != 3 {
		t.Errorf("got %v skipped, want message 3", len(skipped))
	}
}

func TestSplitReliable(t *testing.T) {
	msgs := []object.Message{
		{ID: 1, Reliable: true, Data: []byte("a")},
		{ID: 1, Data: []byte("b")},
		{ID: 2, Reliable: true, Data: []byte("c")},
	}
	reliable, unreliable := SplitReliable(msgs)
	if diff := cmp.Diff([]object.Message{msgs[0], msgs[2]}, reliable); diff != "" {
		t.Errorf("reliable mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]object.Message{msgs[1]}, unreliable); diff != "" {
		t.Errorf("unreliable mismatch (-want +got):\n%s", diff)
	}
}

func TestPlayerPos(t *testing.T) {
	pos := r3.Vec{X: 12.5, Y: -3, Z: 1000.25}
	cmd, r, err := DecodeCommand(EncodePlayerPos(pos))
	if err != nil {
		t.Fatal(err)
	}
	if cmd != ToServerPlayerPos {
		t.Errorf("got %#x, want %#x", cmd, ToServerPlayerPos)
	}
	got, err := DecodePlayerPos(r)
	if err != nil {
		t.Fatal(err)
	}
	if got != pos {
		t.Errorf("got %v, want %v", got, pos)
	}
	if _, err := DecodePlayerPos(wire.NewReader([]byte{0, 0, 0})); !errors.Is(err, wire.ErrTruncated) {
		t.Errorf("got %v, want %v", err, wire.ErrTruncated)
	}
}
