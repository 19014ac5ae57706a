package wire

import (
	"errors"
	"strings"
	"testing"
)

func TestStringRoundTrip(t *testing.T) {
	binary := string([]byte{0, 1, 2, 0xff, 0xfe, '\n', 0})
	w := &Writer{}
	if err := w.WriteShortString("dummyball"); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteLongString(binary); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteShortString(""); err != nil {
		t.Fatal(err)
	}
	r := NewReader(w.Bytes())
	if got, err := r.ReadShortString(); err != nil || got != "dummyball" {
		t.Errorf("got %q, %v, want %q, nil", got, err, "dummyball")
	}
	if got, err := r.ReadLongString(); err != nil || got != binary {
		t.Errorf("got %q, %v, want %q, nil", got, err, binary)
	}
	if got, err := r.ReadShortString(); err != nil || got != "" {
		t.Errorf("got %q, %v, want empty string", got, err)
	}
	if r.Remaining() != 0 {
		t.Errorf("got %v remaining bytes, want 0", r.Remaining())
	}
}

func TestLayout(t *testing.T) {
	w := &Writer{}
	if err := w.WriteShortString("ab"); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteLongString("c"); err != nil {
		t.Fatal(err)
	}
	want := []byte{0, 2, 'a', 'b', 0, 0, 0, 1, 'c'}
	if got := w.Bytes(); string(got) != string(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestShortStringTooLong(t *testing.T) {
	w := &Writer{}
	if err := w.WriteShortString(strings.Repeat("x", MaxShortString+1)); !errors.Is(err, ErrTooLong) {
		t.Errorf("got %v, want %v", err, ErrTooLong)
	}
	if w.Len() != 0 {
		t.Errorf("got %v bytes written, want 0", w.Len())
	}
	if err := w.WriteLongString(strings.Repeat("x", MaxShortString+1)); err != nil {
		t.Errorf("long string rejected %v", err)
	}
}

func TestTruncated(t *testing.T) {
	for _, b := range [][]byte{
		{},
		{0},
		{0, 5, 'a', 'b'},
	} {
		if _, err := NewReader(b).ReadShortString(); !errors.Is(err, ErrTruncated) {
			t.Errorf("reading short string from %v: got %v, want %v", b, err, ErrTruncated)
		}
	}
	if _, err := NewReader([]byte{0xff, 0xff, 0xff, 0xff, 'a'}).ReadLongString(); !errors.Is(err, ErrTruncated) {
		t.Errorf("got %v, want %v", err, ErrTruncated)
	}
}

func TestScalars(t *testing.T) {
	w := &Writer{}
	w.WriteU8(7)
	w.WriteU16(0x3132)
	w.WriteS32(-1234567)
	r := NewReader(w.Bytes())
	if v, err := r.ReadU8(); err != nil || v != 7 {
		t.Errorf("got %v, %v, want 7", v, err)
	}
	if v, err := r.ReadU16(); err != nil || v != 0x3132 {
		t.Errorf("got %v, %v, want 0x3132", v, err)
	}
	if v, err := r.ReadS32(); err != nil || v != -1234567 {
		t.Errorf("got %v, %v, want -1234567", v, err)
	}
	if _, err := r.ReadU8(); !errors.Is(err, ErrTruncated) {
		t.Errorf("got %v, want %v", err, ErrTruncated)
	}
}
