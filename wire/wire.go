// Package wire implements the length prefixed string framing and big endian
// scalars used by init payloads and client frames.
package wire

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
	"github.com/zond/juicevox"
)

const (
	// MaxShortString is the largest payload a short string can carry.
	MaxShortString = math.MaxUint16
	// MaxLongString is the largest payload a long string can carry.
	MaxLongString = math.MaxUint32
)

var (
	ErrTooLong   = errors.New("string too long for length prefix")
	ErrTruncated = errors.New("truncated input")
)

// Writer accumulates an encoded payload.
type Writer struct {
	buf bytes.Buffer
}

func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

func (w *Writer) Len() int {
	return w.buf.Len()
}

func (w *Writer) WriteU8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *Writer) WriteU16(v uint16) {
	w.buf.Write(binary.BigEndian.AppendUint16(nil, v))
}

func (w *Writer) WriteU32(v uint32) {
	w.buf.Write(binary.BigEndian.AppendUint32(nil, v))
}

func (w *Writer) WriteS32(v int32) {
	w.WriteU32(uint32(v))
}

// WriteShortString writes a uint16 length followed by the raw bytes of s.
func (w *Writer) WriteShortString(s string) error {
	if len(s) > MaxShortString {
		return errors.Wrapf(ErrTooLong, "%d bytes", len(s))
	}
	w.WriteU16(uint16(len(s)))
	w.buf.WriteString(s)
	return nil
}

// WriteLongString writes a uint32 length followed by the raw bytes of s.
func (w *Writer) WriteLongString(s string) error {
	if uint64(len(s)) > MaxLongString {
		return errors.Wrapf(ErrTooLong, "%d bytes", len(s))
	}
	w.WriteU32(uint32(len(s)))
	w.buf.WriteString(s)
	return nil
}

// Reader consumes a payload produced by Writer.
type Reader struct {
	b []byte
}

func NewReader(b []byte) *Reader {
	return &Reader{b: b}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.b)
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || n > len(r.b) {
		return nil, errors.Wrapf(ErrTruncated, "want %d bytes, have %d", n, len(r.b))
	}
	res := r.b[:n]
	r.b = r.b[n:]
	return res, nil
}

func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, juicevox.WithStack(err)
	}
	return b[0], nil
}

func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, juicevox.WithStack(err)
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, juicevox.WithStack(err)
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) ReadS32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

func (r *Reader) ReadShortString() (string, error) {
	l, err := r.ReadU16()
	if err != nil {
		return "", juicevox.WithStack(err)
	}
	b, err := r.take(int(l))
	if err != nil {
		return "", juicevox.WithStack(err)
	}
	return string(b), nil
}

func (r *Reader) ReadLongString() (string, error) {
	l, err := r.ReadU32()
	if err != nil {
		return "", juicevox.WithStack(err)
	}
	if uint64(l) > uint64(len(r.b)) {
		return "", errors.Wrapf(ErrTruncated, "long string of %d bytes, have %d", l, len(r.b))
	}
	b, err := r.take(int(l))
	if err != nil {
		return "", juicevox.WithStack(err)
	}
	return string(b), nil
}

// SerializeShortString is a convenience for a payload holding one short string.
func SerializeShortString(s string) ([]byte, error) {
	w := &Writer{}
	if err := w.WriteShortString(s); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
