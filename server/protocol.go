package server

import (
	"math"

	"github.com/pkg/errors"
	"github.com/zond/juicevox/game"
	"github.com/zond/juicevox/object"
	"github.com/zond/juicevox/wire"
	"gonum.org/v1/gonum/spatial/r3"
)

// Frame commands.
const (
	ToClientActiveObjectRemoveAdd uint16 = 0x31
	ToClientActiveObjectMessages  uint16 = 0x32

	ToServerPlayerPos uint16 = 0x23
)

// Positions on the wire are world units times playerPosScale.
const playerPosScale = 100

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrTooMany        = errors.New("too many entries for one frame")
)

// EncodeRemoveAdd builds an ACTIVE_OBJECT_REMOVE_ADD frame.
func EncodeRemoveAdd(removed []object.ID, added []game.Added) ([]byte, error) {
	if len(removed) > math.MaxUint16 || len(added) > math.MaxUint16 {
		return nil, errors.Wrapf(ErrTooMany, "%d removed, %d added", len(removed), len(added))
	}
	w := &wire.Writer{}
	w.WriteU16(ToClientActiveObjectRemoveAdd)
	w.WriteU16(uint16(len(removed)))
	for _, id := range removed {
		w.WriteU16(uint16(id))
	}
	w.WriteU16(uint16(len(added)))
	for _, a := range added {
		w.WriteU16(uint16(a.ID))
		w.WriteU8(uint8(a.Type))
		if err := w.WriteLongString(string(a.InitData)); err != nil {
			return nil, errors.Wrapf(err, "init data of %v", a.ID)
		}
	}
	return w.Bytes(), nil
}

// EncodeMessages builds an ACTIVE_OBJECT_MESSAGES frame. Messages too long
// for a short string are left out and returned as skipped.
func EncodeMessages(msgs []object.Message) (frame []byte, skipped []object.Message) {
	w := &wire.Writer{}
	w.WriteU16(ToClientActiveObjectMessages)
	for _, msg := range msgs {
		if len(msg.Data) > wire.MaxShortString {
			skipped = append(skipped, msg)
			continue
		}
		w.WriteU16(uint16(msg.ID))
		if err := w.WriteShortString(string(msg.Data)); err != nil {
			skipped = append(skipped, msg)
		}
	}
	return w.Bytes(), skipped
}

// SplitReliable partitions msgs keeping their order within each part.
func SplitReliable(msgs []object.Message) (reliable []object.Message, unreliable []object.Message) {
	for _, msg := range msgs {
		if msg.Reliable {
			reliable = append(reliable, msg)
		} else {
			unreliable = append(unreliable, msg)
		}
	}
	return reliable, unreliable
}

func EncodePlayerPos(pos r3.Vec) []byte {
	w := &wire.Writer{}
	w.WriteU16(ToServerPlayerPos)
	w.WriteS32(int32(pos.X * playerPosScale))
	w.WriteS32(int32(pos.Y * playerPosScale))
	w.WriteS32(int32(pos.Z * playerPosScale))
	return w.Bytes()
}

// DecodeCommand returns the command of a frame from a client and a reader
// positioned after it.
func DecodeCommand(b []byte) (uint16, *wire.Reader, error) {
	r := wire.NewReader(b)
	cmd, err := r.ReadU16()
	if err != nil {
		return 0, nil, err
	}
	return cmd, r, nil
}

// DecodePlayerPos reads the body of a PLAYERPOS frame.
func DecodePlayerPos(r *wire.Reader) (r3.Vec, error) {
	var coords [3]float64
	for i := range coords {
		v, err := r.ReadS32()
		if err != nil {
			return r3.Vec{}, err
		}
		coords[i] = float64(v) / playerPosScale
	}
	return r3.Vec{X: coords[0], Y: coords[1], Z: coords[2]}, nil
}
