package object

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/zond/juicevox/wire"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	testObjectMaxAge     = 10.0
	testObjectSendPeriod = 0.125
	testObjectSpeed      = 2.0
	testObjectLowHeight  = 2 * BS
	testObjectHighHeight = 8 * BS
	positionMessageTag   = 0
)

// TestObject is a native object that bobs upwards, broadcasts its position
// eight times a second and removes itself after ten seconds.
type TestObject struct {
	Base
	timer float64
	age   float64
}

func NewTestObject(env Env, id ID, pos r3.Vec) *TestObject {
	return &TestObject{
		Base: NewBase(env, id, pos),
	}
}

func (t *TestObject) Type() Type {
	return TypeTest
}

func (t *TestObject) Age() float64 {
	return t.age
}

func (t *TestObject) Step(dtime float64, out *Queue) {
	t.age += dtime
	if t.age > testObjectMaxAge {
		t.Remove()
		return
	}

	t.pos.Y += dtime * BS * testObjectSpeed
	if t.pos.Y > testObjectHighHeight {
		t.pos.Y = testObjectLowHeight
	}

	t.timer -= dtime
	if t.timer < 0 {
		t.timer += testObjectSendPeriod
		out.Push(Message{
			ID:       t.id,
			Reliable: false,
			Data:     t.positionRecord(),
		})
	}
}

func (t *TestObject) positionRecord() []byte {
	return []byte(fmt.Sprintf("%d %d %d %d", positionMessageTag, int(t.pos.X), int(t.pos.Y), int(t.pos.Z)))
}

func (t *TestObject) ClientInitData() []byte {
	return t.positionRecord()
}

func (t *TestObject) ServerInitData() []byte {
	b, err := wire.SerializeShortString(fmt.Sprintf("%s %s",
		strconv.FormatFloat(t.age, 'g', -1, 64),
		strconv.FormatFloat(t.timer, 'g', -1, 64)))
	if err != nil {
		t.logger().Error("serializing test object", "err", err)
		return nil
	}
	return b
}

// Initialize restores age and timer. An empty payload leaves a fresh object.
// Both must be finite and age not negative.
func (t *TestObject) Initialize(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	s, err := wire.NewReader(data).ReadShortString()
	if err != nil {
		return errors.Wrap(ErrMalformedInitData, err.Error())
	}
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return errors.Wrapf(ErrMalformedInitData, "want 2 fields, got %q", s)
	}
	age, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return errors.Wrap(ErrMalformedInitData, err.Error())
	}
	timer, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return errors.Wrap(ErrMalformedInitData, err.Error())
	}
	if math.IsNaN(age) || math.IsInf(age, 0) || age < 0 {
		return errors.Wrapf(ErrMalformedInitData, "age %v", age)
	}
	if math.IsNaN(timer) || math.IsInf(timer, 0) {
		return errors.Wrapf(ErrMalformedInitData, "timer %v", timer)
	}
	t.age, t.timer = age, timer
	return nil
}
