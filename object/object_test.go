package object

import (
	"bytes"
	"errors"
	"log/slog"
	"math/rand"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/zond/juicevox/mapdb"
	"github.com/zond/juicevox/wire"
	"gonum.org/v1/gonum/spatial/r3"
)

// logBuffer collects log output for assertions.
type logBuffer struct {
	mutex sync.Mutex
	buf   bytes.Buffer
}

func (l *logBuffer) Write(b []byte) (int, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.buf.Write(b)
}

func (l *logBuffer) count(s string) int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return strings.Count(l.buf.String(), s)
}

type fakeEnv struct {
	world   *mapdb.Map
	objects map[ID]Object
	logs    *logBuffer
	logger  *slog.Logger
}

func newFakeEnv() *fakeEnv {
	logs := &logBuffer{}
	return &fakeEnv{
		world:   mapdb.New(),
		objects: map[ID]Object{},
		logs:    logs,
		logger:  slog.New(slog.NewTextHandler(logs, nil)),
	}
}

func (f *fakeEnv) World() NodeReader {
	return f.world
}

func (f *fakeEnv) Lookup(id ID) (Object, bool) {
	o, found := f.objects[id]
	return o, found
}

func (f *fakeEnv) Logger() *slog.Logger {
	return f.logger
}

func (f *fakeEnv) add(o Object) {
	f.objects[o.Core().ID()] = o
}

func TestQueue(t *testing.T) {
	q := &Queue{}
	if _, ok := q.PopFront(); ok {
		t.Errorf("empty queue popped a message")
	}
	for _, d := range []string{"a", "b", "c"} {
		q.Push(Message{ID: 1, Data: []byte(d)})
	}
	m, ok := q.PopFront()
	if !ok || string(m.Data) != "a" {
		t.Errorf("got %q, want %q", m.Data, "a")
	}
	other := &Queue{}
	other.Push(Message{ID: 2, Data: []byte("z")})
	q.MoveTo(other)
	if q.Len() != 0 {
		t.Errorf("got %v messages left, want 0", q.Len())
	}
	want := []Message{
		{ID: 2, Data: []byte("z")},
		{ID: 1, Data: []byte("b")},
		{ID: 1, Data: []byte("c")},
	}
	if got := other.Drain(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if other.Len() != 0 {
		t.Errorf("drained queue has %v messages", other.Len())
	}
}

func TestBaseKnownBy(t *testing.T) {
	b := NewBase(nil, 1, r3.Vec{})
	b.ReleaseKnownBy()
	if b.KnownBy() != 0 {
		t.Errorf("got %v, want 0", b.KnownBy())
	}
	b.AddKnownBy()
	b.AddKnownBy()
	b.ReleaseKnownBy()
	if b.KnownBy() != 1 {
		t.Errorf("got %v, want 1", b.KnownBy())
	}
	b.Remove()
	if !b.Removed() {
		t.Errorf("not removed")
	}
}

func TestTestObjectScenario(t *testing.T) {
	o := NewTestObject(nil, 7, r3.Vec{})
	out := &Queue{}
	o.Step(0.2, out)
	want := []Message{{ID: 7, Reliable: false, Data: []byte("0 0 4 0")}}
	if got := out.Drain(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
	for i := 0; i < 4; i++ {
		o.Step(0.2, out)
		if n := out.Len(); n > i+1 {
			t.Errorf("got %v messages after %v more steps", n, i+1)
		}
	}
	if age := o.Age(); age < 0.999 || age > 1.001 {
		t.Errorf("got age %v, want 1", age)
	}
	if o.Removed() {
		t.Errorf("removed at age %v", o.Age())
	}
	if y := o.BasePosition().Y; y < 19.999 || y > 20.001 {
		t.Errorf("got y %v, want 20", y)
	}
}

func TestTestObjectBounds(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	o := NewTestObject(nil, 1, r3.Vec{Y: 2 * BS})
	out := &Queue{}
	age := 0.0
	for !o.Removed() {
		o.Step(r.Float64()*0.5, out)
		if y := o.BasePosition().Y; y < 2*BS || y > 8*BS {
			t.Fatalf("y %v outside [%v, %v]", y, 2*BS, 8*BS)
		}
		if o.Age() < age {
			t.Fatalf("age went from %v to %v", age, o.Age())
		}
		age = o.Age()
		out.Drain()
	}
	if age <= 10 {
		t.Errorf("removed at age %v", age)
	}
}

func TestTestObjectRemoval(t *testing.T) {
	o := NewTestObject(nil, 1, r3.Vec{Y: 30})
	out := &Queue{}
	o.Step(10, out)
	if o.Removed() {
		t.Fatalf("removed at age 10")
	}
	out.Drain()
	pos := o.BasePosition()
	o.Step(0.5, out)
	if !o.Removed() {
		t.Errorf("not removed at age 10.5")
	}
	if out.Len() != 0 || o.BasePosition() != pos {
		t.Errorf("removing step changed state")
	}
}

func TestTestObjectInitData(t *testing.T) {
	o := NewTestObject(nil, 1, r3.Vec{X: 12.7, Y: 30, Z: -4.2})
	out := &Queue{}
	o.Step(0.3, out)
	o.Step(0.1, out)

	restored := NewTestObject(nil, 2, r3.Vec{})
	if err := restored.Initialize(o.ServerInitData()); err != nil {
		t.Fatal(err)
	}
	if restored.age != o.age || restored.timer != o.timer {
		t.Errorf("got %v/%v, want %v/%v", restored.age, restored.timer, o.age, o.timer)
	}
	if got, want := string(o.ClientInitData()), "0 12 38 -4"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if err := NewTestObject(nil, 3, r3.Vec{}).Initialize(nil); err != nil {
		t.Errorf("empty init data: %v", err)
	}
	if err := NewTestObject(nil, 3, r3.Vec{}).Initialize([]byte{0, 3, 'a', 'b', 'c'}); err == nil {
		t.Errorf("accepted malformed init data")
	}
	for _, payload := range []string{"NaN NaN", "NaN 0", "0 NaN", "Inf 0", "+Inf 0", "-Inf 0", "0 Inf", "0 -Inf", "-1 0"} {
		data, err := wire.SerializeShortString(payload)
		if err != nil {
			t.Fatal(err)
		}
		o := NewTestObject(nil, 4, r3.Vec{})
		if err := o.Initialize(data); !errors.Is(err, ErrMalformedInitData) {
			t.Errorf("%q: got %v, want %v", payload, err, ErrMalformedInitData)
		}
		if o.age != 0 || o.timer != 0 {
			t.Errorf("%q: got %v/%v, want a fresh object", payload, o.age, o.timer)
		}
	}
	// A negative timer is what a long step leaves behind.
	data, err := wire.SerializeShortString("3 -0.05")
	if err != nil {
		t.Fatal(err)
	}
	if err := NewTestObject(nil, 5, r3.Vec{}).Initialize(data); err != nil {
		t.Errorf("got %v, want a negative timer accepted", err)
	}
}

func TestTestObjectRestoredExpires(t *testing.T) {
	data, err := wire.SerializeShortString("9.5 0")
	if err != nil {
		t.Fatal(err)
	}
	env := newFakeEnv()
	o := NewTestObject(env, 1, r3.Vec{})
	if err := o.Initialize(data); err != nil {
		t.Fatal(err)
	}
	out := &Queue{}
	for i := 0; i < 10 && !o.Removed(); i++ {
		o.Step(0.1, out)
	}
	if !o.Removed() {
		t.Errorf("got age %v and not removed, want removed after 10s", o.Age())
	}
	if out.Len() == 0 {
		t.Errorf("got no position messages, want some")
	}
}

