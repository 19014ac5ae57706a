// Package object contains the server side active objects: their shared base,
// the outbound message queue, and the native and scripted variants.
package object

import (
	"log/slog"

	"github.com/pkg/errors"
	"github.com/zond/juicevox/mapdb"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// BS is the size of one node in world units.
	BS = 10.0
)

var (
	ErrMalformedInitData = errors.New("malformed initialization data")
)

// ID identifies an object within its environment. Zero is never a valid id.
type ID uint16

// Type tells clients and persistence which variant an object is.
type Type uint8

const (
	TypeInvalid  Type = 0
	TypeTest     Type = 1
	TypeScripted Type = 2
)

func (t Type) String() string {
	switch t {
	case TypeTest:
		return "test"
	case TypeScripted:
		return "scripted"
	}
	return "invalid"
}

// Message is an outbound state or event record for the objects known by clients.
type Message struct {
	ID       ID
	Reliable bool
	Data     []byte
}

// NodeReader is the read only view of the world map objects get.
type NodeReader interface {
	GetNodeNoEx(p mapdb.Pos) mapdb.Node
}

// Env is the environment owning the objects.
type Env interface {
	World() NodeReader
	Lookup(id ID) (Object, bool)
	Logger() *slog.Logger
}

// Object is implemented by every active object variant.
//
// Initialize is called exactly once, after construction and before the first
// Step. Step is never called on an object after it has been removed.
type Object interface {
	Core() *Base
	Type() Type
	Step(dtime float64, out *Queue)
	ClientInitData() []byte
	ServerInitData() []byte
	Initialize(data []byte) error
	Close() error
}

// Base holds the state common to all objects. Variants embed it.
type Base struct {
	id      ID
	env     Env
	pos     r3.Vec
	knownBy int
	removed bool
}

func NewBase(env Env, id ID, pos r3.Vec) Base {
	return Base{
		id:  id,
		env: env,
		pos: pos,
	}
}

func (b *Base) Core() *Base {
	return b
}

func (b *Base) ID() ID {
	return b.id
}

func (b *Base) Env() Env {
	return b.env
}

func (b *Base) BasePosition() r3.Vec {
	return b.pos
}

func (b *Base) SetBasePosition(pos r3.Vec) {
	b.pos = pos
}

// Removed returns true once the object has asked to be destroyed.
func (b *Base) Removed() bool {
	return b.removed
}

// Remove marks the object for destruction. It can't be undone.
func (b *Base) Remove() {
	b.removed = true
}

// KnownBy returns the number of clients currently aware of the object.
func (b *Base) KnownBy() int {
	return b.knownBy
}

func (b *Base) AddKnownBy() {
	b.knownBy++
}

func (b *Base) ReleaseKnownBy() {
	if b.knownBy > 0 {
		b.knownBy--
	}
}

func (b *Base) ClientInitData() []byte {
	return nil
}

func (b *Base) ServerInitData() []byte {
	return nil
}

func (b *Base) Initialize(data []byte) error {
	return nil
}

func (b *Base) Close() error {
	return nil
}

func (b *Base) logger() *slog.Logger {
	if b.env == nil {
		return slog.Default().With("id", b.id)
	}
	return b.env.Logger().With("id", b.id)
}
