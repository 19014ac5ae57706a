// Package game contains the environment owning the active objects of a world:
// their arena, ids, ticking, client awareness and persistence.
package game

import (
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/zond/juicevox"
	"github.com/zond/juicevox/mapdb"
	"github.com/zond/juicevox/object"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	ErrUnknownType   = errors.New("unknown object type")
	ErrNoFreeID      = errors.New("no free object id")
	ErrUnknownObject = errors.New("unknown object")
	ErrUnknownClient = errors.New("unknown client")
)

// Factory constructs an uninitialized object of one type.
type Factory func(env object.Env, id object.ID, pos r3.Vec) (object.Object, error)

type Option func(*Environment)

func WithFactory(typ object.Type, f Factory) Option {
	return func(e *Environment) {
		e.factories[typ] = f
	}
}

// WithScripts makes scripted objects spawnable, loading behaviors from source.
func WithScripts(source object.ScriptSource) Option {
	return WithFactory(object.TypeScripted, func(env object.Env, id object.ID, pos r3.Vec) (object.Object, error) {
		s, err := object.NewScripted(env, id, pos, source)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

func WithStaticStore(store StaticStore) Option {
	return func(e *Environment) {
		e.static = store
	}
}

// Environment owns a set of objects. All exported methods are serialized by
// one mutex, so objects are never stepped concurrently and script callbacks
// never overlap.
type Environment struct {
	mutex     sync.Mutex
	world     *mapdb.Map
	logger    *slog.Logger
	factories map[object.Type]Factory
	objects   map[object.ID]object.Object
	lastID    object.ID
	clients   map[ClientID]*client
	static    StaticStore
	arena     arena
}

func New(world *mapdb.Map, logger *slog.Logger, opts ...Option) *Environment {
	e := &Environment{
		world:   world,
		logger:  logger,
		objects: map[object.ID]object.Object{},
		clients: map[ClientID]*client{},
		factories: map[object.Type]Factory{
			object.TypeTest: func(env object.Env, id object.ID, pos r3.Vec) (object.Object, error) {
				return object.NewTestObject(env, id, pos), nil
			},
		},
	}
	e.arena = arena{e}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// arena is the view of the environment objects get. It doesn't lock, since
// objects only use it while the environment already holds its mutex.
type arena struct {
	e *Environment
}

func (a arena) World() object.NodeReader {
	return a.e.world
}

func (a arena) Lookup(id object.ID) (object.Object, bool) {
	o, found := a.e.objects[id]
	return o, found
}

func (a arena) Logger() *slog.Logger {
	return a.e.logger
}

func (e *Environment) World() *mapdb.Map {
	return e.world
}

func (e *Environment) Logger() *slog.Logger {
	return e.logger
}

// allocateID returns the first unused id after the last allocated one,
// wrapping around and skipping zero.
func (e *Environment) allocateID() (object.ID, error) {
	for i := 0; i < math.MaxUint16; i++ {
		e.lastID++
		if e.lastID == 0 {
			e.lastID++
		}
		if _, found := e.objects[e.lastID]; !found {
			return e.lastID, nil
		}
	}
	return 0, juicevox.WithStack(ErrNoFreeID)
}

func (e *Environment) sortedIDs() []object.ID {
	ids := make([]object.ID, 0, len(e.objects))
	for id := range e.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
	return ids
}

// Spawn creates and initializes an object. If initialization fails the
// object is closed and nothing is left in the environment.
func (e *Environment) Spawn(typ object.Type, pos r3.Vec, data []byte) (object.ID, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.spawn(typ, pos, data)
}

func (e *Environment) spawn(typ object.Type, pos r3.Vec, data []byte) (object.ID, error) {
	factory, found := e.factories[typ]
	if !found {
		return 0, errors.Wrapf(ErrUnknownType, "%v", typ)
	}
	id, err := e.allocateID()
	if err != nil {
		return 0, err
	}
	o, err := factory(e.arena, id, pos)
	if err != nil {
		return 0, errors.Wrapf(err, "creating %v object", typ)
	}
	// Scripts may use the object handle already in initialize.
	e.objects[id] = o
	if err := o.Initialize(data); err != nil {
		delete(e.objects, id)
		if cerr := o.Close(); cerr != nil {
			e.logger.Warn("closing failed object", "id", id, "err", cerr)
		}
		return 0, errors.Wrapf(err, "initializing %v object", typ)
	}
	e.logger.Debug("spawned object", "id", id, "type", typ)
	return id, nil
}

// SpawnScripted spawns a scripted object running behavior, passing other to
// its initialize function.
func (e *Environment) SpawnScripted(behavior string, pos r3.Vec, other string) (object.ID, error) {
	data, err := object.ScriptedInitData(behavior, other)
	if err != nil {
		return 0, err
	}
	return e.Spawn(object.TypeScripted, pos, data)
}

// Remove marks an object for removal. It disappears once no client knows it.
func (e *Environment) Remove(id object.ID) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	o, found := e.objects[id]
	if !found {
		return errors.Wrapf(ErrUnknownObject, "%v", id)
	}
	o.Core().Remove()
	return nil
}

// Step advances every live object by dtime in id order and returns the
// messages they produced, grouped per object in step order. Objects that are
// removed and unknown to all clients are destroyed afterwards.
func (e *Environment) Step(dtime float64) []object.Message {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	out := &object.Queue{}
	queue := &object.Queue{}
	for _, id := range e.sortedIDs() {
		o := e.objects[id]
		if o.Core().Removed() {
			continue
		}
		o.Step(dtime, queue)
		queue.MoveTo(out)
	}
	e.collect()
	return out.Drain()
}

func (e *Environment) collect() {
	for _, id := range e.sortedIDs() {
		o := e.objects[id]
		core := o.Core()
		if !core.Removed() || core.KnownBy() > 0 {
			continue
		}
		delete(e.objects, id)
		if err := o.Close(); err != nil {
			e.logger.Warn("closing removed object", "id", id, "err", err)
		}
		e.logger.Debug("destroyed object", "id", id)
	}
}

// Info is a snapshot of an object.
type Info struct {
	ID       object.ID
	Type     object.Type
	Pos      r3.Vec
	KnownBy  int
	Removed  bool
	Behavior string
}

type behaviorer interface {
	Behavior() string
}

func info(o object.Object) Info {
	core := o.Core()
	result := Info{
		ID:      core.ID(),
		Type:    o.Type(),
		Pos:     core.BasePosition(),
		KnownBy: core.KnownBy(),
		Removed: core.Removed(),
	}
	if b, ok := o.(behaviorer); ok {
		result.Behavior = b.Behavior()
	}
	return result
}

func (e *Environment) Inspect(id object.ID) (Info, bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	o, found := e.objects[id]
	if !found {
		return Info{}, false
	}
	return info(o), true
}

// ServerInitData returns the payload that would recreate the object.
func (e *Environment) ServerInitData(id object.ID) ([]byte, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	o, found := e.objects[id]
	if !found {
		return nil, errors.Wrapf(ErrUnknownObject, "%v", id)
	}
	return o.ServerInitData(), nil
}

// Objects returns snapshots of all objects in id order.
func (e *Environment) Objects() []Info {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	result := make([]Info, 0, len(e.objects))
	for _, id := range e.sortedIDs() {
		result = append(result, info(e.objects[id]))
	}
	return result
}

func (e *Environment) Len() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return len(e.objects)
}

// Close closes every object and empties the environment.
func (e *Environment) Close() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	var result error
	for _, id := range e.sortedIDs() {
		if err := e.objects[id].Close(); err != nil && result == nil {
			result = err
		}
		delete(e.objects, id)
	}
	e.clients = map[ClientID]*client{}
	return result
}
