package game

import (
	"context"

	"github.com/pkg/errors"
	"github.com/zond/juicevox"
	"github.com/zond/juicevox/object"
	"github.com/zond/juicevox/storage"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	ErrNoStaticStore = errors.New("no static store configured")
)

// StaticStore persists objects between server runs.
type StaticStore interface {
	SaveObjects(ctx context.Context, objects []storage.StaticObject) error
	LoadObjects(ctx context.Context) ([]storage.StaticObject, error)
}

// Static returns the persistent form of every live object in id order.
func (e *Environment) Static() []storage.StaticObject {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	result := []storage.StaticObject{}
	for _, id := range e.sortedIDs() {
		o := e.objects[id]
		core := o.Core()
		if core.Removed() {
			continue
		}
		pos := core.BasePosition()
		result = append(result, storage.StaticObject{
			Type: uint8(o.Type()),
			X:    pos.X,
			Y:    pos.Y,
			Z:    pos.Z,
			Data: o.ServerInitData(),
		})
	}
	return result
}

// SaveStatic replaces the stored objects with the live ones and returns how
// many were stored.
func (e *Environment) SaveStatic(ctx context.Context) (int, error) {
	if e.static == nil {
		return 0, juicevox.WithStack(ErrNoStaticStore)
	}
	objects := e.Static()
	if err := e.static.SaveObjects(ctx, objects); err != nil {
		return 0, err
	}
	return len(objects), nil
}

// LoadStatic spawns the stored objects. Objects that fail to spawn are logged
// and skipped. Returns the number spawned.
func (e *Environment) LoadStatic(ctx context.Context) (int, error) {
	if e.static == nil {
		return 0, juicevox.WithStack(ErrNoStaticStore)
	}
	objects, err := e.static.LoadObjects(ctx)
	if err != nil {
		return 0, err
	}
	return e.SpawnStatic(objects), nil
}

// SpawnStatic spawns objects, logging and skipping failures, and returns the
// number spawned.
func (e *Environment) SpawnStatic(objects []storage.StaticObject) int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	spawned := 0
	for _, obj := range objects {
		typ := object.Type(obj.Type)
		if _, err := e.spawn(typ, r3.Vec{X: obj.X, Y: obj.Y, Z: obj.Z}, obj.Data); err != nil {
			e.logger.Warn("skipping stored object", "type", typ, "err", err)
			continue
		}
		spawned++
	}
	return spawned
}
