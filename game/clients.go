package game

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/zond/juicevox/object"
	"gonum.org/v1/gonum/spatial/r3"
)

// ClientID identifies a connected client session.
type ClientID string

type client struct {
	pos   r3.Vec
	known map[object.ID]bool
}

// Added describes an object a client just became aware of.
type Added struct {
	ID       object.ID
	Type     object.Type
	InitData []byte
}

func (e *Environment) AddClient(cid ClientID) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if _, found := e.clients[cid]; found {
		return
	}
	e.clients[cid] = &client{
		known: map[object.ID]bool{},
	}
}

// RemoveClient forgets the client, releasing every object it knew.
func (e *Environment) RemoveClient(cid ClientID) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	c, found := e.clients[cid]
	if !found {
		return
	}
	for id := range c.known {
		if o, found := e.objects[id]; found {
			o.Core().ReleaseKnownBy()
		}
	}
	delete(e.clients, cid)
}

// UpdateClient moves the client to pos and returns the objects it should
// forget and the ones it should start tracking. Objects within radius world
// units become known. Known objects that moved out of range or were removed
// are forgotten.
func (e *Environment) UpdateClient(cid ClientID, pos r3.Vec, radius float64) ([]object.ID, []Added, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	c, found := e.clients[cid]
	if !found {
		return nil, nil, errors.Wrapf(ErrUnknownClient, "%q", cid)
	}
	c.pos = pos

	knownIDs := make([]object.ID, 0, len(c.known))
	for id := range c.known {
		knownIDs = append(knownIDs, id)
	}
	sort.Slice(knownIDs, func(i, j int) bool {
		return knownIDs[i] < knownIDs[j]
	})
	removed := []object.ID{}
	for _, id := range knownIDs {
		o, found := e.objects[id]
		if found && !o.Core().Removed() && r3.Norm(r3.Sub(o.Core().BasePosition(), pos)) <= radius {
			continue
		}
		delete(c.known, id)
		if found {
			o.Core().ReleaseKnownBy()
		}
		removed = append(removed, id)
	}

	added := []Added{}
	for _, id := range e.sortedIDs() {
		if c.known[id] {
			continue
		}
		o := e.objects[id]
		core := o.Core()
		if core.Removed() || r3.Norm(r3.Sub(core.BasePosition(), pos)) > radius {
			continue
		}
		c.known[id] = true
		core.AddKnownBy()
		added = append(added, Added{
			ID:       id,
			Type:     o.Type(),
			InitData: o.ClientInitData(),
		})
	}
	return removed, added, nil
}

// Knows returns whether the client is tracking the object.
func (e *Environment) Knows(cid ClientID, id object.ID) bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	c, found := e.clients[cid]
	return found && c.known[id]
}

// KnownMessages returns the messages about objects the client is tracking,
// keeping their order.
func (e *Environment) KnownMessages(cid ClientID, msgs []object.Message) []object.Message {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	c, found := e.clients[cid]
	if !found {
		return nil
	}
	result := []object.Message{}
	for _, msg := range msgs {
		if c.known[msg.ID] {
			result = append(result, msg)
		}
	}
	return result
}

func (e *Environment) Clients() []ClientID {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	result := make([]ClientID, 0, len(e.clients))
	for cid := range e.clients {
		result = append(result, cid)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i] < result[j]
	})
	return result
}
