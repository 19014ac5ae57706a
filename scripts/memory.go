package scripts

import (
	"os"
	"sync"

	"github.com/pkg/errors"
)

// Memory is a Source backed by a map.
type Memory struct {
	mutex sync.RWMutex
	pairs map[string]Pair
}

func NewMemory() *Memory {
	return &Memory{
		pairs: map[string]Pair{},
	}
}

func (m *Memory) Set(name string, pair Pair) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.pairs[name] = pair
}

func (m *Memory) Load(name string) (*Pair, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	pair, found := m.pairs[name]
	if !found {
		return nil, errors.Wrapf(os.ErrNotExist, "behavior %q", name)
	}
	return &pair, nil
}
