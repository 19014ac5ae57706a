package mapdb

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/zond/juicevox"
)

// BlockStore persists serialized blocks.
type BlockStore interface {
	SaveBlock(pos BlockPos, data []byte) error
	EachBlock(f func(pos BlockPos, data []byte) error) error
}

// Map holds the loaded blocks of a world. Nodes in blocks that aren't loaded
// read as ContentIgnore.
type Map struct {
	mu     sync.RWMutex
	blocks map[BlockPos]*Block
	dirty  map[BlockPos]bool
}

func New() *Map {
	return &Map{
		blocks: map[BlockPos]*Block{},
		dirty:  map[BlockPos]bool{},
	}
}

// GetNodeNoEx returns the node at p, or an ignore node if its block isn't loaded.
func (m *Map) GetNodeNoEx(p Pos) Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, found := m.blocks[p.Block()]
	if !found {
		return Node{Content: ContentIgnore}
	}
	x, y, z := p.relative()
	return b.Get(x, y, z)
}

// SetNode replaces the node at p, creating an air filled block if needed.
func (m *Map) SetNode(p Pos, n Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bp := p.Block()
	b, found := m.blocks[bp]
	if !found {
		b = NewBlock(bp)
		m.blocks[bp] = b
	}
	x, y, z := p.relative()
	b.Set(x, y, z, n)
	m.dirty[bp] = true
}

// InsertBlock adds or replaces a whole block.
func (m *Map) InsertBlock(b *Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[b.Pos] = b
}

// BlockPositions returns the positions of all loaded blocks in a stable order.
func (m *Map) BlockPositions() []BlockPos {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]BlockPos, 0, len(m.blocks))
	for bp := range m.blocks {
		res = append(res, bp)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].X != res[j].X {
			return res[i].X < res[j].X
		}
		if res[i].Y != res[j].Y {
			return res[i].Y < res[j].Y
		}
		return res[i].Z < res[j].Z
	})
	return res
}

// Load reads every block of store into the map. Undecodable blocks are logged
// and skipped.
func (m *Map) Load(store BlockStore, logger *slog.Logger) error {
	return juicevox.WithStack(store.EachBlock(func(pos BlockPos, data []byte) error {
		b, err := DeserializeBlock(pos, data)
		if err != nil {
			logger.Warn("skipping block", "pos", pos.String(), "err", err)
			return nil
		}
		m.InsertBlock(b)
		return nil
	}))
}

// Save writes all blocks modified since the last Save to store.
func (m *Map) Save(store BlockStore) error {
	m.mu.Lock()
	toSave := make([]*Block, 0, len(m.dirty))
	for bp := range m.dirty {
		if b, found := m.blocks[bp]; found {
			toSave = append(toSave, b)
		}
	}
	m.dirty = map[BlockPos]bool{}
	m.mu.Unlock()
	for _, b := range toSave {
		m.mu.RLock()
		data := b.Serialize()
		m.mu.RUnlock()
		if err := store.SaveBlock(b.Pos, data); err != nil {
			m.mu.Lock()
			m.dirty[b.Pos] = true
			m.mu.Unlock()
			return juicevox.WithStack(err)
		}
	}
	return nil
}
