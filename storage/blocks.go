package storage

import (
	"os"

	"github.com/estraier/tkrzw-go"
	"github.com/zond/juicevox"
	"github.com/zond/juicevox/mapdb"
	"github.com/zond/juicevox/wire"
)

func blockKey(pos mapdb.BlockPos) []byte {
	w := &wire.Writer{}
	w.WriteU16(uint16(pos.X))
	w.WriteU16(uint16(pos.Y))
	w.WriteU16(uint16(pos.Z))
	return w.Bytes()
}

func parseBlockKey(b []byte) (mapdb.BlockPos, error) {
	r := wire.NewReader(b)
	var coords [3]uint16
	for i := range coords {
		c, err := r.ReadU16()
		if err != nil {
			return mapdb.BlockPos{}, err
		}
		coords[i] = c
	}
	return mapdb.BlockPos{X: int16(coords[0]), Y: int16(coords[1]), Z: int16(coords[2])}, nil
}

// LoadBlock returns the serialized block at pos, or os.ErrNotExist.
func (s *Storage) LoadBlock(pos mapdb.BlockPos) ([]byte, error) {
	b, stat := s.blocks.Get(blockKey(pos))
	if stat.GetCode() == tkrzw.StatusNotFoundError {
		return nil, juicevox.WithStack(os.ErrNotExist)
	} else if !stat.IsOK() {
		return nil, juicevox.WithStack(stat)
	}
	return b, nil
}

func (s *Storage) SaveBlock(pos mapdb.BlockPos, data []byte) error {
	if stat := s.blocks.Set(blockKey(pos), data, true); !stat.IsOK() {
		return juicevox.WithStack(stat)
	}
	return nil
}

// EachBlock calls f with every stored block until f returns an error.
func (s *Storage) EachBlock(f func(pos mapdb.BlockPos, data []byte) error) error {
	iter := s.blocks.MakeIterator()
	defer iter.Destruct()
	if stat := iter.First(); !stat.IsOK() {
		return juicevox.WithStack(stat)
	}
	for {
		k, v, stat := iter.Get()
		if stat.GetCode() == tkrzw.StatusNotFoundError {
			return nil
		} else if !stat.IsOK() {
			return juicevox.WithStack(stat)
		}
		pos, err := parseBlockKey(k)
		if err != nil {
			return err
		}
		if err := f(pos, v); err != nil {
			return err
		}
		if stat := iter.Next(); !stat.IsOK() {
			return juicevox.WithStack(stat)
		}
	}
}

func (s *Storage) CountBlocks() (int, error) {
	n, stat := s.blocks.Count()
	if !stat.IsOK() {
		return 0, juicevox.WithStack(stat)
	}
	return int(n), nil
}
