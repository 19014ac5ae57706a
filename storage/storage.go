// Package storage persists the static objects and the map blocks of a world.
package storage

import (
	"context"
	"os"

	"github.com/estraier/tkrzw-go"
	"github.com/jmoiron/sqlx"
	"github.com/zond/juicevox"
)

type Storage struct {
	sql    *sqlx.DB
	blocks *tkrzw.DBM
}

const schema = `
CREATE TABLE IF NOT EXISTS static_objects (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	type INTEGER NOT NULL,
	x REAL NOT NULL,
	y REAL NOT NULL,
	z REAL NOT NULL,
	data BLOB NOT NULL
);`

// New opens (creating if necessary) the databases in dir.
func New(ctx context.Context, dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, juicevox.WithStack(err)
	}
	o := &opener{Dir: dir}
	s := &Storage{
		sql:    o.OpenSQLite("objects"),
		blocks: o.OpenHash("blocks"),
	}
	if o.Err != nil {
		s.Close()
		return nil, o.Err
	}
	if _, err := s.sql.ExecContext(ctx, schema); err != nil {
		s.Close()
		return nil, juicevox.WithStack(err)
	}
	return s, nil
}

func (s *Storage) Close() error {
	var result error
	if s.blocks != nil {
		if stat := s.blocks.Close(); !stat.IsOK() {
			result = juicevox.WithStack(stat)
		}
		s.blocks = nil
	}
	if s.sql != nil {
		if err := s.sql.Close(); err != nil && result == nil {
			result = juicevox.WithStack(err)
		}
		s.sql = nil
	}
	return result
}
