package storage

import (
	"context"

	"github.com/zond/juicevox"
)

// StaticObject is an object stored while the server isn't running it.
// Data is the server init payload of the object.
type StaticObject struct {
	Type uint8   `db:"type" json:"type"`
	X    float64 `db:"x" json:"x"`
	Y    float64 `db:"y" json:"y"`
	Z    float64 `db:"z" json:"z"`
	Data []byte  `db:"data" json:"data"`
}

// SaveObjects replaces all stored objects with objects.
func (s *Storage) SaveObjects(ctx context.Context, objects []StaticObject) error {
	tx, err := s.sql.BeginTxx(ctx, nil)
	if err != nil {
		return juicevox.WithStack(err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM static_objects"); err != nil {
		return juicevox.WithStack(err)
	}
	for _, obj := range objects {
		if obj.Data == nil {
			obj.Data = []byte{}
		}
		if _, err := tx.NamedExecContext(ctx, "INSERT INTO static_objects (type, x, y, z, data) VALUES (:type, :x, :y, :z, :data)", obj); err != nil {
			return juicevox.WithStack(err)
		}
	}
	return juicevox.WithStack(tx.Commit())
}

// LoadObjects returns the stored objects in the order they were saved.
func (s *Storage) LoadObjects(ctx context.Context) ([]StaticObject, error) {
	result := []StaticObject{}
	if err := s.sql.SelectContext(ctx, &result, "SELECT type, x, y, z, data FROM static_objects ORDER BY id"); err != nil {
		return nil, juicevox.WithStack(err)
	}
	return result, nil
}

func (s *Storage) CountObjects(ctx context.Context) (int, error) {
	count := 0
	if err := s.sql.GetContext(ctx, &count, "SELECT COUNT(*) FROM static_objects"); err != nil {
		return 0, juicevox.WithStack(err)
	}
	return count, nil
}
