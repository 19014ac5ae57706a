package storage

import (
	"fmt"
	"path/filepath"

	"github.com/estraier/tkrzw-go"
	"github.com/jmoiron/sqlx"
	"github.com/zond/juicevox"

	_ "modernc.org/sqlite"
)

// opener opens databases in Dir, remembering the first error so that a
// sequence of opens can be checked once.
type opener struct {
	Dir string
	Err error
}

func (o *opener) OpenHash(name string) *tkrzw.DBM {
	if o.Err != nil {
		return nil
	}
	dbm := tkrzw.NewDBM()
	stat := dbm.Open(filepath.Join(o.Dir, fmt.Sprintf("%s.tkh", name)), true, map[string]string{
		"update_mode":      "UPDATE_APPENDING",
		"record_comp_mode": "RECORD_COMP_NONE",
		"restore_mode":     "RESTORE_SYNC|RESTORE_NO_SHORTCUTS|RESTORE_WITH_HARDSYNC",
	})
	if !stat.IsOK() {
		o.Err = juicevox.WithStack(stat)
	}
	return dbm
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA synchronous=NORMAL;",
	"PRAGMA busy_timeout=5000;",
}

func (o *opener) OpenSQLite(name string) *sqlx.DB {
	if o.Err != nil {
		return nil
	}
	db, err := sqlx.Open("sqlite", filepath.Join(o.Dir, fmt.Sprintf("%s.sqlite", name)))
	if err != nil {
		o.Err = juicevox.WithStack(err)
		return nil
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			o.Err = juicevox.WithStack(err)
			return nil
		}
	}
	return db
}
