package inmemdb

import "sync"

type (
	DB struct {
		drafts *draftTable
	}

	draftTable struct {
		sync.RWMutex
		table map[string][]byte
	}
)

func Open() *DB {
	return &DB{
		drafts: &draftTable{table: make(map[string][]byte)},
	}
}
