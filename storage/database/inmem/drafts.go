package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/shule/core/admission"
)

type draftRepository struct {
	db *draftTable
}

var _ admission.DraftStore = (*draftRepository)(nil)

func NewDraftRepository(db *DB) admission.DraftStore {
	return &draftRepository{db: db.drafts}
}

func (repo *draftRepository) Get(_ context.Context, key string) ([]byte, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	data, ok := repo.db.table[key]
	if !ok {
		return nil, admission.ErrDraftNotFound
	}
	return append([]byte(nil), data...), nil
}

func (repo *draftRepository) Put(_ context.Context, key string, data []byte) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.table[key] = append([]byte(nil), data...)
	return nil
}

func (repo *draftRepository) Delete(_ context.Context, key string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[key]; !ok {
		return admission.ErrDraftNotFound
	}
	delete(repo.db.table, key)
	return nil
}

func (repo *draftRepository) Keys(context.Context) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	keys := make([]string, 0, len(repo.db.table))
	for k := range repo.db.table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
