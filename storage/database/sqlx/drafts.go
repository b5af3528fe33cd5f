package sqlxrepos

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/admission"
)

const draftsTable = "admission_drafts"

type draftRepository struct {
	db core.DBExecutor
	sb sq.StatementBuilderType
}

var _ admission.DraftStore = (*draftRepository)(nil)

func NewDraftRepository(db *sqlx.DB) admission.DraftStore {
	return newDraftRepository(db)
}

func newDraftRepository(db core.DBExecutor) *draftRepository {
	return &draftRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (repo *draftRepository) getQuery(key string) sq.SelectBuilder {
	return repo.sb.Select("data").From(draftsTable).Where(sq.Eq{"key": key}).Limit(1)
}

func (repo *draftRepository) putQuery(key string, data []byte) sq.InsertBuilder {
	return repo.sb.Insert(draftsTable).
		Columns("key", "data", "updated_at").
		Values(key, data, core.NowFunc().UTC()).
		Suffix("ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at")
}

func (repo *draftRepository) deleteQuery(key string) sq.DeleteBuilder {
	return repo.sb.Delete(draftsTable).Where(sq.Eq{"key": key})
}

func (repo *draftRepository) keysQuery() sq.SelectBuilder {
	return repo.sb.Select("key").From(draftsTable).OrderBy(core.DBOrdering{Field: "key", Ascending: true}.String())
}

func (repo *draftRepository) Get(ctx context.Context, key string) ([]byte, error) {
	query, args, err := repo.getQuery(key).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building get draft query")
	}

	var data []byte
	if err = repo.db.GetContext(ctx, &data, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, admission.ErrDraftNotFound
		}
		return nil, errors.Wrapf(err, "getting draft %q", key)
	}
	return data, nil
}

func (repo *draftRepository) Put(ctx context.Context, key string, data []byte) error {
	query, args, err := repo.putQuery(key, data).ToSql()
	if err != nil {
		return errors.Wrap(err, "building put draft query")
	}
	if _, err = repo.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "saving draft %q", key)
	}
	return nil
}

func (repo *draftRepository) Delete(ctx context.Context, key string) error {
	query, args, err := repo.deleteQuery(key).ToSql()
	if err != nil {
		return errors.Wrap(err, "building delete draft query")
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "deleting draft %q", key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "deleting draft %q", key)
	}
	if n == 0 {
		return admission.ErrDraftNotFound
	}
	return nil
}

func (repo *draftRepository) Keys(ctx context.Context) ([]string, error) {
	query, args, err := repo.keysQuery().ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building list drafts query")
	}
	keys := make([]string, 0)
	if err = repo.db.SelectContext(ctx, &keys, query, args...); err != nil {
		return nil, errors.Wrap(err, "listing drafts")
	}
	return keys, nil
}
