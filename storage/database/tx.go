package database

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

type transactor struct {
	db core.DB
}

var _ core.Transactor = (*transactor)(nil) // interface compliance check

// NewTransactor returns a core.Transactor running units of work in database transactions.
func NewTransactor(db core.DB) *transactor {
	return &transactor{db: db}
}

func (t *transactor) RunInTx(ctx context.Context, fn func(exec core.DBExecutor) error) (err error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}
