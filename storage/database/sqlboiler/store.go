package boiledrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/shule/core"
)

// store runs raw SQL written with `?` placeholders on either engine.
// Statements are rebound to the placeholders of the driver before being run.
type store struct {
	exec     core.DBExecutor
	bindType int
	postgres bool
}

func newStore(exec core.DBExecutor, engine string) store {
	return store{
		exec:     exec,
		bindType: sqlx.BindType(engine),
		postgres: engine == "postgres",
	}
}

func (s store) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return s.exec
}

func (s store) rebind(query string) string {
	return sqlx.Rebind(s.bindType, query)
}

// bind runs query and binds its rows into obj: a pointer to a struct (sql.ErrNoRows when there is no row)
// or to a slice of structs.
func (s store) bind(ctx context.Context, exec []core.DBExecutor, obj interface{}, query string, args ...interface{}) error {
	return queries.Raw(s.rebind(query), args...).Bind(ctx, s.getExec(exec), obj)
}

func (s store) execute(ctx context.Context, exec []core.DBExecutor, query string, args ...interface{}) (sql.Result, error) {
	return queries.Raw(s.rebind(query), args...).ExecContext(ctx, s.getExec(exec))
}

// affected runs query and returns the number of rows it changed.
func (s store) affected(ctx context.Context, exec []core.DBExecutor, query string, args ...interface{}) (int64, error) {
	res, err := s.execute(ctx, exec, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// in expands the slice arguments of query into `(?, ?, ...)` lists.
func (s store) in(query string, args ...interface{}) (string, []interface{}, error) {
	q, a, err := sqlx.In(query, args...)
	return q, a, errors.Wrap(err, "expanding IN arguments")
}

// forUpdate is the row-locking clause of the engine; sqlite serializes writers already.
func (s store) forUpdate() string {
	if s.postgres {
		return " FOR UPDATE"
	}
	return ""
}

// trapNoRows maps sql.ErrNoRows to notFound.
func trapNoRows(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// isID reports whether s can be a primary key: postgres rejects malformed UUIDs instead of matching no row.
func isID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
