package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var ErrPersistence = errors.New("persistence error")

// PersistenceError wraps a failed statement or transaction step. It matches ErrPersistence.
type PersistenceError struct {
	Op   string
	Code string
	Err  error
}

func (e *PersistenceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (sqlstate %s)", e.Op, e.Err, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Wrap tags err as a persistence failure of op, keeping the SQLSTATE when there is one.
func Wrap(op string, err error) error {
	pe := &PersistenceError{Op: op, Err: err}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		pe.Code = pgErr.Code
	}
	return pe
}
