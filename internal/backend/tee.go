package backend

import (
	"context"
	"errors"
	"fmt"
)

// Tee returns a Backend writing every transaction to first and second.
//
// Updates go to both. Commit commits first, then second; when first fails,
// second is rolled back, so second only ever holds what first accepted. A
// failure committing second after first succeeded is returned as is.
func Tee(first, second Backend) Backend {
	return tee{first: first, second: second}
}

type tee struct {
	first, second Backend
}

func (t tee) Begin(ctx context.Context) (Tx, error) {
	a, err := t.first.Begin(ctx)
	if err != nil {
		return nil, err
	}
	b, err := t.second.Begin(ctx)
	if err != nil {
		a.Rollback()
		return nil, err
	}
	return &teeTx{first: a, second: b}, nil
}

type teeTx struct {
	first, second Tx
}

func (t *teeTx) Exec(ctx context.Context, update string) error {
	if err := t.first.Exec(ctx, update); err != nil {
		return err
	}
	return t.second.Exec(ctx, update)
}

func (t *teeTx) Commit() error {
	if err := t.first.Commit(); err != nil {
		t.second.Rollback()
		return err
	}
	if err := t.second.Commit(); err != nil {
		return fmt.Errorf("second backend: %w", err)
	}
	return nil
}

func (t *teeTx) Rollback() error {
	return errors.Join(t.first.Rollback(), t.second.Rollback())
}
