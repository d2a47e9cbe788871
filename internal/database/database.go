// Package database owns the connection and the transaction helper every
// compound operation runs inside.
package database

import (
	"context"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

type DB struct {
	*sqlx.DB
}

func Connect(ctx context.Context, url string) (*DB, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", url)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &DB{DB: db}, nil
}

// InTx runs fn inside a transaction. Any error from fn rolls the whole
// thing back; multi-entity mutations (rent, return, reservation
// transitions, rebalance) rely on this for all-or-nothing application.
func (d *DB) InTx(ctx context.Context, fn func(q sqlx.ExtContext) error) error {
	tx, err := d.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
