package idempotency

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PGGuard stores keys in the idempotency_keys table. The primary key makes the
// insert itself the check-and-mark, so concurrent claims race in the database,
// not in the process.
type PGGuard struct {
	db execer
}

func NewPGGuard(db execer) *PGGuard {
	return &PGGuard{db: db}
}

func (g *PGGuard) TryMark(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	tag, err := g.db.Exec(ctx, `INSERT INTO idempotency_keys (key) VALUES ($1) ON CONFLICT (key) DO NOTHING`, key)
	if err != nil {
		return false, fmt.Errorf("mark idempotency key: %w", err)
	}
	return tag.RowsAffected() == 0, nil
}

func (g *PGGuard) Release(ctx context.Context, key string) error {
	if _, err := g.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1`, key); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
