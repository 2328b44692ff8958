package organization

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hypersenta/serenity/internal/platform/apperr"
	"github.com/hypersenta/serenity/internal/platform/db"
)

type usersPG struct {
	pool *pgxpool.Pool
}

// NewUserDirectory reads owner names from the users table.
func NewUserDirectory(pool *pgxpool.Pool) UserDirectory {
	return &usersPG{pool: pool}
}

func (u *usersPG) FullName(ctx context.Context, userID uuid.UUID) (string, error) {
	var q queryable = u.pool
	if tx := db.TxFromContext(ctx); tx != nil {
		q = tx
	}
	var name string
	err := q.QueryRow(ctx, `SELECT full_name FROM users WHERE id = $1`, userID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("user %s: %w", userID, apperr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}
	return name, nil
}
