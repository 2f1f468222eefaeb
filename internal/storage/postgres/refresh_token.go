package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pribylovaa/auth-core/internal/models"
	"github.com/pribylovaa/auth-core/internal/storage"
)

// SaveRefreshToken сохраняет новый refresh-токен в БД.
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.postgres.SaveRefreshToken"

	if err := insertRefreshToken(ctx, s.db, token); err != nil {
		return mapErr(op, err)
	}

	return nil
}

// RefreshTokenByJTI находит refresh-токен по jti.
func (s *Storage) RefreshTokenByJTI(ctx context.Context, jti string) (*models.RefreshToken, error) {
	const op = "storage.postgres.RefreshTokenByJTI"

	query := `
        SELECT jti, user_id, device_id, expires_at
        FROM refresh_tokens
        WHERE jti = $1
    `

	var token models.RefreshToken
	err := s.db.QueryRow(ctx, query, jti).Scan(
		&token.JTI,
		&token.UserID,
		&token.DeviceID,
		&token.ExpiresAt,
	)
	if err != nil {
		return nil, mapErr(op, err)
	}

	return &token, nil
}

// DeleteRefreshToken удаляет refresh-токен.
func (s *Storage) DeleteRefreshToken(ctx context.Context, jti string) error {
	const op = "storage.postgres.DeleteRefreshToken"

	tag, err := s.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE jti = $1`, jti)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// RotateRefreshToken заменяет oldJTI на next в одной транзакции.
// Удаление идёт первым: из двух конкурентных ротаций одного токена
// вторая увидит 0 затронутых строк и откатится с ErrNotFound.
func (s *Storage) RotateRefreshToken(ctx context.Context, oldJTI string, next *models.RefreshToken) error {
	const op = "storage.postgres.RotateRefreshToken"

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE jti = $1`, oldJTI)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return storage.ErrNotFound
		}

		return insertRefreshToken(ctx, tx, next)
	})
	if err != nil {
		return mapErr(op, err)
	}

	return nil
}

// DeleteExpiredTokens удаляет все просроченные токены.
func (s *Storage) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.postgres.DeleteExpiredTokens"

	tag, err := s.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertRefreshToken(ctx context.Context, db execer, token *models.RefreshToken) error {
	query := `
        INSERT INTO refresh_tokens(jti, user_id, device_id, expires_at)
        VALUES ($1, $2, $3, $4)
    `

	_, err := db.Exec(ctx, query,
		token.JTI,
		token.UserID,
		token.DeviceID,
		token.ExpiresAt,
	)

	return err
}
