package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pribylovaa/auth-core/internal/models"
	"github.com/pribylovaa/auth-core/internal/storage"
)

const validationColumns = `user_id, token, token_type, expires_at`

func scanValidationToken(row pgx.Row) (*models.ValidationToken, error) {
	var t models.ValidationToken
	if err := row.Scan(&t.UserID, &t.Token, &t.Type, &t.ExpiresAt); err != nil {
		return nil, err
	}

	return &t, nil
}

// ReplaceValidationToken сохраняет одноразовый токен вместо прежнего токена
// того же пользователя и типа. Уникальный индекс (user_id, token_type) делает
// замену одним атомарным upsert.
func (s *Storage) ReplaceValidationToken(ctx context.Context, token *models.ValidationToken) error {
	const op = "storage.postgres.ReplaceValidationToken"

	query := `
        INSERT INTO validation_tokens(` + validationColumns + `)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id, token_type)
        DO UPDATE SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at
    `

	_, err := s.db.Exec(ctx, query, token.UserID, token.Token, token.Type, token.ExpiresAt)
	if err != nil {
		return mapErr(op, err)
	}

	return nil
}

// ValidationTokenByToken находит токен по значению.
func (s *Storage) ValidationTokenByToken(ctx context.Context, token string) (*models.ValidationToken, error) {
	const op = "storage.postgres.ValidationTokenByToken"

	query := `SELECT ` + validationColumns + ` FROM validation_tokens WHERE token = $1`

	t, err := scanValidationToken(s.db.QueryRow(ctx, query, token))
	if err != nil {
		return nil, mapErr(op, err)
	}

	return t, nil
}

// ValidationTokenByUser находит токен пользователя заданного типа.
func (s *Storage) ValidationTokenByUser(ctx context.Context, userID uuid.UUID, typ models.ValidationTokenType) (*models.ValidationToken, error) {
	const op = "storage.postgres.ValidationTokenByUser"

	query := `
        SELECT ` + validationColumns + `
        FROM validation_tokens
        WHERE user_id = $1 AND token_type = $2
    `

	t, err := scanValidationToken(s.db.QueryRow(ctx, query, userID, typ))
	if err != nil {
		return nil, mapErr(op, err)
	}

	return t, nil
}

// DeleteValidationToken удаляет токен.
func (s *Storage) DeleteValidationToken(ctx context.Context, token string) error {
	const op = "storage.postgres.DeleteValidationToken"

	tag, err := s.db.Exec(ctx, `DELETE FROM validation_tokens WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}
