package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pribylovaa/auth-core/internal/models"
	"github.com/pribylovaa/auth-core/internal/storage"
)

const deviceColumns = `id, user_id, browser, browser_version, os, device_type,
        is_mobile, is_tablet, is_desktop, raw_user_agent, ip_address, last_seen`

func scanDevice(row pgx.Row) (*models.Device, error) {
	var d models.Device
	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Browser,
		&d.BrowserVersion,
		&d.OS,
		&d.DeviceType,
		&d.IsMobile,
		&d.IsTablet,
		&d.IsDesktop,
		&d.RawUserAgent,
		&d.IPAddress,
		&d.LastSeen,
	)
	if err != nil {
		return nil, err
	}

	return &d, nil
}

// DeviceByFingerprint находит устройство по (user-agent, ip, user).
func (s *Storage) DeviceByFingerprint(ctx context.Context, userAgent, ip string, userID uuid.UUID) (*models.Device, error) {
	const op = "storage.postgres.DeviceByFingerprint"

	query := `
        SELECT ` + deviceColumns + `
        FROM devices
        WHERE raw_user_agent = $1 AND ip_address = $2 AND user_id = $3
    `

	d, err := scanDevice(s.db.QueryRow(ctx, query, userAgent, ip, userID))
	if err != nil {
		return nil, mapErr(op, err)
	}

	return d, nil
}

// DeviceByID находит устройство по ID.
func (s *Storage) DeviceByID(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	const op = "storage.postgres.DeviceByID"

	d, err := scanDevice(s.db.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(op, err)
	}

	return d, nil
}

// SaveDevice сохраняет новое устройство.
// Ошибки: storage.ErrAlreadyExists при занятом отпечатке, storage.ErrNotFound без владельца.
func (s *Storage) SaveDevice(ctx context.Context, d *models.Device) error {
	const op = "storage.postgres.SaveDevice"

	query := `
        INSERT INTO devices(` + deviceColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `

	_, err := s.db.Exec(ctx, query,
		d.ID,
		d.UserID,
		d.Browser,
		d.BrowserVersion,
		d.OS,
		d.DeviceType,
		d.IsMobile,
		d.IsTablet,
		d.IsDesktop,
		d.RawUserAgent,
		d.IPAddress,
		d.LastSeen,
	)
	if err != nil {
		return mapErr(op, err)
	}

	return nil
}

// TouchDevice обновляет last_seen.
func (s *Storage) TouchDevice(ctx context.Context, id uuid.UUID, lastSeen time.Time) error {
	const op = "storage.postgres.TouchDevice"

	tag, err := s.db.Exec(ctx, `UPDATE devices SET last_seen = $2 WHERE id = $1`, id, lastSeen)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// DevicesByUser возвращает устройства пользователя, свежие первыми.
func (s *Storage) DevicesByUser(ctx context.Context, userID uuid.UUID) ([]models.Device, error) {
	const op = "storage.postgres.DevicesByUser"

	query := `
        SELECT ` + deviceColumns + `
        FROM devices
        WHERE user_id = $1
        ORDER BY last_seen DESC
    `

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		devices = append(devices, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return devices, nil
}

// DeleteDevice удаляет устройство; refresh-токены устройства удаляются каскадно.
func (s *Storage) DeleteDevice(ctx context.Context, id uuid.UUID) error {
	const op = "storage.postgres.DeleteDevice"

	tag, err := s.db.Exec(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}
