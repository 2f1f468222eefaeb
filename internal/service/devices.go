package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/auth-core/internal/models"
	"github.com/pribylovaa/auth-core/internal/pkg/log"
	"github.com/pribylovaa/auth-core/internal/pkg/useragent"
	"github.com/pribylovaa/auth-core/internal/storage"
)

// DeviceRegistry ведёт реестр устройств, с которых входят пользователи.
type DeviceRegistry struct {
	store storage.DeviceStorage
	now   func() time.Time
}

// NewDeviceRegistry создаёт реестр устройств.
func NewDeviceRegistry(store storage.DeviceStorage) *DeviceRegistry {
	return &DeviceRegistry{store: store, now: utcNow}
}

// ParseUserDevice разбирает сведения о клиенте и возвращает ID устройства,
// создавая его при первом входе. Пустые user-agent и IP заменяются на "unknown".
func (r *DeviceRegistry) ParseUserDevice(ctx context.Context, client models.ClientInfo, userID uuid.UUID) (uuid.UUID, error) {
	raw := strings.TrimSpace(client.UserAgent)
	if raw == "" {
		raw = models.Unknown
	}
	ip := strings.TrimSpace(client.IP)
	if ip == "" {
		ip = models.Unknown
	}

	info := useragent.Parse(raw)

	return r.GetOrCreateDevice(ctx, models.Device{
		UserID:         userID,
		Browser:        info.Browser,
		BrowserVersion: info.BrowserVersion,
		OS:             info.OS,
		DeviceType:     info.DeviceType,
		IsMobile:       info.IsMobile,
		IsTablet:       info.IsTablet,
		IsDesktop:      info.IsDesktop,
		RawUserAgent:   raw,
		IPAddress:      ip,
	})
}

// GetOrCreateDevice возвращает ID устройства с тем же отпечатком
// (user-agent, ip, user), обновляя last_seen, либо сохраняет новое.
func (r *DeviceRegistry) GetOrCreateDevice(ctx context.Context, d models.Device) (uuid.UUID, error) {
	const op = "service.devices.GetOrCreateDevice"

	lg := log.From(ctx)

	id, err := r.touchExisting(ctx, d)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		lg.Error("device_lookup_failed",
			slog.String("op", op),
			log.Err(err),
		)
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	d.ID = uuid.New()
	d.LastSeen = r.now()

	if err := r.store.SaveDevice(ctx, &d); err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyExists):
			// Параллельный вход с того же устройства успел его создать.
			id, err := r.touchExisting(ctx, d)
			if err != nil {
				return uuid.Nil, fmt.Errorf("%s: %w", op, ErrDeviceNotCreated)
			}
			return id, nil
		case errors.Is(err, storage.ErrNotFound):
			return uuid.Nil, fmt.Errorf("%s: %w", op, ErrDeviceNotCreated)
		default:
			lg.Error("save_device_failed",
				slog.String("op", op),
				log.Err(err),
			)
			return uuid.Nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	lg.Info("device_registered",
		slog.String("op", op),
		slog.String("user_id", d.UserID.String()),
		slog.String("device_type", d.DeviceType),
	)

	return d.ID, nil
}

func (r *DeviceRegistry) touchExisting(ctx context.Context, d models.Device) (uuid.UUID, error) {
	existing, err := r.store.DeviceByFingerprint(ctx, d.RawUserAgent, d.IPAddress, d.UserID)
	if err != nil {
		return uuid.Nil, err
	}

	if err := r.store.TouchDevice(ctx, existing.ID, r.now()); err != nil {
		return uuid.Nil, err
	}

	return existing.ID, nil
}

// DevicesByUserID возвращает устройства пользователя, свежие первыми.
func (r *DeviceRegistry) DevicesByUserID(ctx context.Context, userID uuid.UUID) ([]models.Device, error) {
	const op = "service.devices.DevicesByUserID"

	list, err := r.store.DevicesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return list, nil
}

// RevokeDevice удаляет устройство пользователя вместе с его refresh-токенами.
// Чужое устройство неотличимо от отсутствующего.
func (r *DeviceRegistry) RevokeDevice(ctx context.Context, userID, deviceID uuid.UUID) error {
	const op = "service.devices.RevokeDevice"

	d, err := r.store.DeviceByID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrDeviceNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if d.UserID != userID {
		return fmt.Errorf("%s: %w", op, ErrDeviceNotFound)
	}

	if err := r.store.DeleteDevice(ctx, deviceID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrDeviceNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("device_revoked",
		slog.String("op", op),
		slog.String("user_id", userID.String()),
		slog.String("device_id", deviceID.String()),
	)

	return nil
}
