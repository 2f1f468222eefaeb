// memory — реализация storage.Storage в памяти процесса.
// Используется для локального запуска (db.driver: memory) и сквозных тестов.
// Повторяет ограничения схемы PostgreSQL: уникальность email без учёта регистра,
// уникальность отпечатка устройства, внешние ключи и каскадные удаления.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/auth-core/internal/models"
	"github.com/pribylovaa/auth-core/internal/storage"
)

type fingerprint struct {
	userAgent string
	ip        string
	userID    uuid.UUID
}

type Storage struct {
	mu sync.RWMutex

	users       map[uuid.UUID]models.User
	emails      map[string]uuid.UUID
	refresh     map[string]models.RefreshToken
	validation  map[string]models.ValidationToken
	devices     map[uuid.UUID]models.Device
	fingerprint map[fingerprint]uuid.UUID
}

// New создаёт пустое хранилище.
func New() *Storage {
	return &Storage{
		users:       make(map[uuid.UUID]models.User),
		emails:      make(map[string]uuid.UUID),
		refresh:     make(map[string]models.RefreshToken),
		validation:  make(map[string]models.ValidationToken),
		devices:     make(map[uuid.UUID]models.Device),
		fingerprint: make(map[fingerprint]uuid.UUID),
	}
}

func emailKey(email string) string { return strings.ToLower(email) }

// SaveUser создаёт нового пользователя.
func (s *Storage) SaveUser(_ context.Context, user *models.User) error {
	const op = "storage.memory.SaveUser"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}
	if _, ok := s.emails[emailKey(user.Email)]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	s.users[user.ID] = *user
	s.emails[emailKey(user.Email)] = user.ID

	return nil
}

// UserByEmail находит пользователя по email без учёта регистра.
func (s *Storage) UserByEmail(_ context.Context, email string) (*models.User, error) {
	const op = "storage.memory.UserByEmail"

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[emailKey(email)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	u := s.users[id]
	return &u, nil
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.memory.UserByID"

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return &u, nil
}

// ListUsers возвращает страницу пользователей по created_at.
func (s *Storage) ListUsers(_ context.Context, limit, offset int) ([]models.User, error) {
	s.mu.RLock()
	all := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, u)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID.String() < all[j].ID.String()
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return []models.User{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}

	return all, nil
}

// UpdateUser применяет частичное обновление.
func (s *Storage) UpdateUser(_ context.Context, id uuid.UUID, update storage.UserUpdate) (*models.User, error) {
	const op = "storage.memory.UpdateUser"

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	if update.Email != nil && emailKey(*update.Email) != emailKey(u.Email) {
		if _, taken := s.emails[emailKey(*update.Email)]; taken {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}
		delete(s.emails, emailKey(u.Email))
		s.emails[emailKey(*update.Email)] = id
		u.Email = *update.Email
	}
	if update.FirstName != nil {
		u.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		u.LastName = *update.LastName
	}
	if update.PasswordHash != nil {
		u.PasswordHash = *update.PasswordHash
	}
	if update.Role != nil {
		u.Role = *update.Role
	}
	if update.VerifiedAt != nil {
		v := *update.VerifiedAt
		u.VerifiedAt = &v
	}
	u.UpdatedAt = time.Now().UTC()

	s.users[id] = u
	return &u, nil
}

// DeleteUser удаляет пользователя вместе с токенами и устройствами.
func (s *Storage) DeleteUser(_ context.Context, id uuid.UUID) error {
	const op = "storage.memory.DeleteUser"

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	delete(s.users, id)
	delete(s.emails, emailKey(u.Email))

	for k, t := range s.validation {
		if t.UserID == id {
			delete(s.validation, k)
		}
	}
	for did, d := range s.devices {
		if d.UserID == id {
			s.deleteDeviceLocked(did)
		}
	}

	return nil
}

// SaveRefreshToken сохраняет новый refresh-токен.
func (s *Storage) SaveRefreshToken(_ context.Context, token *models.RefreshToken) error {
	const op = "storage.memory.SaveRefreshToken"

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertRefreshLocked(token); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RefreshTokenByJTI находит refresh-токен по jti.
func (s *Storage) RefreshTokenByJTI(_ context.Context, jti string) (*models.RefreshToken, error) {
	const op = "storage.memory.RefreshTokenByJTI"

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.refresh[jti]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return &t, nil
}

// DeleteRefreshToken удаляет refresh-токен.
func (s *Storage) DeleteRefreshToken(_ context.Context, jti string) error {
	const op = "storage.memory.DeleteRefreshToken"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refresh[jti]; !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	delete(s.refresh, jti)

	return nil
}

// RotateRefreshToken атомарно заменяет oldJTI на next.
func (s *Storage) RotateRefreshToken(_ context.Context, oldJTI string, next *models.RefreshToken) error {
	const op = "storage.memory.RotateRefreshToken"

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.refresh[oldJTI]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	delete(s.refresh, oldJTI)
	if err := s.insertRefreshLocked(next); err != nil {
		s.refresh[oldJTI] = old
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// DeleteExpiredTokens удаляет просроченные refresh-токены.
func (s *Storage) DeleteExpiredTokens(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for jti, t := range s.refresh {
		if !t.ExpiresAt.After(now) {
			delete(s.refresh, jti)
			n++
		}
	}

	return n, nil
}

func (s *Storage) insertRefreshLocked(token *models.RefreshToken) error {
	if _, ok := s.refresh[token.JTI]; ok {
		return storage.ErrAlreadyExists
	}
	if _, ok := s.users[token.UserID]; !ok {
		return storage.ErrNotFound
	}
	if _, ok := s.devices[token.DeviceID]; !ok {
		return storage.ErrNotFound
	}

	s.refresh[token.JTI] = *token
	return nil
}

// ReplaceValidationToken сохраняет одноразовый токен вместо прежних токенов
// того же пользователя и типа.
func (s *Storage) ReplaceValidationToken(_ context.Context, token *models.ValidationToken) error {
	const op = "storage.memory.ReplaceValidationToken"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.validation[token.Token]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}
	if _, ok := s.users[token.UserID]; !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	for value, t := range s.validation {
		if t.UserID == token.UserID && t.Type == token.Type {
			delete(s.validation, value)
		}
	}

	s.validation[token.Token] = *token
	return nil
}

// ValidationTokenByToken находит токен по значению.
func (s *Storage) ValidationTokenByToken(_ context.Context, token string) (*models.ValidationToken, error) {
	const op = "storage.memory.ValidationTokenByToken"

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.validation[token]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return &t, nil
}

// ValidationTokenByUser находит самый свежий токен пользователя заданного типа.
func (s *Storage) ValidationTokenByUser(_ context.Context, userID uuid.UUID, typ models.ValidationTokenType) (*models.ValidationToken, error) {
	const op = "storage.memory.ValidationTokenByUser"

	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *models.ValidationToken
	for _, t := range s.validation {
		if t.UserID != userID || t.Type != typ {
			continue
		}
		if found == nil || t.ExpiresAt.After(found.ExpiresAt) {
			t := t
			found = &t
		}
	}

	if found == nil {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return found, nil
}

// DeleteValidationToken удаляет токен.
func (s *Storage) DeleteValidationToken(_ context.Context, token string) error {
	const op = "storage.memory.DeleteValidationToken"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.validation[token]; !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	delete(s.validation, token)

	return nil
}

// DeviceByFingerprint находит устройство по (user-agent, ip, user).
func (s *Storage) DeviceByFingerprint(_ context.Context, userAgent, ip string, userID uuid.UUID) (*models.Device, error) {
	const op = "storage.memory.DeviceByFingerprint"

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.fingerprint[fingerprint{userAgent: userAgent, ip: ip, userID: userID}]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	d := s.devices[id]
	return &d, nil
}

// DeviceByID находит устройство по ID.
func (s *Storage) DeviceByID(_ context.Context, id uuid.UUID) (*models.Device, error) {
	const op = "storage.memory.DeviceByID"

	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return &d, nil
}

// SaveDevice сохраняет новое устройство.
func (s *Storage) SaveDevice(_ context.Context, d *models.Device) error {
	const op = "storage.memory.SaveDevice"

	s.mu.Lock()
	defer s.mu.Unlock()

	fp := fingerprint{userAgent: d.RawUserAgent, ip: d.IPAddress, userID: d.UserID}
	if _, ok := s.fingerprint[fp]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}
	if _, ok := s.devices[d.ID]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}
	if _, ok := s.users[d.UserID]; !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	s.devices[d.ID] = *d
	s.fingerprint[fp] = d.ID

	return nil
}

// TouchDevice обновляет last_seen.
func (s *Storage) TouchDevice(_ context.Context, id uuid.UUID, lastSeen time.Time) error {
	const op = "storage.memory.TouchDevice"

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	d.LastSeen = lastSeen
	s.devices[id] = d

	return nil
}

// DevicesByUser возвращает устройства пользователя, свежие первыми.
func (s *Storage) DevicesByUser(_ context.Context, userID uuid.UUID) ([]models.Device, error) {
	s.mu.RLock()
	var out []models.Device
	for _, d := range s.devices {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })

	return out, nil
}

// DeleteDevice удаляет устройство и его refresh-токены.
func (s *Storage) DeleteDevice(_ context.Context, id uuid.UUID) error {
	const op = "storage.memory.DeleteDevice"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[id]; !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	s.deleteDeviceLocked(id)

	return nil
}

func (s *Storage) deleteDeviceLocked(id uuid.UUID) {
	d := s.devices[id]
	delete(s.devices, id)
	delete(s.fingerprint, fingerprint{userAgent: d.RawUserAgent, ip: d.IPAddress, userID: d.UserID})

	for jti, t := range s.refresh {
		if t.DeviceID == id {
			delete(s.refresh, jti)
		}
	}
}

// Ping всегда успешен.
func (s *Storage) Ping(context.Context) error { return nil }

// Close ничего не освобождает.
func (s *Storage) Close() {}

// Проверка на соответствие интерфейсу Storage.
var _ storage.Storage = (*Storage)(nil)
