package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/auth-core/internal/models"
	"github.com/pribylovaa/auth-core/internal/storage"
)

func seedUser(t *testing.T, s *Storage, email string) *models.User {
	t.Helper()
	u := &models.User{ID: uuid.New(), Email: email, Role: models.RoleUser, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.SaveUser(context.Background(), u))
	return u
}

func seedDevice(t *testing.T, s *Storage, userID uuid.UUID, ua, ip string) *models.Device {
	t.Helper()
	d := &models.Device{ID: uuid.New(), UserID: userID, RawUserAgent: ua, IPAddress: ip, LastSeen: time.Now().UTC()}
	require.NoError(t, s.SaveDevice(context.Background(), d))
	return d
}

func TestUsers_UniqueEmailAndPatch(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	u := seedUser(t, s, "ada@example.com")
	other := &models.User{ID: uuid.New(), Email: "ADA@example.com"}
	require.ErrorIs(t, s.SaveUser(ctx, other), storage.ErrAlreadyExists)

	got, err := s.UserByEmail(ctx, "Ada@Example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	second := seedUser(t, s, "bob@example.com")
	taken := "ada@example.com"
	_, err = s.UpdateUser(ctx, second.ID, storage.UserUpdate{Email: &taken})
	require.ErrorIs(t, err, storage.ErrAlreadyExists)

	name := "Augusta"
	upd, err := s.UpdateUser(ctx, u.ID, storage.UserUpdate{FirstName: &name})
	require.NoError(t, err)
	require.Equal(t, "Augusta", upd.FirstName)
	require.Equal(t, "ada@example.com", upd.Email)

	_, err = s.UpdateUser(ctx, uuid.New(), storage.UserUpdate{FirstName: &name})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListUsers_Pagination(t *testing.T) {
	t.Parallel()
	s := New()

	for i := 0; i < 5; i++ {
		seedUser(t, s, fmt.Sprintf("u%d@example.com", i))
	}

	page, err := s.ListUsers(context.Background(), 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)

	page, err = s.ListUsers(context.Background(), 10, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)

	page, err = s.ListUsers(context.Background(), 10, 10)
	require.NoError(t, err)
	require.Empty(t, page)
}

func TestRefresh_RotateOnce(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	u := seedUser(t, s, "rt@example.com")
	d := seedDevice(t, s, u.ID, "ua", "ip")

	require.NoError(t, s.SaveRefreshToken(ctx, &models.RefreshToken{JTI: "old", UserID: u.ID, DeviceID: d.ID}))

	var wg sync.WaitGroup
	results := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- s.RotateRefreshToken(ctx, "old", &models.RefreshToken{JTI: fmt.Sprintf("n%d", i), UserID: u.ID, DeviceID: d.ID})
		}(i)
	}
	wg.Wait()
	close(results)

	var ok int
	for err := range results {
		if err == nil {
			ok++
		} else {
			require.ErrorIs(t, err, storage.ErrNotFound)
		}
	}
	require.Equal(t, 1, ok)
}

func TestRefresh_RotateRestoresOldOnInsertFailure(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	u := seedUser(t, s, "rt@example.com")
	d := seedDevice(t, s, u.ID, "ua", "ip")
	require.NoError(t, s.SaveRefreshToken(ctx, &models.RefreshToken{JTI: "old", UserID: u.ID, DeviceID: d.ID}))

	err := s.RotateRefreshToken(ctx, "old", &models.RefreshToken{JTI: "next", UserID: u.ID, DeviceID: uuid.New()})
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.RefreshTokenByJTI(ctx, "old")
	require.NoError(t, err)
}

func TestDeleteUser_Cascades(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	u := seedUser(t, s, "c@example.com")
	d := seedDevice(t, s, u.ID, "ua", "ip")
	require.NoError(t, s.SaveRefreshToken(ctx, &models.RefreshToken{JTI: "j", UserID: u.ID, DeviceID: d.ID}))
	require.NoError(t, s.ReplaceValidationToken(ctx, &models.ValidationToken{UserID: u.ID, Token: "v", Type: models.ValidationVerification}))

	require.NoError(t, s.DeleteUser(ctx, u.ID))

	_, err := s.RefreshTokenByJTI(ctx, "j")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.ValidationTokenByToken(ctx, "v")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.DeviceByFingerprint(ctx, "ua", "ip", u.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.UserByEmail(ctx, "c@example.com")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReplaceValidationToken(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	u := seedUser(t, s, "vt@example.com")
	other := seedUser(t, s, "vt2@example.com")

	require.NoError(t, s.ReplaceValidationToken(ctx, &models.ValidationToken{UserID: u.ID, Token: "a", Type: models.ValidationVerification}))
	require.NoError(t, s.ReplaceValidationToken(ctx, &models.ValidationToken{UserID: u.ID, Token: "r", Type: models.ValidationPasswordReset}))
	require.NoError(t, s.ReplaceValidationToken(ctx, &models.ValidationToken{UserID: u.ID, Token: "b", Type: models.ValidationVerification}))

	_, err := s.ValidationTokenByToken(ctx, "a")
	require.ErrorIs(t, err, storage.ErrNotFound)

	got, err := s.ValidationTokenByUser(ctx, u.ID, models.ValidationVerification)
	require.NoError(t, err)
	require.Equal(t, "b", got.Token)

	_, err = s.ValidationTokenByToken(ctx, "r")
	require.NoError(t, err)

	// занятое значение не перезаписывает чужой токен.
	require.ErrorIs(t, s.ReplaceValidationToken(ctx, &models.ValidationToken{UserID: other.ID, Token: "b", Type: models.ValidationVerification}), storage.ErrAlreadyExists)
	got, err = s.ValidationTokenByToken(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.UserID)

	require.ErrorIs(t, s.ReplaceValidationToken(ctx, &models.ValidationToken{UserID: uuid.New(), Token: "c", Type: models.ValidationVerification}), storage.ErrNotFound)
}

func TestDevices_UniqueFingerprintAndOrder(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	u := seedUser(t, s, "d@example.com")
	a := seedDevice(t, s, u.ID, "ua-a", "ip")
	b := seedDevice(t, s, u.ID, "ua-b", "ip")

	dup := &models.Device{ID: uuid.New(), UserID: u.ID, RawUserAgent: "ua-a", IPAddress: "ip"}
	require.ErrorIs(t, s.SaveDevice(ctx, dup), storage.ErrAlreadyExists)

	require.NoError(t, s.TouchDevice(ctx, a.ID, time.Now().Add(time.Hour)))

	list, err := s.DevicesByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, a.ID, list[0].ID)
	require.Equal(t, b.ID, list[1].ID)

	orphan := &models.Device{ID: uuid.New(), UserID: uuid.New(), RawUserAgent: "x", IPAddress: "y"}
	require.ErrorIs(t, s.SaveDevice(ctx, orphan), storage.ErrNotFound)
}

func TestDeleteExpiredTokens(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	u := seedUser(t, s, "e@example.com")
	d := seedDevice(t, s, u.ID, "ua", "ip")
	now := time.Now()
	require.NoError(t, s.SaveRefreshToken(ctx, &models.RefreshToken{JTI: "old", UserID: u.ID, DeviceID: d.ID, ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, s.SaveRefreshToken(ctx, &models.RefreshToken{JTI: "new", UserID: u.ID, DeviceID: d.ID, ExpiresAt: now.Add(time.Hour)}))

	n, err := s.DeleteExpiredTokens(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
