package codec

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type testClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func newCodec(t *testing.T, opts ...Option) *Codec {
	t.Helper()
	c, err := New("unit-test-secret", "HS256", opts...)
	require.NoError(t, err)
	return c
}

func TestSignVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	c := newCodec(t)
	in := testClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}

	token, err := c.Sign(in)
	require.NoError(t, err)

	var out testClaims
	require.NoError(t, c.Verify(token, &out))
	require.Equal(t, "admin", out.Role)
	require.Equal(t, "user-1", out.Subject)
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()

	c := newCodec(t)
	token, err := c.Sign(jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Second)),
	})
	require.NoError(t, err)

	err = c.Verify(token, &jwt.RegisteredClaims{})
	require.ErrorIs(t, err, ErrExpired)
}

func TestVerify_ExpiryUsesVerifierClock(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(10 * time.Minute)
	token, err := newCodec(t).Sign(jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)})
	require.NoError(t, err)

	late := newCodec(t, WithClock(func() time.Time { return exp.Add(time.Minute) }))
	require.ErrorIs(t, late.Verify(token, &jwt.RegisteredClaims{}), ErrExpired)

	early := newCodec(t, WithClock(func() time.Time { return exp.Add(-time.Minute) }))
	require.NoError(t, early.Verify(token, &jwt.RegisteredClaims{}))
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()

	other, err := New("another-secret", "HS256")
	require.NoError(t, err)

	token, err := other.Sign(jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))})
	require.NoError(t, err)

	require.ErrorIs(t, newCodec(t).Verify(token, &jwt.RegisteredClaims{}), ErrSignatureInvalid)
}

func TestVerify_AlgorithmMismatch(t *testing.T) {
	t.Parallel()

	hs512, err := New("unit-test-secret", "HS512")
	require.NoError(t, err)

	token, err := hs512.Sign(jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))})
	require.NoError(t, err)

	require.ErrorIs(t, newCodec(t).Verify(token, &jwt.RegisteredClaims{}), ErrSignatureInvalid)
}

func TestVerify_NoneAlgorithmRejected(t *testing.T) {
	t.Parallel()

	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	require.ErrorIs(t, newCodec(t).Verify(token, &jwt.RegisteredClaims{}), ErrSignatureInvalid)
}

func TestVerify_TamperedPayload(t *testing.T) {
	t.Parallel()

	c := newCodec(t)
	token, err := c.Sign(testClaims{
		Role:             "user",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
	})
	require.NoError(t, err)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, testClaims{
		Role:             "admin",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
	}).SignedString([]byte("unit-test-secret"))
	require.NoError(t, err)

	// Склеиваем заголовок и подпись исходного токена с payload поддельного.
	parts := strings.Split(token, ".")
	forgedParts := strings.Split(forged, ".")
	tampered := parts[0] + "." + forgedParts[1] + "." + parts[2]

	require.ErrorIs(t, c.Verify(tampered, &testClaims{}), ErrSignatureInvalid)
}

func TestVerify_Malformed(t *testing.T) {
	t.Parallel()

	c := newCodec(t)

	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		require.ErrorIs(t, c.Verify(tok, &jwt.RegisteredClaims{}), ErrMalformed, tok)
	}
}

func TestVerify_MissingExp(t *testing.T) {
	t.Parallel()

	c := newCodec(t)
	token, err := c.Sign(jwt.RegisteredClaims{Subject: "user-1"})
	require.NoError(t, err)

	require.ErrorIs(t, c.Verify(token, &jwt.RegisteredClaims{}), ErrMalformed)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New("", "HS256")
	require.Error(t, err)

	_, err = New("secret", "RS256")
	require.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	c, err := New("secret", "")
	require.NoError(t, err)
	require.Equal(t, "HS256", c.method.Alg())
}
