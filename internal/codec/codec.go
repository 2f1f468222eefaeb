// codec подписывает и проверяет JWT симметричным HMAC-ключом.
//
// Алгоритм фиксируется при создании Codec; токен, подписанный другим
// алгоритмом, отклоняется как ErrSignatureInvalid. Пакет не обращается
// к хранилищу и безопасен для конкурентного использования.
package codec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrSignatureInvalid — подпись не сходится или алгоритм не совпадает с ожидаемым.
	ErrSignatureInvalid = errors.New("token signature is invalid")
	// ErrExpired — exp в прошлом относительно часов проверяющего.
	ErrExpired = errors.New("token is expired")
	// ErrMalformed — токен не разбирается или в нём нет обязательных claims.
	ErrMalformed = errors.New("token is malformed")
	// ErrUnsupportedAlgorithm — алгоритм не поддерживается (ожидается HS256/HS384/HS512).
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
)

// Codec подписывает и проверяет токены.
type Codec struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	now    func() time.Time
}

// Option настраивает Codec.
type Option func(*Codec)

// WithClock подменяет часы, по которым проверяется exp.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// New создаёт Codec для секрета и алгоритма (HS256/HS384/HS512).
func New(secret, alg string, opts ...Option) (*Codec, error) {
	const op = "codec.New"

	if secret == "" {
		return nil, fmt.Errorf("%s: empty secret", op)
	}

	var method *jwt.SigningMethodHMAC
	switch alg {
	case "", jwt.SigningMethodHS256.Alg():
		method = jwt.SigningMethodHS256
	case jwt.SigningMethodHS384.Alg():
		method = jwt.SigningMethodHS384
	case jwt.SigningMethodHS512.Alg():
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("%s: %w: %q", op, ErrUnsupportedAlgorithm, alg)
	}

	c := &Codec{
		secret: []byte(secret),
		method: method,
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}

	return c, nil
}

// Sign подписывает claims. Срок действия задаётся самими claims (exp).
func (c *Codec) Sign(claims jwt.Claims) (string, error) {
	const op = "codec.Sign"

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// Verify проверяет подпись и срок действия и заполняет claims.
// Ошибки: ErrSignatureInvalid, ErrExpired, ErrMalformed.
func (c *Codec) Verify(token string, claims jwt.Claims) error {
	const op = "codec.Verify"

	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != c.method.Alg() {
				return nil, ErrSignatureInvalid
			}

			return c.secret, nil
		},
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%s: %w", op, ErrExpired)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, ErrSignatureInvalid):
		return fmt.Errorf("%s: %w", op, ErrSignatureInvalid)
	default:
		return fmt.Errorf("%s: %w", op, ErrMalformed)
	}
}
