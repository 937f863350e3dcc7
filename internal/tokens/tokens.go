package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSecret  = errors.New("tokens: signing secret not configured")
	ErrMissingSubject = errors.New("tokens: subject claim missing")
	ErrMalformed      = errors.New("tokens: malformed token")
	ErrSignature      = errors.New("tokens: invalid signature")
	ErrExpired        = errors.New("tokens: token expired")
)

// Mint creates a signed HS256 token carrying only the subject and its expiry.
// It fails closed: no token is produced without a secret.
// exp has one second precision; sub-second parts of expiresAt are truncated.
func Mint(subject string, expiresAt time.Time, secret string) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	if subject == "" {
		return "", ErrMissingSubject
	}
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString([]byte(secret))
}

// Parse verifies signature and expiry at the given instant with zero leeway and
// returns the subject, or the reason the token was rejected.
// Issuer and audience are not checked.
func Parse(token, secret string, now time.Time) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (interface{}, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return "", classify(err)
	}
	if claims.Subject == "" {
		return "", ErrMissingSubject
	}
	return claims.Subject, nil
}

// Validate collapses every failure of Parse into a single invalid outcome.
func Validate(token, secret string) (string, bool) {
	sub, err := Parse(token, secret, time.Now())
	if err != nil {
		return "", false
	}
	return sub, true
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrSignature
	default:
		return ErrMalformed
	}
}

// Codec binds a secret and a clock so callers don't pass them around.
type Codec struct {
	secret string
	now    func() time.Time
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: secret, now: time.Now}
}

// WithClock replaces the clock used for expiry checks.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	return &Codec{secret: c.secret, now: now}
}

func (c *Codec) Mint(subject string, expiresAt time.Time) (string, error) {
	if c == nil {
		return "", ErrMissingSecret
	}
	return Mint(subject, expiresAt, c.secret)
}

func (c *Codec) Parse(token string) (string, error) {
	if c == nil {
		return "", ErrMissingSecret
	}
	return Parse(token, c.secret, c.now())
}

func (c *Codec) Validate(token string) (string, bool) {
	sub, err := c.Parse(token)
	if err != nil {
		return "", false
	}
	return sub, true
}

// Configured reports whether a signing secret is present.
func (c *Codec) Configured() bool { return c != nil && c.secret != "" }
