// Package auth issues and verifies the HS256 access tokens shared with
// downstream services, parses bearer headers and applies the role gate.
// Nothing here touches the store: any service holding the secret can
// validate a token on its own.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the identity snapshot signed into every token. It is not a live
// view: a role change does not affect tokens already issued.
type Claims struct {
	UserID   string      `json:"user_id"`
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Role     models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Codec signs and verifies tokens with a process-wide secret fixed at startup.
type Codec struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// CodecOption customizes a Codec.
type CodecOption func(*Codec)

// WithIssuer sets the iss claim and requires it on verification.
func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) { c.issuer = issuer }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) { c.now = now }
}

// NewCodec returns a Codec using ttl as the default token lifetime.
func NewCodec(secret []byte, ttl time.Duration, opts ...CodecOption) *Codec {
	c := &Codec{secret: secret, ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// TTL returns the default token lifetime.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue signs a token for user with the default lifetime.
func (c *Codec) Issue(user *models.User) (string, error) {
	return c.IssueWithTTL(user, c.ttl)
}

// IssueWithTTL signs a token for user valid for ttl from now.
func (c *Codec) IssueWithTTL(user *models.User, ttl time.Duration) (string, error) {
	now := c.now()
	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, then that now is before exp. It returns
// common.ErrTokenExpired for an authentic but expired token and
// common.ErrInvalidToken for anything else that fails.
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, common.ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}
