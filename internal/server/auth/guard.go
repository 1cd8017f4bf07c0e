package auth

import (
	"context"
	"slices"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
)

// Authorize runs the role gate over a raw Authorization header value.
//
//   - no bearer token: common.ErrMissingToken
//   - bad or expired token: the Verify error
//   - role not in allowed: common.ErrInsufficientRole
//
// An empty allowed list admits any role.
func (c *Codec) Authorize(header string, allowed ...models.Role) (*Claims, error) {
	token, ok := ExtractFromHeader(header)
	if !ok {
		return nil, common.ErrMissingToken
	}
	claims, err := c.Verify(token)
	if err != nil {
		return nil, err
	}
	if len(allowed) > 0 && !slices.Contains(allowed, claims.Role) {
		return nil, common.ErrInsufficientRole
	}
	return claims, nil
}

type ctxKey string

const claimsKey ctxKey = "claims"

// WithClaims stores verified claims in ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// ClaimsFromContext returns claims stored by WithClaims.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok && c != nil
}
