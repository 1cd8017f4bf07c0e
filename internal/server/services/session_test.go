package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionService_NewSessionToken(t *testing.T) {
	e := newTestEnv(t, nil)

	a, err := e.sessions.NewSessionToken()
	require.NoError(t, err)
	b, err := e.sessions.NewSessionToken()
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}

func TestSessionService_ConcurrentSessionsOfOneUser(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	expires := e.clock.Now().Add(time.Hour)

	tokens := make([]string, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := e.sessions.NewSessionToken()
			if err != nil {
				errs[i] = err
				return
			}
			tokens[i] = tok
			_, errs[i] = e.sessions.Create(ctx, "u1", tok, expires, models.SessionOptions{})
		}(i)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	for _, tok := range tokens {
		s, err := e.sessions.FindActive(ctx, tok)
		require.NoError(t, err)
		assert.Equal(t, "u1", s.UserID)
	}

	require.NoError(t, e.sessions.Deactivate(ctx, tokens[0]))

	_, err := e.sessions.FindActive(ctx, tokens[0])
	assert.ErrorIs(t, err, common.ErrorNotFound)
	_, err = e.sessions.FindActive(ctx, tokens[1])
	assert.NoError(t, err)
}

func TestSessionService_DeactivateIsIdempotent(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := e.sessions.Create(ctx, "u1", "tok", e.clock.Now().Add(time.Hour), models.SessionOptions{})
	require.NoError(t, err)

	assert.NoError(t, e.sessions.Deactivate(ctx, "tok"))
	assert.NoError(t, e.sessions.Deactivate(ctx, "tok"))
	assert.NoError(t, e.sessions.Deactivate(ctx, "never-existed"))
}

func TestSessionService_DeactivateAllForUser(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	expires := e.clock.Now().Add(time.Hour)

	for _, tok := range []string{"u1-a", "u1-b"} {
		_, err := e.sessions.Create(ctx, "u1", tok, expires, models.SessionOptions{})
		require.NoError(t, err)
	}
	_, err := e.sessions.Create(ctx, "u2", "u2-a", expires, models.SessionOptions{})
	require.NoError(t, err)

	n, err := e.sessions.DeactivateAllForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, tok := range []string{"u1-a", "u1-b"} {
		_, err := e.sessions.FindActive(ctx, tok)
		assert.ErrorIs(t, err, common.ErrorNotFound, tok)
	}
	s, err := e.sessions.FindActive(ctx, "u2-a")
	require.NoError(t, err)
	assert.Equal(t, "u2", s.UserID)
}

func TestSessionService_TokenCollisionFails(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	expires := e.clock.Now().Add(time.Hour)

	_, err := e.sessions.Create(ctx, "u1", "same", expires, models.SessionOptions{})
	require.NoError(t, err)

	_, err = e.sessions.Create(ctx, "u2", "same", expires, models.SessionOptions{})
	assert.ErrorIs(t, err, common.ErrAlreadyExists)

	s, err := e.sessions.FindActive(ctx, "same")
	require.NoError(t, err)
	assert.Equal(t, "u1", s.UserID, "existing session must not be overwritten")
}

func TestSessionService_ExpiredIsInvisibleThenSwept(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	ip := "10.0.0.1"
	_, err := e.sessions.Create(ctx, "u1", "short", e.clock.Now().Add(time.Minute), models.SessionOptions{IPAddress: &ip})
	require.NoError(t, err)
	_, err = e.sessions.Create(ctx, "u1", "long", e.clock.Now().Add(time.Hour), models.SessionOptions{})
	require.NoError(t, err)

	s, err := e.sessions.FindActive(ctx, "short")
	require.NoError(t, err)
	require.NotNil(t, s.IPAddress)
	assert.Equal(t, ip, *s.IPAddress)

	e.clock.Advance(2 * time.Minute)

	_, err = e.sessions.FindActive(ctx, "short")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	n, err := e.sessions.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = e.sessions.FindActive(ctx, "long")
	assert.NoError(t, err)
}
