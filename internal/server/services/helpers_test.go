package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/authcore/internal/cryptox"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/auth"
	"github.com/dmitrijs2005/authcore/internal/server/config"
	"github.com/dmitrijs2005/authcore/internal/server/metrics"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/notify"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/memory"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- helpers ---

var testSecret = []byte("test-secret")

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.OTPMessage
	err  error
}

func (n *recordingNotifier) SendOTP(ctx context.Context, msg notify.OTPMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *recordingNotifier) last(t *testing.T) notify.OTPMessage {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.msgs, "no passcode delivered")
	return n.msgs[len(n.msgs)-1]
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}

type fakeLimiter struct {
	deny bool
	err  error
	keys []string
}

func (f *fakeLimiter) Allow(ctx context.Context, key string) (bool, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return false, f.err
	}
	return !f.deny, nil
}

type testEnv struct {
	cfg      *config.Config
	clock    *testClock
	store    *memory.Store
	rm       repomanager.RepositoryManager
	codec    *auth.Codec
	hasher   *cryptox.Hasher
	notifier *recordingNotifier
	limiter  *fakeLimiter
	metrics  *metrics.Metrics
	otps     *OTPService
	sessions *SessionService
	auth     *AuthService
}

type envOption func(*testEnv)

func withDB(db *sql.DB) envOption {
	return func(e *testEnv) {
		e.otps.db = db
		e.sessions.db = db
		e.auth.db = db
	}
}

func withRepoManager(rm repomanager.RepositoryManager) envOption {
	return func(e *testEnv) {
		e.rm = rm
		e.otps.repomanager = rm
		e.sessions.repomanager = rm
		e.auth.repomanager = rm
	}
}

func newTestEnv(t *testing.T, mutate func(*config.Config), opts ...envOption) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.BcryptCost = bcrypt.MinCost
	if mutate != nil {
		mutate(cfg)
	}

	clock := newTestClock()
	store := memory.NewWithClock(clock.Now)
	rm := repomanager.NewMemoryRepositoryManager(store)

	hasher, err := cryptox.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	e := &testEnv{
		cfg:      cfg,
		clock:    clock,
		store:    store,
		rm:       rm,
		codec:    auth.NewCodec(testSecret, cfg.TokenTTL, auth.WithClock(clock.Now)),
		hasher:   hasher,
		notifier: &recordingNotifier{},
		limiter:  &fakeLimiter{},
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	e.otps = NewOTPService(nil, rm, cfg, logging.Nop{})
	e.otps.now = clock.Now
	e.sessions = NewSessionService(nil, rm, cfg, logging.Nop{})
	e.sessions.now = clock.Now
	e.auth = NewAuthService(nil, rm, cfg, AuthDeps{
		Codec:    e.codec,
		OTPs:     e.otps,
		Sessions: e.sessions,
		Hasher:   hasher,
		Notifier: e.notifier,
		Limiter:  e.limiter,
		Metrics:  e.metrics,
		Logger:   logging.Nop{},
	})
	e.auth.now = clock.Now

	for _, o := range opts {
		o(e)
	}
	return e
}

// seedUser stores a user with password directly in the store.
func (e *testEnv) seedUser(t *testing.T, username, email, password string, role models.Role) *models.User {
	t.Helper()
	hash, err := e.hasher.Hash(password)
	require.NoError(t, err)
	u, err := e.store.Users().Create(context.Background(), &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	})
	require.NoError(t, err)
	return u
}
