package authctl

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/config"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/memory"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func stubPasswords(t *testing.T, answers ...string) {
	t.Helper()
	old := readPassword
	t.Cleanup(func() { readPassword = old })
	i := 0
	readPassword = func(int) ([]byte, error) {
		if i >= len(answers) {
			return nil, errors.New("no more input")
		}
		i++
		return []byte(answers[i-1]), nil
	}
}

func newTestApp(t *testing.T, store *memory.Store, input string) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.StoreDriver = config.DriverMemory
	cfg.BcryptCost = bcrypt.MinCost

	var out bytes.Buffer
	app := NewApp(cfg, logging.Nop{}, strings.NewReader(input), &out)
	app.openStore = func(context.Context, *config.Config, logging.Logger) (*sql.DB, repomanager.RepositoryManager, error) {
		return nil, repomanager.NewMemoryRepositoryManager(store), nil
	}
	return app, &out
}

func TestRun_Usage(t *testing.T) {
	app, out := newTestApp(t, memory.New(), "")

	err := app.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUsage)
	assert.Contains(t, out.String(), "usage: authctl")

	err = app.Run(context.Background(), []string{"frobnicate"})
	assert.ErrorIs(t, err, ErrUsage)

	assert.NoError(t, app.Run(context.Background(), []string{"help"}))
}

func TestCreateUser_FromFlags(t *testing.T) {
	store := memory.New()
	app, out := newTestApp(t, store, "")
	stubPasswords(t, "correct-horse", "correct-horse")

	err := app.Run(context.Background(), []string{"create-user", "-username", "root", "-email", "root@example.com", "-role", "admin"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Created user root")

	u, err := store.Users().FindByUsername(context.Background(), "root")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)
	assert.True(t, u.EmailVerified)
	assert.NotEqual(t, "correct-horse", u.PasswordHash)
}

func TestCreateUser_PromptsForMissingFields(t *testing.T) {
	store := memory.New()
	app, _ := newTestApp(t, store, "alice\nalice@example.com\n")
	stubPasswords(t, "correct-horse", "correct-horse")

	require.NoError(t, app.Run(context.Background(), []string{"create-user"}))

	u, err := store.Users().FindByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, models.DefaultRole, u.Role)
}

func TestCreateUser_PasswordMismatch(t *testing.T) {
	store := memory.New()
	app, _ := newTestApp(t, store, "")
	stubPasswords(t, "correct-horse", "battery-staple")

	err := app.Run(context.Background(), []string{"create-user", "-username", "bob", "-email", "bob@example.com"})
	assert.EqualError(t, err, "passwords do not match")

	_, err = store.Users().FindByUsername(context.Background(), "bob")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestCreateUser_Duplicate(t *testing.T) {
	store := memory.New()
	app, _ := newTestApp(t, store, "")
	stubPasswords(t, "correct-horse", "correct-horse", "correct-horse", "correct-horse")

	args := []string{"create-user", "-username", "carol", "-email", "carol@example.com"}
	require.NoError(t, app.Run(context.Background(), args))
	assert.ErrorIs(t, app.Run(context.Background(), args), common.ErrDuplicateUser)
}

func TestSweep(t *testing.T) {
	now := time.Now()
	store := memory.NewWithClock(func() time.Time { return now })
	ctx := context.Background()

	_, err := store.Otps().Create(ctx, &models.OtpCode{
		Email:     "a@example.com",
		Code:      "123456",
		Purpose:   models.PurposeEmailVerify,
		ExpiresAt: now.Add(-time.Minute),
	})
	require.NoError(t, err)

	app, out := newTestApp(t, store, "")
	require.NoError(t, app.Run(ctx, []string{"sweep"}))
	assert.Contains(t, out.String(), "Deleted 1 expired passcodes and 0 expired sessions")
}

func TestMigrate_MemoryIsNoop(t *testing.T) {
	app, out := newTestApp(t, memory.New(), "")
	require.NoError(t, app.Run(context.Background(), []string{"migrate"}))
	assert.Contains(t, out.String(), "nothing to migrate")
}

func TestGetNewPassword_WipesBuffers(t *testing.T) {
	var handed [][]byte
	old := readPassword
	t.Cleanup(func() { readPassword = old })
	readPassword = func(int) ([]byte, error) {
		b := []byte("correct-horse")
		handed = append(handed, b)
		return b, nil
	}

	var out bytes.Buffer
	pw, err := GetNewPassword(&out)
	require.NoError(t, err)
	assert.Equal(t, "correct-horse", pw)

	require.Len(t, handed, 2)
	for _, b := range handed {
		assert.Equal(t, make([]byte, len("correct-horse")), b)
	}
}

func TestGetNewPassword_WipesOnMismatch(t *testing.T) {
	var handed [][]byte
	old := readPassword
	t.Cleanup(func() { readPassword = old })
	answers := []string{"correct-horse", "battery-staple"}
	readPassword = func(int) ([]byte, error) {
		b := []byte(answers[len(handed)])
		handed = append(handed, b)
		return b, nil
	}

	_, err := GetNewPassword(io.Discard)
	assert.EqualError(t, err, "passwords do not match")
	for _, b := range handed {
		assert.Equal(t, make([]byte, len(b)), b)
	}
}
