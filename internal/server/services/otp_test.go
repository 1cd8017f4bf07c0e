package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOTPService_IssueShape(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	otp, err := e.otps.Issue(ctx, "a@x.com", models.PurposeEmailVerify, 10*time.Minute)
	require.NoError(t, err)

	assert.NotEmpty(t, otp.ID)
	assert.Regexp(t, regexp.MustCompile(`^[0-9]{6}$`), otp.Code)
	assert.Equal(t, e.clock.Now().Add(10*time.Minute), otp.ExpiresAt)
	assert.False(t, otp.Used)
}

func TestOTPService_VerifyConsumeVerify_NotFound(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	otp, err := e.otps.Issue(ctx, "a@x.com", models.PurposeEmailVerify, e.otps.TTL())
	require.NoError(t, err)

	id, err := e.otps.Verify(ctx, "a@x.com", otp.Code, models.PurposeEmailVerify)
	require.NoError(t, err)
	assert.Equal(t, otp.ID, id)

	ok, err := e.otps.Consume(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = e.otps.Verify(ctx, "a@x.com", otp.Code, models.PurposeEmailVerify)
	assert.ErrorIs(t, err, common.ErrOtpNotFound)
	assert.NotErrorIs(t, err, common.ErrOtpExpired)
}

func TestOTPService_ConsumeIsOneShot(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	otp, err := e.otps.Issue(ctx, "a@x.com", models.PurposeEmailVerify, e.otps.TTL())
	require.NoError(t, err)

	first, err := e.otps.Consume(ctx, otp.ID)
	require.NoError(t, err)
	second, err := e.otps.Consume(ctx, otp.ID)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
}

func TestOTPService_WrongCodeOrPurpose(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	otp, err := e.otps.Issue(ctx, "a@x.com", models.PurposeEmailVerify, e.otps.TTL())
	require.NoError(t, err)

	wrong := "000000"
	if otp.Code == wrong {
		wrong = "111111"
	}
	_, err = e.otps.Verify(ctx, "a@x.com", wrong, models.PurposeEmailVerify)
	assert.ErrorIs(t, err, common.ErrOtpNotFound)

	_, err = e.otps.Verify(ctx, "a@x.com", otp.Code, models.PurposePasswordReset)
	assert.ErrorIs(t, err, common.ErrOtpNotFound)

	_, err = e.otps.Verify(ctx, "b@x.com", otp.Code, models.PurposeEmailVerify)
	assert.ErrorIs(t, err, common.ErrOtpNotFound)
}

func TestOTPService_ExpiresBetweenLookups(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	otp, err := e.otps.Issue(ctx, "a@x.com", models.PurposePasswordReset, time.Minute)
	require.NoError(t, err)

	repo := e.store.Otps()
	row, err := repo.FindValid(ctx, "a@x.com", otp.Code, models.PurposePasswordReset, e.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, otp.ID, row.ID)

	e.clock.Advance(time.Minute)

	_, err = repo.FindValid(ctx, "a@x.com", otp.Code, models.PurposePasswordReset, e.clock.Now())
	assert.ErrorIs(t, err, common.ErrorNotFound)

	latest, err := repo.FindLatestUnused(ctx, "a@x.com", otp.Code, models.PurposePasswordReset)
	require.NoError(t, err)
	assert.False(t, latest.Used)

	_, err = e.otps.Verify(ctx, "a@x.com", otp.Code, models.PurposePasswordReset)
	assert.ErrorIs(t, err, common.ErrOtpExpired)
}

func TestOTPService_OutstandingCodesCoexist(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	first, err := e.otps.Issue(ctx, "a@x.com", models.PurposeEmailVerify, e.otps.TTL())
	require.NoError(t, err)
	second, err := e.otps.Issue(ctx, "a@x.com", models.PurposeEmailVerify, e.otps.TTL())
	require.NoError(t, err)

	_, err = e.otps.Verify(ctx, "a@x.com", first.Code, models.PurposeEmailVerify)
	assert.NoError(t, err)
	_, err = e.otps.Verify(ctx, "a@x.com", second.Code, models.PurposeEmailVerify)
	assert.NoError(t, err)
}

func TestOTPService_SweepExpired(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := e.otps.Issue(ctx, "a@x.com", models.PurposeEmailVerify, time.Minute)
	require.NoError(t, err)
	_, err = e.otps.Issue(ctx, "b@x.com", models.PurposeEmailVerify, time.Hour)
	require.NoError(t, err)

	e.clock.Advance(2 * time.Minute)

	n, err := e.otps.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = e.otps.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
