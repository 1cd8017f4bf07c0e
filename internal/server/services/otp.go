// Package services contains server-side business logic. OTPService and
// SessionService manage passcodes and durable sessions; AuthService
// composes them into the login, passcode and face flows.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/config"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
)

// OTPService issues and consumes short-lived numeric passcodes scoped by
// (email, purpose).
type OTPService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	length      int
	ttl         time.Duration
	now         func() time.Time
	logger      logging.Logger
}

// NewOTPService constructs an OTPService using repositories and server config.
func NewOTPService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *OTPService {
	return &OTPService{
		db:          db,
		repomanager: m,
		length:      cfg.OTPLength,
		ttl:         cfg.OTPTTL,
		now:         time.Now,
		logger:      logger.With("module", "otp_service"),
	}
}

// TTL returns the configured passcode lifetime.
func (s *OTPService) TTL() time.Duration { return s.ttl }

// Issue persists a new random passcode valid for ttl. Earlier unused codes
// for the same (email, purpose) are left alone; lookups only see the latest.
func (s *OTPService) Issue(ctx context.Context, email string, purpose models.OtpPurpose, ttl time.Duration) (*models.OtpCode, error) {
	code, err := common.MakeRandDigits(s.length)
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}

	otp := &models.OtpCode{
		Email:     email,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: s.now().Add(ttl),
	}
	created, err := s.repomanager.Otps(s.db).Create(ctx, otp)
	if err != nil {
		return nil, fmt.Errorf("error creating otp: %w", err)
	}
	return created, nil
}

// Verify returns the ID of the latest unused passcode matching all three
// fields. It fails with common.ErrOtpNotFound when there is none and with
// common.ErrOtpExpired when it exists but expired. The caller must Consume
// the returned ID.
func (s *OTPService) Verify(ctx context.Context, email, code string, purpose models.OtpPurpose) (string, error) {
	repo := s.repomanager.Otps(s.db)

	otp, err := repo.FindValid(ctx, email, code, purpose, s.now())
	if err == nil {
		return otp.ID, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return "", fmt.Errorf("error searching otp: %w", err)
	}

	if _, err := repo.FindLatestUnused(ctx, email, code, purpose); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrOtpNotFound
		}
		return "", fmt.Errorf("error searching otp: %w", err)
	}
	return "", common.ErrOtpExpired
}

// Consume marks the passcode used. It reports false when another caller
// consumed it first.
func (s *OTPService) Consume(ctx context.Context, otpID string) (bool, error) {
	ok, err := s.repomanager.Otps(s.db).MarkUsed(ctx, otpID)
	if err != nil {
		return false, fmt.Errorf("error consuming otp: %w", err)
	}
	return ok, nil
}

// SweepExpired deletes every passcode that expired before now.
func (s *OTPService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repomanager.Otps(s.db).DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("error sweeping otps: %w", err)
	}
	return n, nil
}
