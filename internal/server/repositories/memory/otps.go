package memory

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
)

type otpRow struct {
	models.OtpCode
	seq int64
}

// OtpsRepository implements otps.Repository.
type OtpsRepository struct {
	s *Store
}

func (r *OtpsRepository) Create(_ context.Context, otp *models.OtpCode) (*models.OtpCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, seq := r.s.next()
	otp.ID = id
	otp.CreatedAt = r.s.now()
	otp.Used = false
	r.s.otps[id] = &otpRow{OtpCode: *otp, seq: seq}
	return otp, nil
}

func (r *OtpsRepository) FindValid(_ context.Context, email, code string, purpose models.OtpPurpose, now time.Time) (*models.OtpCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row := r.latestUnused(email, code, purpose)
	if row == nil || !row.ExpiresAt.After(now) {
		return nil, common.ErrorNotFound
	}
	c := row.OtpCode
	return &c, nil
}

func (r *OtpsRepository) FindLatestUnused(_ context.Context, email, code string, purpose models.OtpPurpose) (*models.OtpCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row := r.latestUnused(email, code, purpose)
	if row == nil {
		return nil, common.ErrorNotFound
	}
	c := row.OtpCode
	return &c, nil
}

func (r *OtpsRepository) MarkUsed(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row, ok := r.s.otps[id]
	if !ok || row.Used {
		return false, nil
	}
	row.Used = true
	return true, nil
}

func (r *OtpsRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, row := range r.s.otps {
		if row.ExpiresAt.Before(now) {
			delete(r.s.otps, id)
			n++
		}
	}
	return n, nil
}

// latestUnused must be called with mu held.
func (r *OtpsRepository) latestUnused(email, code string, purpose models.OtpPurpose) *otpRow {
	var latest *otpRow
	for _, row := range r.s.otps {
		if row.Used || row.Email != email || row.Code != code || row.Purpose != purpose {
			continue
		}
		if latest == nil || row.seq > latest.seq {
			latest = row
		}
	}
	return latest
}
