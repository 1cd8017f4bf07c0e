package otps

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db      dbx.DBTX
	timeout time.Duration
	logger  logging.Logger
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX, opts ...dbx.Option) *PostgresRepository {
	o := dbx.NewOptions(opts...)
	return &PostgresRepository{db: db, timeout: o.Timeout, logger: o.Logger}
}

func (r *PostgresRepository) Create(ctx context.Context, otp *models.OtpCode) (*models.OtpCode, error) {
	ctx, cancel := dbx.Bound(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO otp_codes (email, otp, purpose, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, otp.Email, otp.Code, string(otp.Purpose), otp.ExpiresAt).
		Scan(&otp.ID, &otp.CreatedAt)
	if err != nil {
		return nil, dbx.Fail(ctx, r.logger, "otps.Create", err)
	}
	otp.Used = false
	return otp, nil
}

func (r *PostgresRepository) FindValid(ctx context.Context, email, code string, purpose models.OtpPurpose, now time.Time) (*models.OtpCode, error) {
	query := `
		SELECT id, email, otp, purpose, expires_at, used, created_at
		FROM (
			SELECT id, email, otp, purpose, expires_at, used, created_at
			FROM otp_codes
			WHERE email = $1 AND otp = $2 AND purpose = $3 AND used = FALSE
			ORDER BY created_at DESC
			LIMIT 1
		) latest
		WHERE expires_at > $4
	`
	return r.findOne(ctx, "otps.FindValid", query, email, code, string(purpose), now)
}

func (r *PostgresRepository) FindLatestUnused(ctx context.Context, email, code string, purpose models.OtpPurpose) (*models.OtpCode, error) {
	query := `
		SELECT id, email, otp, purpose, expires_at, used, created_at
		FROM otp_codes
		WHERE email = $1 AND otp = $2 AND purpose = $3 AND used = FALSE
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.findOne(ctx, "otps.FindLatestUnused", query, email, code, string(purpose))
}

func (r *PostgresRepository) MarkUsed(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE otp_codes SET used = TRUE
		WHERE id = $1 AND used = FALSE
	`
	n, err := r.exec(ctx, "otps.MarkUsed", query, id)
	return n > 0, err
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM otp_codes
		WHERE expires_at < $1
	`
	return r.exec(ctx, "otps.DeleteExpired", query, now)
}

func (r *PostgresRepository) findOne(ctx context.Context, op, query string, args ...any) (*models.OtpCode, error) {
	ctx, cancel := dbx.Bound(ctx, r.timeout)
	defer cancel()

	otp := &models.OtpCode{}
	var purpose string
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&otp.ID, &otp.Email, &otp.Code, &purpose, &otp.ExpiresAt, &otp.Used, &otp.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, dbx.Fail(ctx, r.logger, op, err)
	}
	otp.Purpose = models.OtpPurpose(purpose)
	return otp, nil
}

func (r *PostgresRepository) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	ctx, cancel := dbx.Bound(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, dbx.Fail(ctx, r.logger, op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbx.Fail(ctx, r.logger, op, err)
	}
	return n, nil
}
