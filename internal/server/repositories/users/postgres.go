package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/google/uuid"
)

const selectColumns = `id, username, email, password_hash, face_embedding, role,
		        full_name, phone, profile_image, is_verified, email_verified,
		        created_at, updated_at, last_login`

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
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

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	ctx, cancel := dbx.Bound(ctx, r.timeout)
	defer cancel()

	query :=
		`INSERT INTO users (username, email, password_hash, role, full_name, phone, profile_image)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.Username, user.Email, user.PasswordHash, string(user.Role),
		user.FullName, user.Phone, user.ProfileImage,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		return nil, dbx.Fail(ctx, r.logger, "users.Create", err)
	}

	return user, nil
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "users.FindByEmail", `SELECT `+selectColumns+` FROM users WHERE email = $1`, email)
}

func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, "users.FindByUsername", `SELECT `+selectColumns+` FROM users WHERE username = $1`, username)
}

// FindByID treats an id that is not a UUID as unknown; the column type would
// otherwise reject it as a statement error.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrorNotFound
	}
	return r.findOne(ctx, "users.FindByID", `SELECT `+selectColumns+` FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) (bool, error) {
	query :=
		`UPDATE users SET password_hash = $1, updated_at = NOW()
		 WHERE id = $2
		 `
	return r.exec(ctx, "users.UpdatePassword", query, passwordHash, userID)
}

func (r *PostgresRepository) UpdatePasswordByEmail(ctx context.Context, email, passwordHash string) (bool, error) {
	query :=
		`UPDATE users SET password_hash = $1, updated_at = NOW()
		 WHERE email = $2
		 `
	return r.exec(ctx, "users.UpdatePasswordByEmail", query, passwordHash, email)
}

func (r *PostgresRepository) UpdateFaceEmbedding(ctx context.Context, userID string, embedding []float32) (bool, error) {
	raw, err := json.Marshal(embedding)
	if err != nil {
		return false, fmt.Errorf("encode embedding: %w", err)
	}
	query :=
		`UPDATE users SET face_embedding = $1, updated_at = NOW()
		 WHERE id = $2
		 `
	return r.exec(ctx, "users.UpdateFaceEmbedding", query, raw, userID)
}

func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	query :=
		`UPDATE users SET last_login = $1
		 WHERE id = $2
		 `
	_, err := r.exec(ctx, "users.UpdateLastLogin", query, at, userID)
	return err
}

func (r *PostgresRepository) VerifyEmail(ctx context.Context, email string) (bool, error) {
	query :=
		`UPDATE users SET email_verified = TRUE, is_verified = TRUE, updated_at = NOW()
		 WHERE email = $1
		 `
	return r.exec(ctx, "users.VerifyEmail", query, email)
}

func (r *PostgresRepository) findOne(ctx context.Context, op, query string, arg any) (*models.User, error) {
	ctx, cancel := dbx.Bound(ctx, r.timeout)
	defer cancel()

	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, dbx.Fail(ctx, r.logger, op, err)
	}
	return user, nil
}

func (r *PostgresRepository) exec(ctx context.Context, op, query string, args ...any) (bool, error) {
	ctx, cancel := dbx.Bound(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, dbx.Fail(ctx, r.logger, op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbx.Fail(ctx, r.logger, op, err)
	}
	return n > 0, nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u            models.User
		role         string
		face         []byte
		fullName     sql.NullString
		phone        sql.NullString
		profileImage sql.NullString
		lastLogin    sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &face, &role,
		&fullName, &phone, &profileImage, &u.IsVerified, &u.EmailVerified,
		&u.CreatedAt, &u.UpdatedAt, &lastLogin)
	if err != nil {
		return nil, err
	}

	u.Role = models.Role(role)
	u.FullName = nullString(fullName)
	u.Phone = nullString(phone)
	u.ProfileImage = nullString(profileImage)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	if len(face) > 0 {
		if err := json.Unmarshal(face, &u.FaceEmbedding); err != nil {
			return nil, fmt.Errorf("decode face embedding: %w", err)
		}
	}
	return &u, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
