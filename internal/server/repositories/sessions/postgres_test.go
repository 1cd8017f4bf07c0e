package sessions

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionColumns = []string{
	"id", "user_id", "session_token", "refresh_token", "device_info", "ip_address",
	"user_agent", "expires_at", "is_active", "created_at",
}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func ptr(s string) *string { return &s }

const insertQ = `(?s)^INSERT\s+INTO\s+user_sessions\s*\(user_id,\s*session_token,\s*refresh_token,\s*device_info,\s*ip_address,\s*user_agent,\s*expires_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6,\s*\$7\)\s*RETURNING\s+id$`

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	exp := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(insertQ).
		WithArgs("u1", "tok", nil, "laptop", "10.0.0.1", nil, exp).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s-1"))

	id, err := repo.Create(context.Background(), &models.Session{
		UserID: "u1", SessionToken: "tok", DeviceInfo: ptr("laptop"), IPAddress: ptr("10.0.0.1"), ExpiresAt: exp,
	})
	require.NoError(t, err)
	assert.Equal(t, "s-1", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_TokenCollision(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQ).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "user_sessions_session_token_key"})

	_, err := repo.Create(context.Background(), &models.Session{UserID: "u1", SessionToken: "dup"})
	assert.ErrorIs(t, err, common.ErrAlreadyExists)
}

func TestFindByToken_Active(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	exp := now.Add(time.Hour)
	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+user_sessions\s+WHERE\s+session_token\s*=\s*\$1\s+AND\s+is_active\s*=\s*TRUE\s+AND\s+expires_at\s*>\s*\$2$`).
		WithArgs("tok", now).
		WillReturnRows(sqlmock.NewRows(sessionColumns).
			AddRow("s-1", "u1", "tok", "rt", nil, "10.0.0.1", "curl/8", exp, true, now))

	got, err := repo.FindByToken(context.Background(), "tok", now)
	require.NoError(t, err)
	assert.Equal(t, "s-1", got.ID)
	require.NotNil(t, got.RefreshToken)
	assert.Equal(t, "rt", *got.RefreshToken)
	assert.Nil(t, got.DeviceInfo)
	assert.True(t, got.Live(now))
}

func TestFindByToken_InactiveOrExpiredIsInvisible(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT.*session_token\s*=\s*\$1`).WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByToken(context.Background(), "old", time.Now())
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestFindByRefreshToken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`(?s)^SELECT\s+id,.*WHERE\s+refresh_token\s*=\s*\$1\s+AND\s+is_active\s*=\s*TRUE\s+AND\s+expires_at\s*>\s*\$2$`).
		WithArgs("rt", now).
		WillReturnRows(sqlmock.NewRows(sessionColumns).
			AddRow("s-1", "u1", "tok", "rt", nil, nil, nil, now.Add(time.Hour), true, now))

	got, err := repo.FindByRefreshToken(context.Background(), "rt", now)
	require.NoError(t, err)
	assert.Equal(t, "tok", got.SessionToken)
}

func TestDeactivate_Idempotent(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+user_sessions\s+SET\s+is_active\s*=\s*FALSE\s+WHERE\s+session_token\s*=\s*\$1\s+AND\s+is_active\s*=\s*TRUE$`
	mock.ExpectExec(q).WithArgs("tok").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("tok").WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.Deactivate(context.Background(), "tok")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.Deactivate(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestDeactivateAllForUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE\s+user_sessions\s+SET\s+is_active\s*=\s*FALSE\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+is_active\s*=\s*TRUE$`).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeactivateAllForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestDeleteExpired(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+user_sessions\s+WHERE\s+expires_at\s*<\s*\$1$`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestDeleteExpired_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^DELETE`).WillReturnError(sql.ErrConnDone)

	_, err := repo.DeleteExpired(context.Background(), time.Now())
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
}
