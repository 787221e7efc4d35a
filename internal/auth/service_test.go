package auth

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taylordash/taylordash/internal/db"
	apperrors "github.com/taylordash/taylordash/internal/errors"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	return NewService(db.OpenForTesting(sqlDB)), mock
}

var userColumns = []string{
	"id", "username", "password_hash", "role", "default_view",
	"single_view_mode", "is_active", "created_by", "created_at", "last_login_at", "metadata",
}

func TestLogin_UnknownUsernameIsGenericUnauthenticated(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT (.+) FROM users WHERE username").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectExec("INSERT INTO auth_audit_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	_, err := svc.Login(ctx, "ghost", "whatever", false, "127.0.0.1", "test-agent")
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindUnauthenticated, appErr.Kind)
}

func TestLogin_WrongPasswordIsGenericUnauthenticated(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE username").
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(
			"user-1", "admin", string(hash), "admin", nil, false, true, nil, time.Now(), nil, []byte("{}")))
	mock.ExpectExec("INSERT INTO auth_audit_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	_, err = svc.Login(ctx, "admin", "wrong-password", false, "127.0.0.1", "test-agent")
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindUnauthenticated, appErr.Kind)
}

func TestLogin_DeactivatedUserCannotAuthenticate(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	hash, _ := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	mock.ExpectQuery("SELECT (.+) FROM users WHERE username").
		WithArgs("retired").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(
			"user-2", "retired", string(hash), "viewer", nil, false, false, nil, time.Now(), nil, []byte("{}")))
	mock.ExpectExec("INSERT INTO auth_audit_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	_, err := svc.Login(ctx, "retired", "pw", false, "127.0.0.1", "test-agent")
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindUnauthenticated, appErr.Kind)
}

func TestLogin_Success_IssuesSessionAndAudits(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE username").
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(
			"user-1", "admin", string(hash), "admin", nil, false, true, nil, time.Now(), nil, []byte("{}")))
	mock.ExpectExec("INSERT INTO sessions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE users SET last_login_at").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO auth_audit_events").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM sessions").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	result, err := svc.Login(ctx, "admin", "correct-horse", false, "127.0.0.1", "test-agent")
	require.NoError(t, err)
	assert.NotEmpty(t, result.PlainToken)
	assert.Equal(t, "user-1", result.User.ID)
	assert.WithinDuration(t, time.Now().Add(8*time.Hour), result.Session.ExpiresAt, time.Minute)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidate_ExpiredSessionIsUnauthenticated(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	sessionColumns := []string{"id", "user_id", "token_hash", "created_at", "expires_at", "last_activity_at", "ip_address", "user_agent", "is_active", "remember_me"}
	past := time.Now().Add(-time.Hour)
	mock.ExpectQuery("SELECT (.+) FROM sessions WHERE token_hash").
		WillReturnRows(sqlmock.NewRows(sessionColumns).AddRow(
			"sess-1", "user-1", "hash", past.Add(-time.Hour), past, past, "127.0.0.1", "ua", true, false))

	_, _, err := svc.Validate(ctx, "plain-token")
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindUnauthenticated, appErr.Kind)
}

func TestValidate_MissingSessionIsUnauthenticated(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT (.+) FROM sessions WHERE token_hash").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "created_at", "expires_at", "last_activity_at", "ip_address", "user_agent", "is_active", "remember_me"}))

	_, _, err := svc.Validate(ctx, "nonexistent-token")
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindUnauthenticated, appErr.Kind)
}
