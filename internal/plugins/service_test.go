package plugins

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taylordash/taylordash/internal/db"
	apperrors "github.com/taylordash/taylordash/internal/errors"
	"github.com/taylordash/taylordash/internal/models"
)

func newTestPluginService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	store := db.OpenForTesting(sqlDB)
	return NewService(store, nil, nil, t.TempDir()), mock
}

var pluginTestColumns = []string{
	"id", "name", "version", "description", "author", "type", "repository_url", "install_path",
	"manifest", "permissions", "config", "status", "installed_at", "last_updated_at", "installation_id",
	"security_violations", "last_violation_at", "security_score", "created_at", "updated_at",
}

func pluginRow(status models.PluginStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(pluginTestColumns).AddRow(
		"sample-plugin", "Sample", "1.0.0", "", "taylordash", "data", "https://github.com/org/sample-plugin", "",
		[]byte(`{}`), []byte(`[]`), []byte(`{}`), string(status), nil, nil, nil,
		0, nil, 100, now, now)
}

func expectLockedPlugin(mock sqlmock.Sqlmock, status models.PluginStatus) {
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM plugins WHERE id=(.+) FOR UPDATE").
		WillReturnRows(pluginRow(status))
}

func TestDisable_FromInstalled(t *testing.T) {
	svc, mock := newTestPluginService(t)

	expectLockedPlugin(mock, models.PluginInstalled)
	mock.ExpectExec("INSERT INTO plugins").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, svc.Disable(context.Background(), "sample-plugin"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisable_RejectsWhenAlreadyDisabled(t *testing.T) {
	svc, mock := newTestPluginService(t)

	expectLockedPlugin(mock, models.PluginDisabled)
	mock.ExpectRollback()

	err := svc.Disable(context.Background(), "sample-plugin")
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindConflict, appErr.Kind)
}

func TestEnable_RejectsWhenNotDisabled(t *testing.T) {
	svc, mock := newTestPluginService(t)

	expectLockedPlugin(mock, models.PluginInstalled)
	mock.ExpectRollback()

	err := svc.Enable(context.Background(), "sample-plugin")
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindConflict, appErr.Kind)
}

func TestUninstall_FromInstalled(t *testing.T) {
	svc, mock := newTestPluginService(t)

	expectLockedPlugin(mock, models.PluginInstalled)
	mock.ExpectExec("INSERT INTO plugins").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT (.+) FROM plugins WHERE id=").
		WillReturnRows(pluginRow(models.PluginUninstalling))
	mock.ExpectExec("DELETE FROM plugins").WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, svc.Uninstall(context.Background(), "sample-plugin"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUninstall_RejectsDisabledPlugin(t *testing.T) {
	svc, mock := newTestPluginService(t)

	expectLockedPlugin(mock, models.PluginDisabled)
	mock.ExpectRollback()

	err := svc.Uninstall(context.Background(), "sample-plugin")
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindConflict, appErr.Kind, "disabled plugins must be enabled before uninstall")
}

func TestUninstall_RejectsMidInstall(t *testing.T) {
	svc, mock := newTestPluginService(t)

	expectLockedPlugin(mock, models.PluginInstalling)
	mock.ExpectRollback()

	err := svc.Uninstall(context.Background(), "sample-plugin")
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindConflict, appErr.Kind)
}

func TestAllowedHosts_FallsBackWhenTableUnreadable(t *testing.T) {
	svc, mock := newTestPluginService(t)

	mock.ExpectQuery("SELECT (.+) FROM repositories").WillReturnError(assert.AnError)

	assert.Equal(t, defaultAllowedHosts, svc.allowedHosts(context.Background()))
}

func TestAllowedHosts_DerivedFromEnabledRepositories(t *testing.T) {
	svc, mock := newTestPluginService(t)

	rows := sqlmock.NewRows([]string{"id", "name", "url", "enabled", "created_at"}).
		AddRow("corp", "Corp Git", "https://git.corp.example/", true, time.Now())
	mock.ExpectQuery("SELECT (.+) FROM repositories").WillReturnRows(rows)

	assert.Equal(t, []string{"git.corp.example"}, svc.allowedHosts(context.Background()))
}
