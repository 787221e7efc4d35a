package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taylordash/taylordash/internal/cache"
	"github.com/taylordash/taylordash/internal/db"
	"github.com/taylordash/taylordash/internal/models"
)

func newTestProjectHandler(t *testing.T) (*ProjectHandler, sqlmock.Sqlmock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	disabledCache, err := cache.NewCache(cache.Config{Enabled: false})
	require.NoError(t, err)

	return NewProjectHandler(db.OpenForTesting(sqlDB), disabledCache), mock
}

func postProject(t *testing.T, h *ProjectHandler, body string, actor *models.User) (*httptest.ResponseRecorder, models.Project) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/projects", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")
	if actor != nil {
		c.Set("auth.user", actor)
	}

	h.Create(c)

	var created models.Project
	if w.Code == http.StatusCreated {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	}
	return w, created
}

func TestCreateProject_DefaultsOwnerToAuthenticatedUser(t *testing.T) {
	h, mock := newTestProjectHandler(t)

	mock.ExpectExec("INSERT INTO projects").
		WithArgs(sqlmock.AnyArg(), "Alpha", "", "active", "user-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	w, created := postProject(t, h, `{"name":"Alpha"}`, &models.User{ID: "user-1", Username: "admin", Role: models.RoleAdmin})

	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, created.OwnerID)
	assert.Equal(t, "user-1", *created.OwnerID)
	assert.Equal(t, models.ProjectActive, created.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProject_ExplicitOwnerWins(t *testing.T) {
	h, mock := newTestProjectHandler(t)

	mock.ExpectExec("INSERT INTO projects").
		WithArgs(sqlmock.AnyArg(), "Beta", "", "active", "user-2", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	w, created := postProject(t, h, `{"name":"Beta","owner_id":"user-2"}`, &models.User{ID: "user-1"})

	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, created.OwnerID)
	assert.Equal(t, "user-2", *created.OwnerID)
}

func TestCreateProject_MissingNameIsValidationError(t *testing.T) {
	h, _ := newTestProjectHandler(t)

	w, _ := postProject(t, h, `{"description":"no name"}`, &models.User{ID: "user-1"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
