package health

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taylordash/taylordash/internal/db"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestAggregator(t *testing.T) (*Aggregator, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	store := db.OpenForTesting(sqlDB)
	return NewAggregator(store, nil, "taylordash", nil), mock
}

func TestReady_HealthyStorageReturns200(t *testing.T) {
	agg, mock := newTestAggregator(t)
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health/ready", nil)

	agg.Ready(c)
	assert.Equal(t, 200, w.Code)
}

func TestReady_UnhealthyStorageReturns503(t *testing.T) {
	agg, mock := newTestAggregator(t)
	mock.ExpectExec("SELECT 1").WillReturnError(assert.AnError)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health/ready", nil)

	agg.Ready(c)
	assert.Equal(t, 503, w.Code)
}

func TestStack_NoBrokerOrPluginCounterIsUnhealthyOverall(t *testing.T) {
	agg, mock := newTestAggregator(t)
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/v1/health/stack", nil)

	agg.Stack(c)
	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"unhealthy"`, "a nil bus adapter must make the overall rollup unhealthy, not merely degraded")
}

func TestStack_PluginCounterErrorIsUnhealthy(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	store := db.OpenForTesting(sqlDB)
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))

	agg := NewAggregator(store, nil, "taylordash", func(ctx context.Context) (int, error) {
		return 0, assert.AnError
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/v1/health/stack", nil)

	agg.Stack(c)
	assert.Contains(t, w.Body.String(), `"status":"unhealthy"`)
}
