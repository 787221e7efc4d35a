package plugins

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequiredProxyPermission_ResourceAndMethod(t *testing.T) {
	assert.Equal(t, "read:projects", requiredProxyPermission(http.MethodGet, "/projects/123"))
	assert.Equal(t, "write:projects", requiredProxyPermission(http.MethodPost, "/projects"))
	assert.Equal(t, "write:logs", requiredProxyPermission(http.MethodDelete, "/logs"))
	assert.Equal(t, "read:logs", requiredProxyPermission(http.MethodHead, "/logs/recent"))
}

func TestRequiredProxyPermission_RootNeedsNoGrant(t *testing.T) {
	assert.Equal(t, "", requiredProxyPermission(http.MethodGet, "/"))
	assert.Equal(t, "", requiredProxyPermission(http.MethodGet, ""))
}

func TestHasPermission(t *testing.T) {
	granted := []string{"read:projects", "network:http"}
	assert.True(t, hasPermission(granted, "read:projects"))
	assert.False(t, hasPermission(granted, "write:projects"))
	assert.False(t, hasPermission(nil, "read:projects"))
}
