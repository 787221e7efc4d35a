package plugins

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadManifest_YAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(`
id: sample-plugin
name: Sample Plugin
version: 1.0.0
author: taylordash
type: data
permissions:
  - read:projects
  - network:http
health_path: /healthz
`), 0o644))

	m, err := LoadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, "sample-plugin", m.ID)
	assert.Equal(t, []string{"read:projects", "network:http"}, m.Permissions)
	assert.Equal(t, "/healthz", m.HealthPath)
}

func TestLoadManifest_AllowedOrigins(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(`
id: sample-plugin
name: Sample Plugin
version: 1.0.0
author: taylordash
type: data
allowed_origins:
  - api.example.com
`), 0o644))

	m, err := LoadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"api.example.com"}, m.AllowedOrigins)
}

func TestLoadManifest_JSONFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(`{
		"id": "json-plugin", "name": "JSON Plugin", "version": "2.0.0",
		"author": "taylordash", "type": "integration", "permissions": ["read:logs"]
	}`), 0o644))

	m, err := LoadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, "json-plugin", m.ID)
	assert.Equal(t, "integration", m.Type)
}

func TestLoadManifest_MissingRequiredFieldsRejected(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(`
name: Incomplete Plugin
`), 0o644))

	_, err := LoadManifest(dir)
	require.Error(t, err)
}

func TestLoadManifest_NoManifestFile(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadManifest(dir)
	require.Error(t, err)
}

func TestIntersectPermissions(t *testing.T) {
	granted := intersectPermissions(
		[]string{"read:projects", "network:http", "read:logs"},
		[]string{"read:projects", "network:http"},
	)
	assert.ElementsMatch(t, []string{"read:projects", "network:http"}, granted)
}

func TestPluginIDFromURL(t *testing.T) {
	assert.Equal(t, "myplugin", pluginIDFromURL("https://github.com/org/MyPlugin.git"))
	assert.Equal(t, "myplugin", pluginIDFromURL("https://github.com/org/myplugin/"))
}

func TestValidateRepositoryURL_AllowsListedHosts(t *testing.T) {
	assert.NoError(t, validateRepositoryURL("https://github.com/org/repo.git", defaultAllowedHosts))
	assert.NoError(t, validateRepositoryURL("https://gitlab.com/org/repo.git", defaultAllowedHosts))
	assert.NoError(t, validateRepositoryURL("https://git.corp.example/org/repo.git", []string{"git.corp.example"}))
}

func TestValidateRepositoryURL_RejectsUnlistedHost(t *testing.T) {
	err := validateRepositoryURL("https://evil.example.com/org/repo.git", defaultAllowedHosts)
	assert.Error(t, err)
}

func TestValidateRepositoryURL_RejectsNonHTTPS(t *testing.T) {
	err := validateRepositoryURL("git://github.com/org/repo.git", defaultAllowedHosts)
	assert.Error(t, err)
}
