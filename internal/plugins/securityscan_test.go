package plugins

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taylordash/taylordash/internal/models"
)

func writeBundle(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestScan_DetectsEvalUsage(t *testing.T) {
	dir := writeBundle(t, map[string]string{
		"index.js": "function run(input) {\n  return eval(input);\n}\n",
	})

	findings, err := Scan(dir, nil, nil)
	require.NoError(t, err)

	require.Len(t, findings, 1)
	assert.Equal(t, "eval_usage", findings[0].ViolationType)
	assert.Equal(t, models.SeverityCritical, findings[0].Severity)
	assert.Equal(t, 2, findings[0].Line)
}

func TestScan_StorageUndeclaredUnlessPermissionGranted(t *testing.T) {
	dir := writeBundle(t, map[string]string{
		"index.js": "localStorage.setItem('k', 'v');\n",
	})

	findings, err := Scan(dir, nil, nil)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "storage_access_undeclared", findings[0].ViolationType)

	findings, err = Scan(dir, []string{"storage:local"}, nil)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestScan_ExcessPermissions(t *testing.T) {
	dir := writeBundle(t, map[string]string{"index.js": "console.log('hi');\n"})

	perms := make([]string, 11)
	for i := range perms {
		perms[i] = "perm"
	}

	findings, err := Scan(dir, perms, nil)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "excess_permissions", findings[0].ViolationType)
	assert.Equal(t, models.SeverityMedium, findings[0].Severity)
}

func TestScan_DangerousPermissionComboIsCheckedAgainstDeclaredPermissionsNotSourceText(t *testing.T) {
	dir := writeBundle(t, map[string]string{"index.js": "console.log('no mention of the combo here');\n"})

	findings, err := Scan(dir, []string{"network:http", "read:logs"}, nil)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "dangerous_permission_combo", findings[0].ViolationType)
	assert.Equal(t, models.SeverityHigh, findings[0].Severity)
	assert.Equal(t, "manifest", findings[0].File)

	findings, err = Scan(dir, []string{"network:http"}, nil)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestScan_NetworkExfilOnlyFlagsUndeclaredOrigins(t *testing.T) {
	dir := writeBundle(t, map[string]string{
		"index.js": "fetch('https://api.example.com/data');\n",
	})

	findings, err := Scan(dir, nil, nil)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "network_exfil", findings[0].ViolationType)

	findings, err = Scan(dir, nil, []string{"api.example.com"})
	require.NoError(t, err)
	assert.Empty(t, findings, "a call to a manifest-declared origin is not exfiltration")

	findings, err = Scan(dir, nil, []string{"https://api.example.com/"})
	require.NoError(t, err)
	assert.Empty(t, findings, "declared origins may be full URLs, not just bare hosts")
}

func TestScan_DeduplicatesByTypeFileLine(t *testing.T) {
	dir := writeBundle(t, map[string]string{
		"index.js": "eval(x); eval(y);\n",
	})

	findings, err := Scan(dir, nil, nil)
	require.NoError(t, err)
	require.Len(t, findings, 1, "two eval calls on the same line dedup to one finding")
}

func TestScan_IgnoresNonSourceFiles(t *testing.T) {
	dir := writeBundle(t, map[string]string{
		"data.bin": "eval(something)\n",
	})

	findings, err := Scan(dir, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestScore_ClampedToZeroAndHundred(t *testing.T) {
	assert.Equal(t, 100, Score(nil))

	critical := []models.SecurityFinding{
		{Severity: models.SeverityCritical},
		{Severity: models.SeverityCritical},
		{Severity: models.SeverityCritical},
	}
	assert.Equal(t, 0, Score(critical))

	oneLow := []models.SecurityFinding{{Severity: models.SeverityLow}}
	assert.Equal(t, 99, Score(oneLow))
}

func TestHasCritical(t *testing.T) {
	assert.False(t, HasCritical([]models.SecurityFinding{{Severity: models.SeverityHigh}}))
	assert.True(t, HasCritical([]models.SecurityFinding{{Severity: models.SeverityCritical}}))
}
