// Package plugins implements the plugin lifecycle manager: fetching bundles,
// running static security analysis, driving the install state machine,
// proxying runtime API access, and recording config/health history.
package plugins

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/taylordash/taylordash/internal/models"
)

// sourceExtensions bounds the scan to plugin bundle source files; binary
// assets and vendored dependencies are not walked.
var sourceExtensions = map[string]bool{
	".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".py": true, ".go": true, ".html": true,
}

type patternRule struct {
	violationType string
	severity      models.ViolationSeverity
	pattern       *regexp.Regexp
}

// staticRules are the source-text policy categories. Patterns are
// intentionally broad (string heuristics, not an AST walk) and err toward
// flagging more than missing a real finding.
//
// network_exfil and dangerous_permission_combo are NOT in this list: both
// need to be checked against the manifest's declarations (allowed origins,
// granted permissions) rather than matched against source text alone, so
// they're handled separately in Scan/scanFile.
var staticRules = []patternRule{
	{"eval_usage", models.SeverityCritical, regexp.MustCompile(`\beval\s*\(|\bnew\s+Function\s*\(`)},
	{"script_injection", models.SeverityHigh, regexp.MustCompile(`(?i)\.innerHTML\s*(=|\+=)|document\.write\s*\(`)},
	{"iframe_escape", models.SeverityHigh, regexp.MustCompile(`(?i)\b(window\.top|window\.parent|parent\.frames)\b`)},
	{"credential_literal", models.SeverityCritical, regexp.MustCompile(`(?i)\b(AKIA[0-9A-Z]{16}|sk-[a-zA-Z0-9]{20,}|['"][a-zA-Z0-9_\-]{32,}['"])\b`)},
	{"storage_access_undeclared", models.SeverityMedium, regexp.MustCompile(`(?i)\b(localStorage|sessionStorage)\s*\.\s*(setItem|getItem)\s*\(`)},
	{"unsafe_timer_string", models.SeverityMedium, regexp.MustCompile(`(?i)\b(setTimeout|setInterval)\s*\(\s*['"]`)},
}

// networkCallPattern matches an outbound HTTP(S) call and captures the
// target host, so it can be checked against the manifest's declared origins
// instead of being flagged unconditionally.
var networkCallPattern = regexp.MustCompile(`(?i)\b(?:fetch|XMLHttpRequest|axios)\s*\(\s*['"]https?://([a-zA-Z0-9.\-]+)(?::\d+)?`)

// Scan walks bundleDir's source files and returns every static-analysis
// finding, deduplicated by (violation_type, file, line).
// declaredOrigins/declaredPermissions narrow the network_exfil and
// storage_access_undeclared/excess_permissions/dangerous_permission_combo
// checks to the manifest's own declarations.
func Scan(bundleDir string, declaredPermissions, declaredOrigins []string) ([]models.SecurityFinding, error) {
	var findings []models.SecurityFinding
	seen := make(map[string]bool)

	if len(declaredPermissions) > 10 {
		findings = append(findings, models.SecurityFinding{
			ViolationType: "excess_permissions",
			Severity:      models.SeverityMedium,
			Description:   "manifest requests more than 10 permissions",
			File:          "manifest",
		})
	}
	hasStorage := false
	hasNetworkHTTP := false
	hasReadLogs := false
	for _, p := range declaredPermissions {
		switch p {
		case "storage:local", "storage:session":
			hasStorage = true
		case "network:http":
			hasNetworkHTTP = true
		case "read:logs":
			hasReadLogs = true
		}
	}
	if hasNetworkHTTP && hasReadLogs {
		findings = append(findings, models.SecurityFinding{
			ViolationType: "dangerous_permission_combo",
			Severity:      models.SeverityHigh,
			Description:   describeViolation("dangerous_permission_combo"),
			File:          "manifest",
		})
	}

	err := filepath.WalkDir(bundleDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !sourceExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, relErr := filepath.Rel(bundleDir, path)
		if relErr != nil {
			rel = path
		}
		return scanFile(path, rel, hasStorage, declaredOrigins, seen, &findings)
	})
	if err != nil {
		return nil, err
	}
	return findings, nil
}

// originAllowed reports whether host matches one of the manifest's declared
// origins. Declared origins may be bare hosts or full URLs; only the
// hostname is compared.
func originAllowed(host string, declaredOrigins []string) bool {
	host = strings.ToLower(host)
	for _, origin := range declaredOrigins {
		o := strings.ToLower(origin)
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		o = strings.TrimSuffix(o, "/")
		if o == host {
			return true
		}
	}
	return false
}

func scanFile(path, rel string, hasStorage bool, declaredOrigins []string, seen map[string]bool, findings *[]models.SecurityFinding) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if m := networkCallPattern.FindStringSubmatch(line); m != nil && !originAllowed(m[1], declaredOrigins) {
			recordFinding(findings, seen, "network_exfil", models.SeverityHigh, rel, lineNo, line)
		}

		for _, rule := range staticRules {
			if rule.violationType == "storage_access_undeclared" && hasStorage {
				continue
			}
			if !rule.pattern.MatchString(line) {
				continue
			}
			recordFinding(findings, seen, rule.violationType, rule.severity, rel, lineNo, line)
		}
	}
	return scanner.Err()
}

func recordFinding(findings *[]models.SecurityFinding, seen map[string]bool, violationType string, severity models.ViolationSeverity, rel string, lineNo int, line string) {
	key := violationType + "|" + rel + "|" + strconv.Itoa(lineNo)
	if seen[key] {
		return
	}
	seen[key] = true
	*findings = append(*findings, models.SecurityFinding{
		ViolationType: violationType,
		Severity:      severity,
		Description:   describeViolation(violationType),
		File:          rel,
		Line:          lineNo,
		Context:       strings.TrimSpace(line),
	})
}

func describeViolation(violationType string) string {
	switch violationType {
	case "eval_usage":
		return "dynamic code evaluation primitive detected"
	case "script_injection":
		return "unsanitized string concatenation into a markup insertion API"
	case "iframe_escape":
		return "access to parent/top window or frame element"
	case "network_exfil":
		return "outbound network call to a host not declared in the manifest"
	case "credential_literal":
		return "hardcoded high-entropy token matching a secret pattern"
	case "storage_access_undeclared":
		return "local/session storage access without a declared storage permission"
	case "excess_permissions":
		return "more than 10 permissions requested"
	case "dangerous_permission_combo":
		return "network access combined with log read access without justification"
	case "unsafe_timer_string":
		return "setTimeout/setInterval invoked with a string argument"
	default:
		return violationType
	}
}

// Score implements the security_score formula: 100 minus the sum of
// severity_weight * unresolved_violation_count, clamped to [0, 100].
func Score(findings []models.SecurityFinding) int {
	score := 100
	for _, f := range findings {
		score -= models.SeverityWeight(f.Severity)
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// HasCritical reports whether any finding is critical severity.
func HasCritical(findings []models.SecurityFinding) bool {
	for _, f := range findings {
		if f.Severity == models.SeverityCritical {
			return true
		}
	}
	return false
}
