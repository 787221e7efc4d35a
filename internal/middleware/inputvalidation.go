// Package middleware provides HTTP middleware for the TaylorDash API.
// This file validates and sanitizes untrusted input: path/query values are
// checked against injection patterns, and JSON bodies are sanitized with
// bluemonday before reaching handlers.
package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	apperrors "github.com/taylordash/taylordash/internal/errors"
)

// InputValidator validates and sanitizes request input.
type InputValidator struct {
	sanitizer *bluemonday.Policy
}

// NewInputValidator builds a validator backed by bluemonday's strict policy
// (strips all HTML).
func NewInputValidator() *InputValidator {
	return &InputValidator{sanitizer: bluemonday.StrictPolicy()}
}

// Middleware rejects requests whose path or query parameters match a known
// injection or path-traversal pattern.
func (v *InputValidator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := v.validatePath(c.Request.URL.Path); err != nil {
			apperrors.AbortWithError(c, apperrors.Validation(err.Error(), nil))
			return
		}
		for key, values := range c.Request.URL.Query() {
			for _, value := range values {
				if err := v.validateInput(key, value); err != nil {
					apperrors.AbortWithError(c, apperrors.Validation(
						fmt.Sprintf("parameter %q: %s", key, err.Error()), nil))
					return
				}
			}
		}
		c.Next()
	}
}

// SanitizeJSONMiddleware sanitizes JSON request bodies via bluemonday and
// stashes the result under "sanitized_json" for handlers that want it; the
// original body is preserved for the normal binding path.
func (v *InputValidator) SanitizeJSONMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.ContentType() != "application/json" {
			c.Next()
			return
		}

		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Next()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		var data map[string]interface{}
		if err := json.Unmarshal(bodyBytes, &data); err != nil {
			c.Next()
			return
		}

		c.Set("sanitized_json", v.sanitizeMap(data))
		c.Next()
	}
}

func (v *InputValidator) validatePath(path string) error {
	pathTraversalPatterns := []string{
		"../", "..\\", "/..", "\\..",
		"%2e%2e", "%252e%252e", "..%2f", "..%5c",
	}
	lowerPath := strings.ToLower(path)
	for _, pattern := range pathTraversalPatterns {
		if strings.Contains(lowerPath, pattern) {
			return fmt.Errorf("path traversal attempt detected")
		}
	}
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("null byte detected in path")
	}
	return nil
}

func (v *InputValidator) validateInput(key, value string) error {
	if len(value) > 10000 {
		return fmt.Errorf("value too long (max 10000 characters)")
	}
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("null byte detected")
	}
	if err := v.checkSQLInjection(value); err != nil {
		return err
	}
	if err := v.checkCommandInjection(value); err != nil {
		return err
	}
	if err := v.checkLDAPInjection(value); err != nil {
		return err
	}
	return nil
}

func (v *InputValidator) checkSQLInjection(value string) error {
	sqlPatterns := []string{
		`(?i)(union\s+select)`,
		`(?i)(select\s+.*\s+from)`,
		`(?i)(insert\s+into)`,
		`(?i)(delete\s+from)`,
		`(?i)(drop\s+table)`,
		`(?i)(update\s+.*\s+set)`,
		`(?i)(exec\s*\()`,
		`(?i)(execute\s*\()`,
		`(?i)(script\s*>)`,
		`(?i)(javascript:)`,
		`(?i)(onerror\s*=)`,
		`(?i)(onload\s*=)`,
		`--`,
		`#`,
		`/\*`,
	}
	for _, pattern := range sqlPatterns {
		if matched, _ := regexp.MatchString(pattern, value); matched {
			return fmt.Errorf("potential SQL injection detected")
		}
	}
	return nil
}

func (v *InputValidator) checkCommandInjection(value string) error {
	commandPatterns := []string{`[;&|]`, "`", `\$\(`}
	for _, pattern := range commandPatterns {
		if matched, _ := regexp.MatchString(pattern, value); matched {
			return fmt.Errorf("potential command injection detected")
		}
	}
	return nil
}

// checkLDAPInjection only flags a value once two or more LDAP-special
// characters appear together, to keep ordinary punctuation from tripping it.
func (v *InputValidator) checkLDAPInjection(value string) error {
	ldapChars := []string{"*", "(", ")", "\\", "/", "\x00"}
	specialCount := 0
	for _, c := range ldapChars {
		if strings.Contains(value, c) {
			specialCount++
		}
	}
	if specialCount >= 2 {
		return fmt.Errorf("potential LDAP injection detected")
	}
	return nil
}

func (v *InputValidator) sanitizeMap(data map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for key, value := range data {
		switch val := value.(type) {
		case string:
			result[key] = v.sanitizer.Sanitize(val)
		case map[string]interface{}:
			result[key] = v.sanitizeMap(val)
		case []interface{}:
			result[key] = v.sanitizeArray(val)
		default:
			result[key] = value
		}
	}
	return result
}

func (v *InputValidator) sanitizeArray(data []interface{}) []interface{} {
	result := make([]interface{}, len(data))
	for i, value := range data {
		switch val := value.(type) {
		case string:
			result[i] = v.sanitizer.Sanitize(val)
		case map[string]interface{}:
			result[i] = v.sanitizeMap(val)
		case []interface{}:
			result[i] = v.sanitizeArray(val)
		default:
			result[i] = value
		}
	}
	return result
}
