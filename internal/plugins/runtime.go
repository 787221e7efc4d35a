package plugins

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	apperrors "github.com/taylordash/taylordash/internal/errors"
	"github.com/taylordash/taylordash/internal/logger"
	"github.com/taylordash/taylordash/internal/metrics"
	"github.com/taylordash/taylordash/internal/models"
)

// ProxyRequest describes one inbound call a caller wants forwarded to a
// plugin's runtime, carrying the permission the route is declared to need.
type ProxyRequest struct {
	PluginID           string
	RequiredPermission string
	Method             string
	Path               string
	Body               []byte
	UserAgent          string
	IPAddress          string
}

// ProxyResult is what the plugin's runtime returned, for the caller to relay.
type ProxyResult struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// Proxy relays one call to a plugin's runtime: the call is checked against
// the plugin's granted permissions, recorded as a PluginAPIAccess row, and
// rejected with 403 plus a new high-severity PluginSecurityViolation when the
// required permission was never granted.
func (s *Service) Proxy(ctx context.Context, req ProxyRequest) (*ProxyResult, error) {
	p, err := s.store.GetPlugin(ctx, req.PluginID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if p == nil {
		return nil, apperrors.NotFound("plugin")
	}
	if p.Status != models.PluginInstalled {
		return nil, apperrors.Conflict("plugin is not installed")
	}

	start := time.Now()
	granted := req.RequiredPermission == "" || hasPermission(p.Permissions, req.RequiredPermission)

	if !granted {
		s.recordDenial(ctx, p, req)
		return nil, apperrors.Forbidden()
	}

	result, proxyErr := s.forward(ctx, p, req)
	responseTimeMs := int(time.Since(start).Milliseconds())

	access := &models.PluginAPIAccess{
		ID:             uuid.New().String(),
		PluginID:       p.ID,
		Endpoint:       req.Path,
		Method:         req.Method,
		AccessGranted:  true,
		Timestamp:      time.Now().UTC(),
		ResponseTimeMs: responseTimeMs,
		UserAgent:      req.UserAgent,
		IPAddress:      req.IPAddress,
	}
	if req.RequiredPermission != "" {
		perm := req.RequiredPermission
		access.PermissionRequired = &perm
	}
	if proxyErr != nil {
		access.StatusCode = http.StatusBadGateway
	} else {
		access.StatusCode = result.StatusCode
	}
	if err := s.store.InsertPluginAPIAccess(ctx, access); err != nil {
		pluginLog := logger.Plugins()
		pluginLog.Error().Err(err).Str("plugin_id", p.ID).Msg("failed to record api access")
	}

	if proxyErr != nil {
		return nil, apperrors.UpstreamFailure(proxyErr)
	}
	return result, nil
}

func hasPermission(granted []string, required string) bool {
	for _, g := range granted {
		if g == required {
			return true
		}
	}
	return false
}

func (s *Service) recordDenial(ctx context.Context, p *models.Plugin, req ProxyRequest) {
	access := &models.PluginAPIAccess{
		ID:            uuid.New().String(),
		PluginID:      p.ID,
		Endpoint:      req.Path,
		Method:        req.Method,
		StatusCode:    http.StatusForbidden,
		AccessGranted: false,
		Timestamp:     time.Now().UTC(),
		UserAgent:     req.UserAgent,
		IPAddress:     req.IPAddress,
	}
	if req.RequiredPermission != "" {
		perm := req.RequiredPermission
		access.PermissionRequired = &perm
	}
	if err := s.store.InsertPluginAPIAccess(ctx, access); err != nil {
		pluginLog := logger.Plugins()
		pluginLog.Error().Err(err).Str("plugin_id", p.ID).Msg("failed to record denied api access")
	}

	violation := &models.PluginSecurityViolation{
		ID:            uuid.New().String(),
		PluginID:      p.ID,
		ViolationType: "permission_denied",
		Description:   fmt.Sprintf("call to %s %s required undeclared permission %q", req.Method, req.Path, req.RequiredPermission),
		Severity:      models.SeverityHigh,
		Context:       req.Path,
		Timestamp:     time.Now().UTC(),
	}
	s.insertViolationAndRescore(ctx, p.ID, violation)
}

// insertViolationAndRescore persists a single runtime violation and recomputes
// the plugin's security_score from its full unresolved-violation set.
func (s *Service) insertViolationAndRescore(ctx context.Context, pluginID string, v *models.PluginSecurityViolation) {
	var newScore int
	err := s.store.Transaction(ctx, func(tx *sql.Tx) error {
		if err := s.store.InsertSecurityViolation(ctx, tx, v); err != nil {
			return err
		}
		unresolved, err := s.store.ListUnresolvedViolations(ctx, tx, pluginID)
		if err != nil {
			return err
		}
		findings := make([]models.SecurityFinding, len(unresolved))
		for i, u := range unresolved {
			findings[i] = models.SecurityFinding{Severity: u.Severity}
		}
		newScore = Score(findings)

		p, err := s.store.GetPluginForUpdate(ctx, tx, pluginID)
		if err != nil || p == nil {
			return err
		}
		now := time.Now().UTC()
		p.SecurityScore = newScore
		p.SecurityViolations = len(unresolved)
		p.LastViolationAt = &now
		p.UpdatedAt = now
		return s.store.UpsertPlugin(ctx, tx, p)
	})
	if err != nil {
		pluginLog := logger.Plugins()
		pluginLog.Error().Err(err).Str("plugin_id", pluginID).Msg("failed to record runtime violation")
		return
	}
	metrics.PluginSecurityViolationsTotal.WithLabelValues(pluginID, v.ViolationType, string(v.Severity)).Inc()
	metrics.PluginSecurityScore.WithLabelValues(pluginID).Set(float64(newScore))
}

func (s *Service) forward(ctx context.Context, p *models.Plugin, req ProxyRequest) (*ProxyResult, error) {
	base := pluginRuntimeBaseURL(p)
	if base == "" {
		return nil, fmt.Errorf("plugin %s has no runtime endpoint configured", p.ID)
	}
	url := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(req.Path, "/")

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &ProxyResult{StatusCode: resp.StatusCode, Body: body, Headers: resp.Header}, nil
}

func pluginRuntimeBaseURL(p *models.Plugin) string {
	if v, ok := p.Manifest["runtime_url"].(string); ok {
		return v
	}
	return ""
}

// StartHealthChecks schedules the periodic poll: every installed plugin's
// declared health endpoint is pinged on the given interval, and a plugin is
// disabled after three consecutive failures.
func (s *Service) StartHealthChecks(schedule string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		s.pollHealth(context.Background())
	})
	if err != nil {
		return nil, fmt.Errorf("schedule health checks: %w", err)
	}
	c.Start()
	return c, nil
}

func (s *Service) pollHealth(ctx context.Context) {
	plugins, err := s.store.ListPlugins(ctx)
	if err != nil {
		pluginLog := logger.Plugins()
		pluginLog.Error().Err(err).Msg("failed to list plugins for health poll")
		return
	}
	for _, p := range plugins {
		if p.Status != models.PluginInstalled {
			continue
		}
		s.checkOne(ctx, p)
	}
}

func (s *Service) checkOne(ctx context.Context, p *models.Plugin) {
	healthPath, _ := p.Manifest["health_path"].(string)
	base := pluginRuntimeBaseURL(p)
	if base == "" || healthPath == "" {
		// No declared health endpoint; nothing to poll.
		return
	}

	healthy := false
	var respMs int
	var checkErr string

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/"+strings.TrimLeft(healthPath, "/"), nil)
	if err == nil {
		resp, doErr := s.http.Do(httpReq)
		respMs = int(time.Since(start).Milliseconds())
		if doErr != nil {
			checkErr = doErr.Error()
		} else {
			resp.Body.Close()
			healthy = resp.StatusCode >= 200 && resp.StatusCode < 300
			if !healthy {
				checkErr = fmt.Sprintf("unhealthy status %d", resp.StatusCode)
			}
		}
	} else {
		checkErr = err.Error()
	}

	if err := s.store.InsertPluginHealthCheck(ctx, &models.PluginHealthCheck{
		ID:           uuid.New().String(),
		PluginID:     p.ID,
		Healthy:      healthy,
		ResponseTime: respMs,
		Error:        checkErr,
		CheckedAt:    time.Now().UTC(),
	}); err != nil {
		pluginLog := logger.Plugins()
		pluginLog.Error().Err(err).Str("plugin_id", p.ID).Msg("failed to record health check")
	}

	if healthy {
		return
	}

	recent, err := s.store.RecentHealthChecks(ctx, p.ID, healthFailureThreshold)
	if err != nil || len(recent) < healthFailureThreshold {
		return
	}
	for _, r := range recent {
		if r.Healthy {
			return
		}
	}

	if err := s.Disable(ctx, p.ID); err != nil {
		pluginLog := logger.Plugins()
		pluginLog.Error().Err(err).Str("plugin_id", p.ID).Msg("failed to auto-disable unhealthy plugin")
		return
	}
	s.emit(ctx, "plugins/events/health_failed", map[string]interface{}{"plugin_id": p.ID})
}
