package plugins

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/taylordash/taylordash/internal/db"
	apperrors "github.com/taylordash/taylordash/internal/errors"
	"github.com/taylordash/taylordash/internal/events"
	"github.com/taylordash/taylordash/internal/logger"
	"github.com/taylordash/taylordash/internal/metrics"
	"github.com/taylordash/taylordash/internal/models"
	"github.com/taylordash/taylordash/internal/sync"
)

// minSecurityScore is the install threshold: an install fails if any
// critical finding exists, or the score drops below this value.
const minSecurityScore = 50

// healthFailureThreshold marks a plugin disabled after this many consecutive
// failed health checks.
const healthFailureThreshold = 3

// Service drives the plugin install/update/disable/uninstall state machine
// and its supporting runtime monitoring, config history, and health checks.
type Service struct {
	store    *db.Database
	git      *sync.GitClient
	pipeline *events.Pipeline
	baseDir  string
	http     *http.Client
}

// NewService wires a Service. baseDir is PLUGIN_DIR: the root under which
// each installation gets its own subdirectory.
func NewService(store *db.Database, git *sync.GitClient, pipeline *events.Pipeline, baseDir string) *Service {
	return &Service{
		store:    store,
		git:      git,
		pipeline: pipeline,
		baseDir:  baseDir,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// pluginIDFromURL derives a stable plugin id from a repository URL (the
// final path segment, stripped of a trailing ".git"). The install flow
// allocates and locks a Plugin row under this id before the manifest itself
// is readable, since cloning requires the row to exist for the FK'd
// violation/config/health tables.
func pluginIDFromURL(repoURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git")
	parts := strings.Split(trimmed, "/")
	return strings.ToLower(parts[len(parts)-1])
}

// Install starts an install attempt. It validates the repository
// URL and allocates the installation record synchronously, then clones,
// scans, and finalizes status in the background so the HTTP layer can
// return 202 immediately with the installation id.
func (s *Service) Install(ctx context.Context, repoURL string, requestedPermissions []string) (string, error) {
	pluginID := pluginIDFromURL(repoURL)
	if pluginID == "" {
		return "", apperrors.Validation("repository_url does not resolve to a plugin id", nil)
	}

	existing, err := s.store.GetPlugin(ctx, pluginID)
	if err != nil {
		return "", apperrors.Internal(err)
	}
	isUpdate := existing != nil && existing.Status == models.PluginInstalled

	installationID := uuid.New().String()
	now := time.Now().UTC()
	installation := &models.PluginInstallation{
		ID:        installationID,
		PluginID:  pluginID,
		Status:    models.PluginPending,
		Message:   "queued",
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreatePluginInstallation(ctx, installation); err != nil {
		return "", apperrors.Internal(err)
	}

	if err := validateRepositoryURL(repoURL, s.allowedHosts(ctx)); err != nil {
		s.failInstallation(context.Background(), installation, err.Error())
		return installationID, nil
	}

	go s.runInstall(context.Background(), installation, pluginID, repoURL, requestedPermissions, isUpdate)
	return installationID, nil
}

func (s *Service) runInstall(ctx context.Context, installation *models.PluginInstallation, pluginID, repoURL string, requestedPermissions []string, isUpdate bool) {
	log := logger.Plugins()
	transition := models.PluginInstalling
	if isUpdate {
		transition = models.PluginUpdating
	}

	if err := s.store.Transaction(ctx, func(tx *sql.Tx) error {
		p, err := s.store.GetPluginForUpdate(ctx, tx, pluginID)
		if err != nil {
			return err
		}
		if p == nil {
			p = &models.Plugin{
				ID:            pluginID,
				RepositoryURL: repoURL,
				Status:        transition,
				CreatedAt:     time.Now().UTC(),
				Permissions:   []string{},
				Manifest:      models.JSONMap{},
				Config:        models.JSONMap{},
				SecurityScore: 100,
			}
		} else {
			p.Status = transition
		}
		p.UpdatedAt = time.Now().UTC()
		return s.store.UpsertPlugin(ctx, tx, p)
	}); err != nil {
		log.Error().Err(err).Str("plugin_id", pluginID).Msg("failed to allocate plugin row")
		s.failInstallation(ctx, installation, "internal error allocating plugin record")
		return
	}

	bundleDir := filepath.Join(s.baseDir, installation.ID)
	if err := s.git.Clone(ctx, repoURL, bundleDir, "", nil); err != nil {
		s.revertOrFail(ctx, pluginID, isUpdate, err.Error(), nil)
		s.failInstallation(ctx, installation, fmt.Sprintf("clone failed: %v", err))
		return
	}

	manifest, err := LoadManifest(bundleDir)
	if err != nil {
		s.revertOrFail(ctx, pluginID, isUpdate, err.Error(), nil)
		s.failInstallation(ctx, installation, err.Error())
		return
	}

	findings, err := Scan(bundleDir, manifest.Permissions, manifest.AllowedOrigins)
	if err != nil {
		s.revertOrFail(ctx, pluginID, isUpdate, err.Error(), nil)
		s.failInstallation(ctx, installation, fmt.Sprintf("security scan failed: %v", err))
		return
	}
	score := Score(findings)

	if err := s.recordViolations(ctx, pluginID, findings); err != nil {
		log.Error().Err(err).Str("plugin_id", pluginID).Msg("failed to record security violations")
	}

	if HasCritical(findings) || score < minSecurityScore {
		s.revertOrFail(ctx, pluginID, isUpdate, "static security analysis rejected bundle", &securityOutcome{score: score, violations: len(findings)})
		s.failInstallation(ctx, installation, fmt.Sprintf("security score %d below threshold or critical finding present", score))
		return
	}

	granted := intersectPermissions(requestedPermissions, manifest.Permissions)
	now := time.Now().UTC()
	if err := s.store.Transaction(ctx, func(tx *sql.Tx) error {
		p, err := s.store.GetPluginForUpdate(ctx, tx, pluginID)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("plugin row disappeared mid-install")
		}
		p.Name = manifest.Name
		p.Version = manifest.Version
		p.Author = manifest.Author
		p.Type = models.PluginType(manifest.Type)
		p.RepositoryURL = repoURL
		p.InstallPath = bundleDir
		p.Manifest = manifestToJSONMap(manifest)
		p.Permissions = granted
		p.Status = models.PluginInstalled
		p.InstalledAt = &now
		p.LastUpdatedAt = &now
		p.InstallationID = &installation.ID
		p.SecurityViolations = len(findings)
		p.SecurityScore = score
		p.UpdatedAt = now
		return s.store.UpsertPlugin(ctx, tx, p)
	}); err != nil {
		log.Error().Err(err).Str("plugin_id", pluginID).Msg("failed to finalize plugin install")
		s.failInstallation(ctx, installation, "internal error finalizing install")
		return
	}

	metrics.PluginSecurityScore.WithLabelValues(pluginID).Set(float64(score))
	s.completeInstallation(ctx, installation, "installed")
	s.emit(ctx, "plugins/events/installed", map[string]interface{}{"plugin_id": pluginID})
}

// securityOutcome carries the score and violation count a security scan
// already computed, so revertOrFail can persist them alongside the status
// flip instead of leaving the plugin row's prior values in place.
type securityOutcome struct {
	score      int
	violations int
}

// revertOrFail moves a failed update back to its prior installed state
// without touching config (monotonic installation); a fresh install simply
// becomes failed. When outcome is non-nil, the plugin's security_score and
// security_violations are updated to match what the scan just found, so a
// failed install reflects the violations that failed it instead of the
// initial score of 100.
func (s *Service) revertOrFail(ctx context.Context, pluginID string, isUpdate bool, reason string, outcome *securityOutcome) {
	_ = s.store.Transaction(ctx, func(tx *sql.Tx) error {
		p, err := s.store.GetPluginForUpdate(ctx, tx, pluginID)
		if err != nil || p == nil {
			return err
		}
		if isUpdate {
			p.Status = models.PluginInstalled
		} else {
			p.Status = models.PluginFailed
		}
		if outcome != nil {
			now := time.Now().UTC()
			p.SecurityScore = outcome.score
			p.SecurityViolations = outcome.violations
			if outcome.violations > 0 {
				p.LastViolationAt = &now
			}
		}
		p.UpdatedAt = time.Now().UTC()
		return s.store.UpsertPlugin(ctx, tx, p)
	})
	pluginLog := logger.Plugins()
	pluginLog.Warn().Str("plugin_id", pluginID).Str("reason", reason).Bool("is_update", isUpdate).Msg("install/update failed")
}

func (s *Service) failInstallation(ctx context.Context, installation *models.PluginInstallation, message string) {
	now := time.Now().UTC()
	installation.Status = models.PluginFailed
	installation.Message = message
	installation.UpdatedAt = now
	installation.CompletedAt = &now
	installation.ErrorDetails = &message
	if err := s.store.UpdatePluginInstallation(ctx, installation); err != nil {
		pluginLog := logger.Plugins()
		pluginLog.Error().Err(err).Str("installation_id", installation.ID).Msg("failed to persist failed installation")
	}
}

func (s *Service) completeInstallation(ctx context.Context, installation *models.PluginInstallation, message string) {
	now := time.Now().UTC()
	installation.Status = models.PluginInstalled
	installation.Message = message
	installation.UpdatedAt = now
	installation.CompletedAt = &now
	if err := s.store.UpdatePluginInstallation(ctx, installation); err != nil {
		pluginLog := logger.Plugins()
		pluginLog.Error().Err(err).Str("installation_id", installation.ID).Msg("failed to persist completed installation")
	}
}

func (s *Service) recordViolations(ctx context.Context, pluginID string, findings []models.SecurityFinding) error {
	if len(findings) == 0 {
		return nil
	}
	return s.store.Transaction(ctx, func(tx *sql.Tx) error {
		for _, f := range findings {
			v := &models.PluginSecurityViolation{
				ID:            uuid.New().String(),
				PluginID:      pluginID,
				ViolationType: f.ViolationType,
				Description:   f.Description,
				Severity:      f.Severity,
				Context:       f.Context,
				Timestamp:     time.Now().UTC(),
			}
			if err := s.store.InsertSecurityViolation(ctx, tx, v); err != nil {
				return err
			}
			metrics.PluginSecurityViolationsTotal.WithLabelValues(pluginID, f.ViolationType, string(f.Severity)).Inc()
		}
		return nil
	})
}

func (s *Service) emit(ctx context.Context, topic string, payload map[string]interface{}) {
	if s.pipeline == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.pipeline.Publish(topic, "plugin", data); err != nil {
		pluginLog := logger.Plugins()
		pluginLog.Warn().Err(err).Str("topic", topic).Msg("failed to publish plugin event")
	}
}

func intersectPermissions(requested, manifestDeclared []string) []string {
	declared := make(map[string]bool, len(manifestDeclared))
	for _, p := range manifestDeclared {
		declared[p] = true
	}
	var out []string
	for _, p := range requested {
		if declared[p] {
			out = append(out, p)
		}
	}
	return out
}

func manifestToJSONMap(m *Manifest) models.JSONMap {
	return models.JSONMap{
		"id":              m.ID,
		"name":            m.Name,
		"version":         m.Version,
		"author":          m.Author,
		"type":            m.Type,
		"permissions":     m.Permissions,
		"health_path":     m.HealthPath,
		"config":          m.Config,
		"allowed_origins": m.AllowedOrigins,
	}
}

// GetPlugin returns one plugin's catalog row.
func (s *Service) GetPlugin(ctx context.Context, id string) (*models.Plugin, error) {
	p, err := s.store.GetPlugin(ctx, id)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if p == nil {
		return nil, apperrors.NotFound("plugin")
	}
	return p, nil
}

// ListPlugins returns every tracked plugin.
func (s *Service) ListPlugins(ctx context.Context) ([]*models.Plugin, error) {
	out, err := s.store.ListPlugins(ctx)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return out, nil
}

// UpdateConfig applies a new config to an installed plugin and appends a
// PluginConfigHistory row. Status is never changed by a config update.
func (s *Service) UpdateConfig(ctx context.Context, id string, newConfig models.JSONMap, changedBy, reason string) (*models.Plugin, error) {
	var result *models.Plugin
	err := s.store.Transaction(ctx, func(tx *sql.Tx) error {
		p, err := s.store.GetPluginForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return apperrors.NotFound("plugin")
		}
		oldConfig := p.Config
		p.Config = newConfig
		p.UpdatedAt = time.Now().UTC()
		if err := s.store.UpsertPlugin(ctx, tx, p); err != nil {
			return err
		}
		if err := s.store.InsertPluginConfigHistory(ctx, &models.PluginConfigHistory{
			ID:           uuid.New().String(),
			PluginID:     id,
			OldConfig:    oldConfig,
			NewConfig:    newConfig,
			ChangedBy:    changedBy,
			ChangeReason: reason,
			Timestamp:    time.Now().UTC(),
		}); err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		if ae, ok := apperrors.As(err); ok {
			return nil, ae
		}
		return nil, apperrors.Internal(err)
	}
	return result, nil
}

// Disable transitions an installed plugin to disabled.
func (s *Service) Disable(ctx context.Context, id string) error {
	return s.transition(ctx, id, models.PluginInstalled, models.PluginDisabled)
}

// Enable transitions a disabled plugin back to installed.
func (s *Service) Enable(ctx context.Context, id string) error {
	return s.transition(ctx, id, models.PluginDisabled, models.PluginInstalled)
}

func (s *Service) transition(ctx context.Context, id string, from, to models.PluginStatus) error {
	err := s.store.Transaction(ctx, func(tx *sql.Tx) error {
		p, err := s.store.GetPluginForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return apperrors.NotFound("plugin")
		}
		if p.Status != from {
			return apperrors.Conflict(fmt.Sprintf("plugin must be %s to transition to %s, is %s", from, to, p.Status))
		}
		p.Status = to
		p.UpdatedAt = time.Now().UTC()
		return s.store.UpsertPlugin(ctx, tx, p)
	})
	if err != nil {
		if ae, ok := apperrors.As(err); ok {
			return ae
		}
		return apperrors.Internal(err)
	}
	return nil
}

// Uninstall transitions an installed plugin through uninstalling and then
// removes its catalog row (violations/access/history/health cascade). Only
// installed plugins may be uninstalled; a disabled plugin must be enabled
// first.
func (s *Service) Uninstall(ctx context.Context, id string) error {
	err := s.store.Transaction(ctx, func(tx *sql.Tx) error {
		p, err := s.store.GetPluginForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return apperrors.NotFound("plugin")
		}
		if p.Status != models.PluginInstalled {
			return apperrors.Conflict(fmt.Sprintf("plugin must be installed to uninstall, is %s", p.Status))
		}
		p.Status = models.PluginUninstalling
		p.UpdatedAt = time.Now().UTC()
		return s.store.UpsertPlugin(ctx, tx, p)
	})
	if err != nil {
		if ae, ok := apperrors.As(err); ok {
			return ae
		}
		return apperrors.Internal(err)
	}

	p, _ := s.store.GetPlugin(ctx, id)
	if p != nil && p.InstallPath != "" {
		_ = os.RemoveAll(p.InstallPath)
	}
	if err := s.store.DeletePlugin(ctx, id); err != nil {
		return apperrors.Internal(err)
	}
	s.emit(ctx, "plugins/events/uninstalled", map[string]interface{}{"plugin_id": id})
	return nil
}
