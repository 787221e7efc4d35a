// Package health aggregates liveness/readiness/stack status across the
// storage adapter, message bus, and plugin system, per the Health Aggregator
// component.
package health

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taylordash/taylordash/internal/bus"
	"github.com/taylordash/taylordash/internal/db"
)

// Status is one sub-check's reported state.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// SubCheck is the structured result of probing a single backend.
type SubCheck struct {
	Status         Status `json:"status"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	Details        string `json:"details,omitempty"`
}

// StackStatus is the /api/v1/health/stack response body.
type StackStatus struct {
	Status  Status   `json:"status"`
	Storage SubCheck `json:"storage"`
	Bus     SubCheck `json:"bus"`
	Plugins SubCheck `json:"plugins"`
}

// Aggregator wires the backends the health endpoints probe.
type Aggregator struct {
	store       *db.Database
	broker      *bus.Adapter
	serviceName string
	pluginCount func(ctx context.Context) (int, error)
}

// NewAggregator wires an Aggregator. pluginCount, if non-nil, is consulted
// for the plugin system sub-check (a simple reachability signal: can the
// plugin catalog be listed).
func NewAggregator(store *db.Database, broker *bus.Adapter, serviceName string, pluginCount func(ctx context.Context) (int, error)) *Aggregator {
	return &Aggregator{store: store, broker: broker, serviceName: serviceName, pluginCount: pluginCount}
}

// Live answers GET /health/live: 200 as soon as the process can respond, no
// dependency consulted.
func (a *Aggregator) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   a.serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready answers GET /health/ready: 200 iff the storage probe succeeds, else 503.
func (a *Aggregator) Ready(c *gin.Context) {
	probe := a.store.Probe(c.Request.Context())
	if !probe.Healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"error":  probe.Error,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Stack answers GET /api/v1/health/stack: structured status for every
// backend. Overall status is unhealthy if any sub-check is unhealthy,
// degraded if any is degraded, else healthy.
func (a *Aggregator) Stack(c *gin.Context) {
	ctx := c.Request.Context()
	storage := a.probeStorage(ctx)
	busCheck := a.probeBus()
	plugins := a.probePlugins(ctx)

	overall := StatusHealthy
	for _, s := range []Status{storage.Status, busCheck.Status, plugins.Status} {
		if s == StatusUnhealthy {
			overall = StatusUnhealthy
			break
		}
		if s == StatusDegraded {
			overall = StatusDegraded
		}
	}

	c.JSON(http.StatusOK, StackStatus{
		Status:  overall,
		Storage: storage,
		Bus:     busCheck,
		Plugins: plugins,
	})
}

func (a *Aggregator) probeStorage(ctx context.Context) SubCheck {
	probe := a.store.Probe(ctx)
	status := StatusHealthy
	if !probe.Healthy {
		status = StatusUnhealthy
	} else if probe.ResponseTime > 500*time.Millisecond {
		status = StatusDegraded
	}
	return SubCheck{
		Status:         status,
		ResponseTimeMs: probe.ResponseTime.Milliseconds(),
		Details:        probe.Error,
	}
}

func (a *Aggregator) probeBus() SubCheck {
	if a.broker == nil {
		return SubCheck{Status: StatusUnhealthy, Details: "bus not configured"}
	}
	healthy, details := a.broker.Probe()
	status := StatusHealthy
	if !healthy {
		status = StatusUnhealthy
	}
	return SubCheck{Status: status, Details: details}
}

func (a *Aggregator) probePlugins(ctx context.Context) SubCheck {
	if a.pluginCount == nil {
		return SubCheck{Status: StatusDegraded, Details: "plugin system not wired"}
	}
	start := time.Now()
	count, err := a.pluginCount(ctx)
	elapsed := time.Since(start)
	if err != nil {
		return SubCheck{Status: StatusUnhealthy, ResponseTimeMs: elapsed.Milliseconds(), Details: err.Error()}
	}
	return SubCheck{
		Status:         StatusHealthy,
		ResponseTimeMs: elapsed.Milliseconds(),
		Details:        "plugins tracked: " + strconv.Itoa(count),
	}
}

// RegisterRoutes attaches /health/live, /health/ready (unauthenticated) and
// /api/v1/health/stack (admin-gated).
func (a *Aggregator) RegisterRoutes(root *gin.Engine, adminOnly *gin.RouterGroup) {
	root.GET("/health/live", a.Live)
	root.GET("/health/ready", a.Ready)
	adminOnly.GET("/health/stack", a.Stack)
}
