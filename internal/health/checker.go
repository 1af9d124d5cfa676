// Package health probes the document store and the model server.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Component kinds. Only a failing database makes the service unhealthy.
const (
	KindDatabase = "database"
	KindModel    = "model"
)

// Component is the outcome of probing one dependency.
type Component struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status     Status      `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
	Components []Component `json:"components"`
}

// Pinger is satisfied by store.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Heartbeater is satisfied by modelclient.Client.
type Heartbeater interface {
	Heartbeat(ctx context.Context) error
}

// Config holds health checker configuration. Zero durations use defaults.
type Config struct {
	Store Pinger
	Model Heartbeater

	StoreTimeout    time.Duration
	ModelTimeout    time.Duration
	MaxStoreLatency time.Duration
}

// Checker probes the configured dependencies concurrently.
type Checker struct {
	cfg Config

	mu   sync.RWMutex
	last *HealthStatus
}

// New creates a new health checker.
func New(cfg Config) *Checker {
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = 2 * time.Second
	}
	if cfg.ModelTimeout == 0 {
		cfg.ModelTimeout = 5 * time.Second
	}
	if cfg.MaxStoreLatency == 0 {
		cfg.MaxStoreLatency = 100 * time.Millisecond
	}
	return &Checker{cfg: cfg}
}

type probe func(context.Context) Component

// Check probes every dependency and returns the overall status. Components
// are reported store first.
func (c *Checker) Check(ctx context.Context) HealthStatus {
	var probes []probe
	if c.cfg.Store != nil {
		probes = append(probes, c.checkStore)
	}
	if c.cfg.Model != nil {
		probes = append(probes, c.checkModel)
	}

	components := make([]Component, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			components[i] = p(ctx)
		}()
	}
	wg.Wait()

	status := summarize(components)
	c.mu.Lock()
	c.last = &status
	c.mu.Unlock()
	return status
}

// Last returns the result of the most recent Check, or a healthy status
// with no components before the first one.
func (c *Checker) Last() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return HealthStatus{Status: StatusHealthy, Timestamp: time.Now()}
	}
	return *c.last
}

func timed(ctx context.Context, timeout time.Duration, fn func(context.Context) error) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	err := fn(ctx)
	return time.Since(start), err
}

func (c *Checker) checkStore(ctx context.Context) Component {
	comp := Component{Name: "store", Type: KindDatabase, Timestamp: time.Now()}
	latency, err := timed(ctx, c.cfg.StoreTimeout, c.cfg.Store.Ping)
	comp.LatencyMS = latency.Milliseconds()
	switch {
	case err != nil:
		comp.Status, comp.Message, comp.Error = StatusUnhealthy, "Store unreachable", err.Error()
	case latency > c.cfg.MaxStoreLatency:
		comp.Status, comp.Message = StatusDegraded, fmt.Sprintf("High latency: %v", latency)
	default:
		comp.Status, comp.Message = StatusHealthy, "Connected"
	}
	return comp
}

// checkModel never reports unhealthy: uploads and history work without the
// model server.
func (c *Checker) checkModel(ctx context.Context) Component {
	comp := Component{Name: "model_server", Type: KindModel, Timestamp: time.Now()}
	latency, err := timed(ctx, c.cfg.ModelTimeout, c.cfg.Model.Heartbeat)
	comp.LatencyMS = latency.Milliseconds()
	if err != nil {
		comp.Status, comp.Message, comp.Error = StatusDegraded, "Model server unreachable", err.Error()
		return comp
	}
	comp.Status, comp.Message = StatusHealthy, "Reachable"
	return comp
}

func summarize(components []Component) HealthStatus {
	overall := StatusHealthy
	for _, comp := range components {
		switch {
		case comp.Status == StatusUnhealthy && comp.Type == KindDatabase:
			overall = StatusUnhealthy
		case comp.Status != StatusHealthy && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}
	return HealthStatus{Status: overall, Timestamp: time.Now(), Components: components}
}
