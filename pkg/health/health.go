// Package health tracks the health of the gateway's dependencies and decides
// whether the process is ready to take traffic.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthState represents the health state of a component or of the service
type HealthState int

const (
	// StateHealthy indicates the component is fully operational
	StateHealthy HealthState = iota

	// StateDegraded indicates the service works with reduced functionality,
	// for example with the cache unreachable
	StateDegraded

	// StateUnavailable indicates the service cannot serve requests
	StateUnavailable
)

// String returns the string representation of a health state
func (s HealthState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON reports
func (s HealthState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Checker probes one dependency
type Checker func(ctx context.Context) error

// ComponentHealth tracks the health of a specific component
type ComponentHealth struct {
	Name              string      `json:"name"`
	State             HealthState `json:"state"`
	Critical          bool        `json:"critical"`
	LastStateChange   time.Time   `json:"last_state_change"`
	LastHealthCheck   time.Time   `json:"last_health_check"`
	ConsecutiveErrors int         `json:"consecutive_errors"`
	LastErrorMessage  string      `json:"last_error_message,omitempty"`
}

type component struct {
	ComponentHealth
	check Checker
}

// TrackerConfig configures health tracking behavior
type TrackerConfig struct {
	// UnavailableThreshold is the number of consecutive errors before a
	// critical component is marked unavailable. Earlier errors mark it
	// degraded.
	UnavailableThreshold int `yaml:"unavailable_threshold" json:"unavailable_threshold"`

	// CheckTimeout bounds a single Checker call
	CheckTimeout time.Duration `yaml:"check_timeout" json:"check_timeout"`

	// HealthCheckInterval is the interval for background checks
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`

	// OnStateChange is called after a component changes state
	OnStateChange func(component string, oldState, newState HealthState, err error) `yaml:"-" json:"-"`
}

// Report is a point-in-time view of every component
type Report struct {
	Status     HealthState       `json:"status"`
	Ready      bool              `json:"ready"`
	Timestamp  time.Time         `json:"timestamp"`
	Components []ComponentHealth `json:"components"`
}

// Tracker tracks the health of multiple components and determines overall
// service health
type Tracker struct {
	mu         sync.RWMutex
	components map[string]*component
	config     TrackerConfig
	now        func() time.Time
}

// DefaultConfig returns a default tracker configuration
func DefaultConfig() TrackerConfig {
	return TrackerConfig{
		UnavailableThreshold: 1,
		CheckTimeout:         5 * time.Second,
		HealthCheckInterval:  30 * time.Second,
	}
}

// NewTracker creates a new health tracker
func NewTracker(config TrackerConfig) *Tracker {
	if config.UnavailableThreshold <= 0 {
		config.UnavailableThreshold = 1
	}
	if config.CheckTimeout <= 0 {
		config.CheckTimeout = 5 * time.Second
	}
	if config.HealthCheckInterval <= 0 {
		config.HealthCheckInterval = 30 * time.Second
	}
	return &Tracker{
		components: make(map[string]*component),
		config:     config,
		now:        time.Now,
	}
}

// RegisterComponent registers a component. A failing critical component makes
// the service unavailable; a failing non-critical one only degrades it. check
// may be nil for components that only report through RecordSuccess and
// RecordError.
func (t *Tracker) RegisterComponent(name string, critical bool, check Checker) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.components[name]; exists {
		return
	}
	now := t.now()
	t.components[name] = &component{
		ComponentHealth: ComponentHealth{
			Name:            name,
			State:           StateHealthy,
			Critical:        critical,
			LastStateChange: now,
			LastHealthCheck: now,
		},
		check: check,
	}
}

// RecordSuccess records a successful check for a component
func (t *Tracker) RecordSuccess(name string) {
	t.record(name, nil)
}

// RecordError records a failed check for a component
func (t *Tracker) RecordError(name string, err error) {
	if err == nil {
		err = fmt.Errorf("%s: unknown failure", name)
	}
	t.record(name, err)
}

func (t *Tracker) record(name string, err error) {
	t.mu.Lock()
	c, exists := t.components[name]
	if !exists {
		t.mu.Unlock()
		return
	}

	oldState := c.State
	c.LastHealthCheck = t.now()

	newState := StateHealthy
	if err != nil {
		c.ConsecutiveErrors++
		c.LastErrorMessage = err.Error()
		newState = StateDegraded
		if c.Critical && c.ConsecutiveErrors >= t.config.UnavailableThreshold {
			newState = StateUnavailable
		}
	} else {
		c.ConsecutiveErrors = 0
		c.LastErrorMessage = ""
	}

	if newState != oldState {
		c.State = newState
		c.LastStateChange = c.LastHealthCheck
	}
	callback := t.config.OnStateChange
	t.mu.Unlock()

	if newState != oldState && callback != nil {
		callback(name, oldState, newState, err)
	}
}

// GetState returns the current health state of a component. Unknown
// components are reported unavailable.
func (t *Tracker) GetState(name string) HealthState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if c, exists := t.components[name]; exists {
		return c.State
	}
	return StateUnavailable
}

// GetComponentHealth returns a copy of the health information for a component
func (t *Tracker) GetComponentHealth(name string) (ComponentHealth, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	c, exists := t.components[name]
	if !exists {
		return ComponentHealth{}, fmt.Errorf("component %s not registered", name)
	}
	return c.ComponentHealth, nil
}

// GetAllComponents returns health information for all components, sorted by
// name
func (t *Tracker) GetAllComponents() []ComponentHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]ComponentHealth, 0, len(t.components))
	for _, c := range t.components {
		out = append(out, c.ComponentHealth)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetOverallHealth returns the worst state across all components
func (t *Tracker) GetOverallHealth() HealthState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	overall := StateHealthy
	for _, c := range t.components {
		if c.State > overall {
			overall = c.State
		}
	}
	return overall
}

// Check runs every registered checker concurrently, records the results and
// returns the resulting report.
func (t *Tracker) Check(ctx context.Context) Report {
	t.mu.RLock()
	checks := make(map[string]Checker, len(t.components))
	for name, c := range t.components {
		if c.check != nil {
			checks[name] = c.check
		}
	}
	t.mu.RUnlock()

	var g errgroup.Group
	for name, check := range checks {
		name, check := name, check
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, t.config.CheckTimeout)
			defer cancel()
			if err := check(cctx); err != nil {
				t.RecordError(name, err)
			} else {
				t.RecordSuccess(name)
			}
			return nil
		})
	}
	_ = g.Wait()

	return t.Report()
}

// Report returns the last recorded state without running any checks
func (t *Tracker) Report() Report {
	overall := t.GetOverallHealth()
	return Report{
		Status:     overall,
		Ready:      overall != StateUnavailable,
		Timestamp:  t.now(),
		Components: t.GetAllComponents(),
	}
}

// StartHealthChecks runs Check every HealthCheckInterval until ctx is done
func (t *Tracker) StartHealthChecks(ctx context.Context) {
	ticker := time.NewTicker(t.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Check(ctx)
		}
	}
}
