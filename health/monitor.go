package health

import (
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// maxConcurrentChecks bounds how many checks AggregateHealth runs at once.
const maxConcurrentChecks = 8

// Check produces the current status of one component.
type Check func() Status

// Monitor aggregates named health checks in a thread-safe manner
type Monitor struct {
	mu     sync.RWMutex
	checks map[string]Check
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		checks: make(map[string]Check),
	}
}

// Register adds or replaces the check for name
func (m *Monitor) Register(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Remove removes a component from monitoring
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checks, name)
}

// Count returns the number of components being monitored
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.checks)
}

// AggregateHealth runs every check concurrently and aggregates the results
// in name order.
func (m *Monitor) AggregateHealth(systemName string) Status {
	m.mu.RLock()
	names := make([]string, 0, len(m.checks))
	checks := make(map[string]Check, len(m.checks))
	for name, check := range m.checks {
		names = append(names, name)
		checks[name] = check
	}
	m.mu.RUnlock()

	sort.Strings(names)
	subStatuses := make([]Status, len(names))

	var g errgroup.Group
	g.SetLimit(maxConcurrentChecks)
	for i, name := range names {
		g.Go(func() error {
			status := checks[name]()
			// Ensure the status has the correct component name and timestamp
			status.Component = name
			if status.Timestamp.IsZero() {
				status.Timestamp = time.Now()
			}
			subStatuses[i] = status
			return nil
		})
	}
	_ = g.Wait()

	return Aggregate(systemName, subStatuses)
}
