package health

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googlearchive/science-journal-ios/catalog"
)

func TestStatusPredicates(t *testing.T) {
	tests := []struct {
		status                        Status
		healthy, degraded, unhealthy bool
	}{
		{NewHealthy("c", "ok"), true, false, false},
		{NewDegraded("c", "meh"), false, true, false},
		{NewUnhealthy("c", "down"), false, false, true},
		{Status{}, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.status.Status, func(t *testing.T) {
			assert.Equal(t, tt.healthy, tt.status.IsHealthy())
			assert.Equal(t, tt.healthy, tt.status.Healthy)
			assert.Equal(t, tt.degraded, tt.status.IsDegraded())
			assert.Equal(t, tt.unhealthy, tt.status.IsUnhealthy())
		})
	}
}

func TestFromCatalog(t *testing.T) {
	s := FromCatalog("registry", nil)
	assert.True(t, s.IsHealthy())
	assert.Empty(t, s.Missing)

	s = FromCatalog("registry", []catalog.Name{catalog.Trial})
	assert.True(t, s.IsDegraded())
	assert.Equal(t, []string{"Trial"}, s.Missing)
	assert.Contains(t, s.Message, "1 of 26")
}

func TestFromError(t *testing.T) {
	assert.True(t, FromError("nats", nil, "connected").IsHealthy())

	s := FromError("nats", fmt.Errorf("dial nats://user:pw@10.0.0.5:4222 failed, token=abc123"), "")
	assert.True(t, s.IsUnhealthy())
	assert.NotContains(t, s.Message, "10.0.0.5")
	assert.NotContains(t, s.Message, "abc123")
	assert.Contains(t, s.Message, "[URL]")
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		in, notContains string
	}{
		{"open /etc/sj/goosci.pb: no such file", "/etc/sj"},
		{"connect 192.168.1.10 refused", "192.168.1.10"},
		{"listen on :8080 failed", ":8080"},
		{"auth failed password=hunter2", "hunter2"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.NotContains(t, sanitizeErrorMessage(tt.in), tt.notContains)
		})
	}
	assert.Equal(t, "", sanitizeErrorMessage(""))
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want string
	}{
		{"empty", nil, StateHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StateHealthy},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StateDegraded},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, StateUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("system", tt.subs)
			assert.Equal(t, tt.want, got.Status)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestMonitor(t *testing.T) {
	m := NewMonitor()
	m.Register("registry", func() Status { return FromCatalog("", []catalog.Name{catalog.Trial}) })
	m.Register("nats", func() Status { return NewHealthy("", "connected") })
	require.Equal(t, 2, m.Count())

	agg := m.AggregateHealth("sjcatalog")
	assert.True(t, agg.IsDegraded())
	require.Len(t, agg.SubStatuses, 2)
	assert.Equal(t, "nats", agg.SubStatuses[0].Component)
	assert.Equal(t, "registry", agg.SubStatuses[1].Component)

	m.Remove("registry")
	assert.True(t, m.AggregateHealth("sjcatalog").IsHealthy())
}

func TestMonitor_Concurrent(t *testing.T) {
	m := NewMonitor()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("c%d", i)
			m.Register(name, func() Status { return NewHealthy(name, "") })
			_ = m.AggregateHealth("system")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, m.Count())
}

func TestMonitor_ChecksRunConcurrently(t *testing.T) {
	m := NewMonitor()
	ready := make(chan struct{})

	// "a" sorts first and only succeeds once "b" has run.
	m.Register("a", func() Status {
		select {
		case <-ready:
			return NewHealthy("", "saw b")
		case <-time.After(2 * time.Second):
			return NewUnhealthy("", "b never ran")
		}
	})
	m.Register("b", func() Status {
		close(ready)
		return NewHealthy("", "ok")
	})

	agg := m.AggregateHealth("system")
	assert.True(t, agg.IsHealthy(), agg.SubStatuses)
	assert.Equal(t, "a", agg.SubStatuses[0].Component)
}
