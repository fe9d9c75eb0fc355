package health

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	healthy := NewHealthy("a", "")
	degraded := NewDegraded("b", "slow")
	unhealthy := NewUnhealthy("c", "down")

	tests := []struct {
		name string
		subs []Status
		want string
	}{
		{"empty", nil, StateHealthy},
		{"all healthy", []Status{healthy, healthy}, StateHealthy},
		{"degraded wins over healthy", []Status{healthy, degraded}, StateDegraded},
		{"unhealthy wins", []Status{degraded, unhealthy, healthy}, StateUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("formflow", tt.subs)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.want == StateHealthy, got.Healthy)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestFromError(t *testing.T) {
	assert.True(t, FromError("storage", nil, true).IsHealthy())
	assert.True(t, FromError("storage", errors.New("boom"), true).IsUnhealthy())
	assert.True(t, FromError("nats", errors.New("boom"), false).IsDegraded())
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		notWant string
	}{
		{"dial nats://user:pw@10.0.0.4:4222 failed", "[URL]", "10.0.0.4"},
		{"open /var/lib/formflow/forms.db: permission denied", "[PATH]", "/var/lib"},
		{"connect 192.168.1.10 refused", "[IP]", "192.168.1.10"},
		{"auth failed token=abc123", "[REDACTED]", "abc123"},
		{"", "", "x"},
	}
	for _, tt := range tests {
		got := sanitizeErrorMessage(tt.in)
		assert.Contains(t, got, tt.want)
		assert.NotContains(t, got, tt.notWant)
	}
}

func TestMonitor_Check(t *testing.T) {
	m := NewMonitor("formflow", WithTimeout(50*time.Millisecond))
	assert.True(t, m.Last().IsHealthy())

	var storageErr error
	m.Register("storage", func(context.Context) error { return storageErr }, true)
	m.Register("nats", func(context.Context) error { return nil }, false)
	assert.Equal(t, []string{"storage", "nats"}, m.Names())

	status := m.Check(context.Background())
	require.True(t, status.IsHealthy())
	assert.Len(t, status.SubStatuses, 2)

	storageErr = fmt.Errorf("bucket forms at nats://10.1.1.1:4222 unavailable")
	status = m.Check(context.Background())
	assert.True(t, status.IsUnhealthy())
	assert.Equal(t, "storage", status.SubStatuses[0].Component)
	assert.NotContains(t, status.SubStatuses[0].Message, "10.1.1.1")
	assert.Equal(t, status, m.Last())
}

func TestMonitor_NonCriticalDegrades(t *testing.T) {
	m := NewMonitor("formflow")
	m.Register("nats", func(context.Context) error { return errors.New("reconnecting") }, false)
	m.Register("nats", func(context.Context) error { return errors.New("still reconnecting") }, false)

	status := m.Check(context.Background())
	assert.True(t, status.IsDegraded())
	require.Len(t, status.SubStatuses, 1)
	assert.Equal(t, "still reconnecting", status.SubStatuses[0].Message)
}

func TestMonitor_CheckTimeout(t *testing.T) {
	m := NewMonitor("formflow", WithTimeout(10*time.Millisecond))
	m.Register("storage", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, true)

	status := m.Check(context.Background())
	assert.True(t, status.IsUnhealthy())
	assert.Contains(t, status.SubStatuses[0].Message, "deadline exceeded")
}
