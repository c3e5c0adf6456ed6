package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gabrielmiguelok/stepform/pkg/metrics"
	"github.com/gabrielmiguelok/stepform/pkg/stepper"
)

func newMetrics(t *testing.T) (*metrics.Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return metrics.NewWithRegistry(reg, reg), reg
}

// value returns the counter or gauge value of the series of name whose
// labels include want.
func value(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	series:
		for _, m := range f.GetMetric() {
			labels := make(map[string]string)
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue series
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("%s %v not found", name, want)
	return 0
}

func TestConnections(t *testing.T) {
	m, reg := newMetrics(t)

	m.ConnOpened()
	m.ConnOpened()
	m.ConnClosed()

	if got := value(t, reg, "stepform_connections_active", nil); got != 1 {
		t.Errorf("expected 1 active connection, got %v", got)
	}
	if got := value(t, reg, "stepform_connections_total", nil); got != 2 {
		t.Errorf("expected 2 total connections, got %v", got)
	}
}

func TestMessages(t *testing.T) {
	m, reg := newMetrics(t)

	m.MessageHandled("dom", time.Millisecond, nil)
	m.MessageHandled("dom", time.Millisecond, errors.New("bad"))
	m.PatchFlushed(4)

	if got := value(t, reg, "stepform_messages_received_total", map[string]string{"event": "dom"}); got != 2 {
		t.Errorf("expected 2 dom messages, got %v", got)
	}
	if got := value(t, reg, "stepform_errors_total", map[string]string{"kind": "message"}); got != 1 {
		t.Errorf("expected 1 message error, got %v", got)
	}
	if got := value(t, reg, "stepform_messages_sent_total", map[string]string{"event": "patch"}); got != 1 {
		t.Errorf("expected 1 patch sent, got %v", got)
	}
}

func TestFormHooks(t *testing.T) {
	m, reg := newMetrics(t)

	m.StepChanged(0, 1)
	m.StepChanged(1, 2)
	m.StepChanged(2, 1)
	m.ValidationFailed("email")
	m.Submitted(stepper.SubmitNative)

	tests := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"stepform_step_transitions_total", map[string]string{"direction": "forward"}, 2},
		{"stepform_step_transitions_total", map[string]string{"direction": "backward"}, 1},
		{"stepform_validation_failures_total", map[string]string{"field": "email"}, 1},
		{"stepform_submissions_total", map[string]string{"mode": "native"}, 1},
	}
	for _, tt := range tests {
		if got := value(t, reg, tt.name, tt.labels); got != tt.want {
			t.Errorf("%s %v: got %v, want %v", tt.name, tt.labels, got, tt.want)
		}
	}
}

func TestHandler(t *testing.T) {
	m, _ := newMetrics(t)
	m.ObserveRequest("GET", "/", 200, 3*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `stepform_http_requests_total{method="GET",route="/",status="200"} 1`) {
		t.Errorf("expected request counter in output:\n%s", body)
	}
}
