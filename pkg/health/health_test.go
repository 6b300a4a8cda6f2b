package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func up(context.Context) ComponentHealth   { return ComponentHealth{Status: StatusUp} }
func down(context.Context) ComponentHealth { return ComponentHealth{Status: StatusDown, Message: "gone"} }

func TestOptionalFailureDegrades(t *testing.T) {
	c := NewChecker()
	c.Register("model", up)
	c.RegisterOptional("redis", down)

	report := c.Run(context.Background())
	if report.Status != StatusDegraded {
		t.Errorf("status = %s, want degraded", report.Status)
	}
	if report.Components["redis"].Status != StatusDegraded {
		t.Errorf("redis = %s", report.Components["redis"].Status)
	}
}

func TestRequiredFailureTakesDown(t *testing.T) {
	c := NewChecker()
	c.Register("model", down)
	c.RegisterOptional("redis", up)

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready code = %d, want 503", rec.Code)
	}
}
