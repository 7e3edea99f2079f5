package runtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mohammad-safakhou/atlast/config"
)

func TestSetupTelemetryDisabled(t *testing.T) {
	tel, err := SetupTelemetry(context.Background(), config.TelemetryConfig{}, TelemetryOptions{ServiceName: "atlast-test"})
	if err != nil {
		t.Fatalf("SetupTelemetry: %v", err)
	}
	if tel.Meter == nil || tel.Tracer == nil {
		t.Fatalf("expected fallback meter and tracer")
	}
	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics handler status %d", rec.Code)
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
