package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSetup_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	for _, endpoint := range []string{"", "   "} {
		providers, err := Setup(ctx, Options{Endpoint: endpoint, ServiceName: "esign-server"})
		if err != nil {
			t.Fatalf("Setup(%q): %v", endpoint, err)
		}
		if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
			t.Errorf("Setup(%q) left a provider nil", endpoint)
		}
		if err := providers.Shutdown(ctx); err != nil {
			t.Errorf("shutdown should be a no-op, got %v", err)
		}
	}
}

func TestParseTarget(t *testing.T) {
	testCases := []struct {
		name         string
		endpoint     string
		force        bool
		wantHost     string
		wantInsecure bool
		wantErr      bool
	}{
		{"bare host", "localhost:4317", false, "localhost:4317", true, false},
		{"http", "http://collector:4317", false, "collector:4317", true, false},
		{"https", "https://collector:4317", false, "collector:4317", false, false},
		{"https forced insecure", "https://collector:4317", true, "collector:4317", true, false},
		{"path dropped", "http://localhost:4317/v1/traces", false, "localhost:4317", true, false},
		{"query dropped", "http://localhost:4317?x=1", false, "localhost:4317", true, false},
		{"missing host", "http://", false, "", false, true},
		{"malformed", "http://[invalid", false, "", false, true},
		{"no scheme name", "://invalid", false, "", false, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTarget(tc.endpoint, tc.force)
			if tc.wantErr {
				if err == nil {
					t.Errorf("ParseTarget(%q) = %+v, want error", tc.endpoint, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTarget(%q): %v", tc.endpoint, err)
			}
			if got.HostPort != tc.wantHost || got.Insecure != tc.wantInsecure {
				t.Errorf("ParseTarget(%q) = %+v", tc.endpoint, got)
			}
		})
	}
}

func TestSetup_InvalidEndpoint(t *testing.T) {
	if _, err := Setup(context.Background(), Options{Endpoint: "http://", ServiceName: "esign-server"}); err == nil {
		t.Fatal("expected error for endpoint without host")
	}
}

func TestNewResource(t *testing.T) {
	res, err := newResource(Options{ServiceName: "esign-server", ServiceVersion: "1.2.0", Environment: "staging"})
	if err != nil {
		t.Fatalf("newResource: %v", err)
	}
	found := map[string]string{}
	for _, kv := range res.Attributes() {
		found[string(kv.Key)] = kv.Value.Emit()
	}
	if found["service.name"] != "esign-server" || found["service.version"] != "1.2.0" {
		t.Errorf("attributes = %v", found)
	}
}

func TestSetGlobal(t *testing.T) {
	ctx := context.Background()
	oldTP, oldMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	defer func() {
		otel.SetTracerProvider(oldTP)
		otel.SetMeterProvider(oldMP)
	}()

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(ctx) }()
	(&Providers{TracerProvider: tp}).SetGlobal()
	if otel.GetTracerProvider() != tp {
		t.Error("TracerProvider not installed")
	}
	if otel.GetMeterProvider() != oldMP {
		t.Error("nil MeterProvider replaced the global one")
	}
}
