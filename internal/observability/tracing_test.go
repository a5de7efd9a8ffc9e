package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/iti/ecmsim/internal/logging"
	"go.opentelemetry.io/otel"
)

func TestInitTracingDisabledIsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "ignored")
	if span.SpanContext().IsValid() {
		t.Fatalf("noop provider produced a recording span")
	}
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitTracingWritesSpans(t *testing.T) {
	var out bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:     true,
		ServiceName: "ecmsim-test",
		SampleRatio: 1,
		Writer:      &out,
	}, logging.Noop())
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	t.Cleanup(func() {
		_, _ = InitTracing(context.Background(), TracingConfig{}, nil)
	})

	_, span := otel.Tracer("test").Start(context.Background(), "ecmsim.run")
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, nil)

	if !strings.Contains(out.String(), "ecmsim.run") || !strings.Contains(out.String(), "ecmsim-test") {
		t.Fatalf("exported spans missing name or service:\n%s", out.String())
	}
}

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("ECMSIM_TRACING_ENABLED", "TRUE")
	t.Setenv("ECMSIM_TRACING_SERVICE_NAME", "")
	t.Setenv("ECMSIM_TRACING_SAMPLE_RATIO", "2.5")

	cfg := TracingConfigFromEnv()
	if !cfg.Enabled || cfg.ServiceName != "ecmsim" || cfg.SampleRatio != 1.0 {
		t.Fatalf("TracingConfigFromEnv() = %+v", cfg)
	}

	t.Setenv("ECMSIM_TRACING_SAMPLE_RATIO", "0.25")
	if got := TracingConfigFromEnv().SampleRatio; got != 0.25 {
		t.Fatalf("SampleRatio = %v, want 0.25", got)
	}
}
