package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/cwrk-planet/pointing-poker/pkg/logger"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestDetectEnv(t *testing.T) {
	t.Setenv("APP_ENV", "")
	if got := logger.DetectEnv(); got != logger.EnvDev {
		t.Fatalf("default should be dev, got %q", got)
	}

	t.Setenv("APP_ENV", "staging")
	if got := logger.DetectEnv(); got != logger.EnvStage {
		t.Fatalf("expected stage, got %q", got)
	}

	t.Setenv("APP_ENV", "Production")
	if got := logger.DetectEnv(); got != logger.EnvProd {
		t.Fatalf("expected prod, got %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := logger.ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := logger.ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if _, err := logger.ParseBackend("syslog"); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestInit_DevStd_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{
		Service:   "demo",
		Version:   "v0.0.1",
		Env:       logger.EnvDev,
		Backend:   logger.BackendStd,
		Level:     slog.LevelDebug,
		AddSource: true,
		Output:    &buf,
	})
	slog.Info("Hello world")

	out := buf.String()
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Fatalf("expected text output in dev/std, got JSON: %s", out)
	}
	for _, want := range []string{"Hello world", "service=demo", "env=dev"} {
		if !strings.Contains(out, want) {
			t.Fatalf("%q missing: %s", want, out)
		}
	}
}

func TestInit_ProdStd_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{
		Service: "demo",
		Env:     logger.EnvProd,
		Backend: logger.BackendStd,
		Output:  &buf,
	})
	slog.Debug("hidden")
	slog.Warn("shown")

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("expected one JSON line, got %s, err=%v", buf.String(), err)
	}
	if m["msg"] != "shown" || m["env"] != "prod" {
		t.Fatalf("unexpected record: %v", m)
	}
}

func TestInit_ProdZap_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{
		Service:          "demo",
		Version:          "1.2.3",
		Env:              logger.EnvProd,
		Backend:          logger.BackendZap,
		Level:            slog.LevelInfo,
		SampleInitial:    100000,
		SampleThereafter: 100000,
		Output:           &buf,
	})
	slog.Info("booted", slog.String("k", "v"))
	if err := logger.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("expected JSON line, got %s, err=%v", buf.String(), err)
	}

	if m["msg"] != "booted" {
		t.Fatalf("msg mismatch: %v", m["msg"])
	}
	if m["service"] != "demo" || m["env"] != "prod" || m["version"] != "1.2.3" {
		t.Fatalf("attrs missing: service=%v env=%v version=%v", m["service"], m["env"], m["version"])
	}
	if m["level"] != "INFO" {
		t.Fatalf("level mismatch: %v", m["level"])
	}
	if m["k"] != "v" {
		t.Fatalf("custom field missing: %v", m["k"])
	}
}

func TestTraceIDsArePropagated(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	for _, backend := range []logger.Backend{logger.BackendStd, logger.BackendZap} {
		var buf bytes.Buffer
		logger.Init(logger.Config{
			Service:          "demo",
			Env:              logger.EnvProd,
			Backend:          backend,
			SampleInitial:    100000,
			SampleThereafter: 100000,
			Output:           &buf,
		})
		slog.InfoContext(ctx, "with trace")
		_ = logger.Sync()

		var m map[string]any
		if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
			t.Fatalf("%s: expected JSON, got: %s, err=%v", backend, buf.String(), err)
		}
		if m["trace_id"] != span.SpanContext().TraceID().String() || m["span_id"] == nil {
			t.Fatalf("%s: trace_id/span_id missing in log: %v", backend, m)
		}
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := logger.Init(logger.Config{Env: logger.EnvDev, Output: &buf})

	if got := logger.FromContext(context.Background()); got != base {
		t.Fatal("expected the global logger without a scoped one")
	}

	scoped := base.With(slog.String("req_id", "r-1"))
	ctx := logger.WithContext(context.Background(), scoped)
	logger.FromContext(ctx).Info("scoped")

	if !strings.Contains(buf.String(), "req_id=r-1") {
		t.Fatalf("scoped attrs missing: %s", buf.String())
	}
}

func TestInit_InstanceID(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{Service: "demo", Env: logger.EnvProd, Backend: logger.BackendStd, Output: &buf})
	slog.Info("first")

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("expected JSON line, got %s, err=%v", buf.String(), err)
	}
	id, _ := m["instance_id"].(string)
	if id == "" || !strings.Contains(id, "-") {
		t.Fatalf("generated instance_id should be host-uuid, got %q", id)
	}
	if _, ok := m["started_at"]; !ok {
		t.Fatalf("started_at missing: %s", buf.String())
	}

	buf.Reset()
	logger.Init(logger.Config{Service: "demo", Env: logger.EnvProd, Backend: logger.BackendStd, InstanceID: "pod-7", Output: &buf})
	slog.Info("second")
	if !strings.Contains(buf.String(), `"instance_id":"pod-7"`) {
		t.Fatalf("explicit instance_id lost: %s", buf.String())
	}
}

func TestAttrsFromCtx_NoSpan(t *testing.T) {
	if attrs := logger.AttrsFromCtx(context.Background()); attrs != nil {
		t.Fatalf("expected no attrs without a span, got %v", attrs)
	}
}
