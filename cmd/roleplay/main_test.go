package main

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type countingExporter struct {
	mu    sync.Mutex
	spans int
}

func (e *countingExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spans += len(spans)
	return nil
}

func (e *countingExporter) Shutdown(context.Context) error { return nil }

func (e *countingExporter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.spans
}

func useBatchingTracer(t *testing.T) *countingExporter {
	t.Helper()
	exp := &countingExporter{}
	orig := initTracer
	initTracer = func(ctx context.Context, serviceName, version string) (*sdktrace.TracerProvider, error) {
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
		_, span := tp.Tracer("test").Start(ctx, "pending")
		span.End()
		return tp, nil
	}
	t.Cleanup(func() { initTracer = orig })
	return exp
}

func TestRun_FailureFlushesSpans(t *testing.T) {
	exp := useBatchingTracer(t)

	code := run([]string{"validate-prompt", filepath.Join(t.TempDir(), "missing.txt")})
	require.Equal(t, 1, code)
	assert.Equal(t, 1, exp.count())
}

func TestRun_Success(t *testing.T) {
	exp := useBatchingTracer(t)

	assert.Equal(t, 0, run([]string{"version"}))
	assert.Equal(t, 1, exp.count())
}
