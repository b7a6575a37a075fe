package tracing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewProvider_DisabledIsNoop(t *testing.T) {
	p, err := NewProvider(DefaultConfig())
	require.NoError(t, err)
	require.False(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), "noop")
	require.False(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_FileExporterWritesSpans(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.FilePath = filepath.Join(t.TempDir(), "nested", "traces.jsonl")

	p, err := NewProvider(cfg)
	require.NoError(t, err)
	require.True(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), "affine")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	content, err := os.ReadFile(cfg.FilePath)
	require.NoError(t, err)
	require.Contains(t, string(content), `"Name":"affine"`)
}

func TestNewProvider_FileExporterNeedsPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	_, err := NewProvider(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "file_path required")
}

func TestNewProvider_UnknownExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Exporter = "zipkin"

	_, err := NewProvider(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported exporter type")
}

func TestNewProvider_NoneExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Exporter = "none"

	p, err := NewProvider(cfg)
	require.NoError(t, err)

	_, span := p.Tracer().Start(context.Background(), "step")
	require.True(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))
}
