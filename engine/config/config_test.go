package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.Renderer.Enabled)
	assert.Equal(t, 1, cfg.Skinning.Workers)
	assert.Equal(t, uint32(256), cfg.Skinning.Alignment)
	assert.Equal(t, uint32(256), cfg.FallbackAlignment().MinStorageBufferOffsetAlignment())
	assert.Len(t, cfg.PackerOptions(), 1)
	assert.Len(t, cfg.RendererOptions(), 2)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "engine.yaml", `
renderer:
  enabled: true
  storage_alignment: 32
skinning:
  workers: 4
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Renderer.Enabled)
	assert.Equal(t, uint32(32), cfg.Renderer.StorageAlignment)
	assert.Equal(t, 4, cfg.Skinning.Workers)
	assert.Equal(t, uint32(256), cfg.Skinning.Alignment, "unset keys keep their defaults")
	assert.Equal(t, 60.0, cfg.Engine.TickRate)
	assert.Equal(t, uint32(32), cfg.FallbackAlignment().MinStorageBufferOffsetAlignment())
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "engine.toml", `
[skinning]
workers = 2
alignment = 64

[engine]
tick_rate = 30.0
profiling = true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Skinning.Workers)
	assert.Equal(t, uint32(64), cfg.Skinning.Alignment)
	assert.Equal(t, 30.0, cfg.Engine.TickRate)
	assert.True(t, cfg.Engine.Profiling)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestDecodeEmptyYAML(t *testing.T) {
	cfg, err := Decode(strings.NewReader(""), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestInvalidConfigs(t *testing.T) {
	_, err := Decode(strings.NewReader("skinning:\n  alignment: 48\n"), FormatYAML)
	assert.True(t, errors.Is(err, ErrInvalidAlignment))

	_, err = Decode(strings.NewReader("[renderer]\nstorage_alignment = 100\n"), FormatTOML)
	assert.True(t, errors.Is(err, ErrInvalidAlignment))

	_, err = Decode(strings.NewReader("skinning:\n  workers: 0\n"), FormatYAML)
	assert.True(t, errors.Is(err, ErrInvalidWorkers))

	_, err = Decode(strings.NewReader("log:\n  level: loud\n"), FormatYAML)
	assert.True(t, errors.Is(err, ErrInvalidLog))

	_, err = Decode(strings.NewReader("log:\n  format: xml\n"), FormatYAML)
	assert.True(t, errors.Is(err, ErrInvalidLog))

	_, err = Decode(strings.NewReader("skinning:\n  threads: 2\n"), FormatYAML)
	assert.Error(t, err, "unknown yaml keys are rejected")

	_, err = Decode(strings.NewReader("[skinning]\nthreads = 2\n"), FormatTOML)
	assert.Error(t, err, "unknown toml keys are rejected")

	_, err = Load(writeFile(t, "engine.ini", ""))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	var buf bytes.Buffer
	l, err := cfg.NewLogger(&buf)
	require.NoError(t, err)

	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown", "skins", 3)
	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "shown", record["msg"])
	assert.Equal(t, float64(3), record["skins"])

	cfg.Log.Format = "text"
	buf.Reset()
	l, err = cfg.NewLogger(&buf)
	require.NoError(t, err)
	l.Warn("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}
