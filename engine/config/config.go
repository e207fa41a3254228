package config

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer"
	"github.com/Carmen-Shannon/oxy-skin/engine/skinning"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidAlignment is returned when an alignment is neither 0 nor a power of two.
	ErrInvalidAlignment = errors.New("config: alignment must be 0 or a power of two")

	// ErrInvalidWorkers is returned when the skinning worker count is below 1.
	ErrInvalidWorkers = errors.New("config: skinning workers must be at least 1")

	// ErrInvalidLog is returned for unknown log levels or formats.
	ErrInvalidLog = errors.New("config: invalid log settings")

	// ErrUnsupportedFormat is returned for config files that are neither YAML nor TOML.
	ErrUnsupportedFormat = errors.New("config: unsupported file format")
)

// Format identifies the encoding of a config file.
type Format int

const (
	// FormatYAML decodes with gopkg.in/yaml.v3.
	FormatYAML Format = iota
	// FormatTOML decodes with go-toml/v2.
	FormatTOML
)

// Config is the file configuration for an engine.
type Config struct {
	Renderer RendererConfig `yaml:"renderer" toml:"renderer"`
	Skinning SkinningConfig `yaml:"skinning" toml:"skinning"`
	Engine   EngineConfig   `yaml:"engine" toml:"engine"`
	Log      LogConfig      `yaml:"log" toml:"log"`
}

// RendererConfig controls the headless GPU device.
type RendererConfig struct {
	// Enabled creates a GPU device. When false the engine packs without uploading.
	Enabled bool `yaml:"enabled" toml:"enabled"`
	// ForceSoftware requests a CPU fallback adapter.
	ForceSoftware bool `yaml:"force_software" toml:"force_software"`
	// StorageAlignment is the requested minimum storage-buffer offset alignment; 0 keeps the device default.
	StorageAlignment uint32 `yaml:"storage_alignment" toml:"storage_alignment"`
}

// SkinningConfig controls the bone packer.
type SkinningConfig struct {
	Workers int `yaml:"workers" toml:"workers"`
	// Alignment is used when no renderer reports one.
	Alignment uint32 `yaml:"alignment" toml:"alignment"`
}

// EngineConfig controls the frame loop.
type EngineConfig struct {
	TickRate  float64 `yaml:"tick_rate" toml:"tick_rate"`
	Profiling bool    `yaml:"profiling" toml:"profiling"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used when no file is given.
//
// Returns:
//   - Config: headless packing with one worker, 256-byte alignment and info-level text logs
func Default() Config {
	return Config{
		Skinning: SkinningConfig{
			Workers:   1,
			Alignment: renderer.DefaultStorageBufferOffsetAlignment,
		},
		Engine: EngineConfig{
			TickRate: 60,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and validates a config file. The format is chosen by extension
// (.yaml/.yml or .toml). Fields missing from the file keep their Default values.
//
// Parameters:
//   - path: the config file path
//
// Returns:
//   - Config: the loaded configuration
//   - error: error if the file cannot be read, decoded or validated
func Load(path string) (Config, error) {
	var format Format
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	case ".toml":
		format = FormatTOML
	default:
		return Config{}, errors.Wrapf(ErrUnsupportedFormat, "%q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to read config %s", path)
	}

	cfg, err := Decode(bytes.NewReader(data), format)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Decode reads a config in the given format on top of Default and validates it.
// Unknown keys are rejected.
//
// Parameters:
//   - r: the encoded config
//   - format: FormatYAML or FormatTOML
//
// Returns:
//   - Config: the decoded configuration
//   - error: error if decoding or validation fails
func Decode(r io.Reader, format Format) (Config, error) {
	cfg := Default()

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && err != io.EOF {
			return Config{}, errors.Wrap(err, "failed to decode yaml")
		}
	case FormatTOML:
		if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&cfg); err != nil {
			return Config{}, errors.Wrap(err, "failed to decode toml")
		}
	default:
		return Config{}, errors.Wrapf(ErrUnsupportedFormat, "format %d", format)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks alignments, worker count and log settings.
//
// Returns:
//   - error: the first invalid setting, wrapping one of the Err* values
func (c Config) Validate() error {
	if a := c.Renderer.StorageAlignment; a != 0 && !common.IsPowerOfTwo(a) {
		return errors.Wrapf(ErrInvalidAlignment, "renderer.storage_alignment %d", a)
	}
	if a := c.Skinning.Alignment; a != 0 && !common.IsPowerOfTwo(a) {
		return errors.Wrapf(ErrInvalidAlignment, "skinning.alignment %d", a)
	}
	if c.Skinning.Workers < 1 {
		return errors.Wrapf(ErrInvalidWorkers, "skinning.workers %d", c.Skinning.Workers)
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return errors.Wrapf(ErrInvalidLog, "log.format %q", c.Log.Format)
	}
	return nil
}

// PackerOptions returns the skinning options described by the config.
//
// Returns:
//   - []skinning.PackerBuilderOption: options for skinning.NewPacker
func (c Config) PackerOptions() []skinning.PackerBuilderOption {
	return []skinning.PackerBuilderOption{
		skinning.WithWorkers(c.Skinning.Workers),
	}
}

// RendererOptions returns the renderer options described by the config.
//
// Returns:
//   - []renderer.RendererBuilderOption: options for renderer.NewRenderer
func (c Config) RendererOptions() []renderer.RendererBuilderOption {
	return []renderer.RendererBuilderOption{
		renderer.WithForceSoftwareRenderer(c.Renderer.ForceSoftware),
		renderer.WithStorageBufferOffsetAlignment(c.Renderer.StorageAlignment),
	}
}

// FallbackAlignment returns the alignment the packer uses when no renderer is attached.
// A configured renderer alignment takes precedence over the skinning one.
//
// Returns:
//   - skinning.FixedAlignment: the headless alignment
func (c Config) FallbackAlignment() skinning.FixedAlignment {
	return skinning.FixedAlignment(common.Coalesce(c.Renderer.StorageAlignment, c.Skinning.Alignment))
}

// NewLogger builds a slog logger writing to w with the configured level and handler.
//
// Parameters:
//   - w: the log destination
//
// Returns:
//   - *slog.Logger: the logger
//   - error: error if the level or format is unknown
func (c Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := c.Log.level()
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(c.Log.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, errors.Wrapf(ErrInvalidLog, "log.format %q", c.Log.Format)
	}
}

func (l LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, errors.Wrapf(ErrInvalidLog, "log.level %q", l.Level)
	}
	return level, nil
}
