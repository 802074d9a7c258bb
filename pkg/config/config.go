// Package config loads imgaccel settings from an optional YAML file and
// IMGACCEL_* environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/emergingrobotics/go-imgaccel/pkg/driver"
	"github.com/emergingrobotics/go-imgaccel/pkg/logging"
	"github.com/emergingrobotics/go-imgaccel/pkg/pipeline"
)

// EnvPrefix prefixes every environment override, e.g. IMGACCEL_BACKEND
// or IMGACCEL_LOG_LEVEL
const EnvPrefix = "IMGACCEL"

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the settings shared by the CLI commands
type Config struct {
	// Device is the registered device name
	Device string `mapstructure:"device" yaml:"device" default:"software" validate:"required"`

	// Backend is a selector such as "vic" or "vic+cuda"
	Backend string `mapstructure:"backend" yaml:"backend" default:"vic" validate:"required,backend"`

	Interpolation string `mapstructure:"interpolation" yaml:"interpolation" default:"linear" validate:"required,interp"`
	Border        string `mapstructure:"border" yaml:"border" default:"clamp" validate:"required,border"`

	// SyncTimeout bounds each resize or convert call, device sync included.
	// Zero waits forever.
	SyncTimeout time.Duration `mapstructure:"sync-timeout" yaml:"sync-timeout" default:"30s" validate:"gte=0"`

	Log logging.Config `mapstructure:"log" yaml:"log"`
}

// Default returns a Config with every default applied
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		// only reachable with a malformed default tag
		panic(err)
	}
	return cfg
}

// Load reads path (skipped when empty) and the environment on top of the
// defaults, then validates the result
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key with viper so environment variables
// are seen by Unmarshal even when the file does not mention them
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("device", cfg.Device)
	v.SetDefault("backend", cfg.Backend)
	v.SetDefault("interpolation", cfg.Interpolation)
	v.SetDefault("border", cfg.Border)
	v.SetDefault("sync-timeout", cfg.SyncTimeout)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.max-size", cfg.Log.MaxSize)
	v.SetDefault("log.max-backups", cfg.Log.MaxBackups)
	v.SetDefault("log.max-age", cfg.Log.MaxAge)
	v.SetDefault("log.compress", cfg.Log.Compress)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("backend", func(fl validator.FieldLevel) bool {
		_, err := driver.ParseBackend(fl.Field().String())
		return err == nil
	})
	v.RegisterValidation("interp", func(fl validator.FieldLevel) bool {
		_, err := driver.ParseInterp(fl.Field().String())
		return err == nil
	})
	v.RegisterValidation("border", func(fl validator.FieldLevel) bool {
		_, err := driver.ParseBorder(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks every field
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s=%v fails %q", fe.Namespace(), fe.Value(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

// BackendMask parses Backend
func (c *Config) BackendMask() (driver.Backend, error) {
	return driver.ParseBackend(c.Backend)
}

// PipelineOptions converts the resampling settings to pipeline options
func (c *Config) PipelineOptions() ([]pipeline.Option, error) {
	interp, err := driver.ParseInterp(c.Interpolation)
	if err != nil {
		return nil, err
	}
	border, err := driver.ParseBorder(c.Border)
	if err != nil {
		return nil, err
	}
	return []pipeline.Option{
		pipeline.WithInterpolation(interp),
		pipeline.WithBorder(border),
	}, nil
}

// SyncContext derives the context for one transform call, bounded by
// SyncTimeout
func (c *Config) SyncContext(parent context.Context) (context.Context, context.CancelFunc) {
	if c.SyncTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.SyncTimeout)
}
