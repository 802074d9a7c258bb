package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emergingrobotics/go-imgaccel/pkg/config"
	"github.com/emergingrobotics/go-imgaccel/pkg/device"
	"github.com/emergingrobotics/go-imgaccel/pkg/driver"
	"github.com/emergingrobotics/go-imgaccel/pkg/logging"
	"github.com/emergingrobotics/go-imgaccel/pkg/pipeline"
)

// app holds the global flags and what is built from them
type app struct {
	configPath string
	logLevel   string
	logFile    string
	timeout    time.Duration
	deviceName string

	cfg      *config.Config
	log      *zap.Logger
	closeLog func() error
}

func newRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:          "imgaccel",
		Short:        "Accelerated image resize and color conversion",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	a.addGlobalFlags(cmd)
	cmd.AddCommand(
		a.resizeCommand(),
		a.convertCommand(),
		a.backendsCommand(),
		newVersionCommand(),
	)
	return cmd
}

func (a *app) addGlobalFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "YAML config file")
	f.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.StringVar(&a.logFile, "log-file", "", "also log to this file, rotated")
	f.DurationVar(&a.timeout, "timeout", 0, "time limit for the whole transform, including device sync (0 uses the config value)")
	f.StringVar(&a.deviceName, "device", "", "device name (default from config)")
}

// setup loads the config, applies flag overrides and installs the logger.
// Subcommands call it so they also work when executed on their own.
func (a *app) setup() error {
	if a.cfg != nil {
		return nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFile != "" {
		cfg.Log.File = a.logFile
	}
	if a.timeout > 0 {
		cfg.SyncTimeout = a.timeout
	}
	if a.deviceName != "" {
		cfg.Device = a.deviceName
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	logging.SetLogger(log)

	a.cfg = cfg
	a.log = log
	a.closeLog = closeLog
	return nil
}

func (a *app) close() error {
	if a.closeLog == nil {
		return nil
	}
	err := a.closeLog()
	a.closeLog = nil
	logging.SetLogger(nil)
	return err
}

// transformFlags are the per-command overrides of the config
type transformFlags struct {
	backend string
	interp  string
	border  string
}

func (t *transformFlags) add(cmd *cobra.Command, withResample bool) {
	cmd.Flags().StringVar(&t.backend, "backend", "", "backend selector: vic, cuda, cpu or a combination like vic+cuda")
	if withResample {
		cmd.Flags().StringVar(&t.interp, "interp", "", "interpolation: nearest, linear, catmull-rom, lanczos3")
		cmd.Flags().StringVar(&t.border, "border", "", "border policy: clamp, zero")
	}
}

// pipeline opens the configured device and builds a pipeline with the
// flag overrides applied. The returned function closes the device.
func (a *app) pipeline(t transformFlags) (*pipeline.Pipeline, driver.Backend, func(), error) {
	cfg := *a.cfg
	if t.backend != "" {
		cfg.Backend = t.backend
	}
	if t.interp != "" {
		cfg.Interpolation = t.interp
	}
	if t.border != "" {
		cfg.Border = t.border
	}
	if err := cfg.Validate(); err != nil {
		return nil, 0, nil, err
	}

	mask, err := cfg.BackendMask()
	if err != nil {
		return nil, 0, nil, err
	}
	opts, err := cfg.PipelineOptions()
	if err != nil {
		return nil, 0, nil, err
	}

	dev, err := device.Open(cfg.Device)
	if err != nil {
		return nil, 0, nil, err
	}
	closeDev := func() {
		if err := dev.Close(); err != nil {
			a.log.Warn("device close failed", zap.Error(err))
		}
	}

	opts = append(opts, pipeline.WithLogger(a.log))
	return pipeline.New(dev, opts...), mask, closeDev, nil
}

func (a *app) syncContext(parent context.Context) (context.Context, context.CancelFunc) {
	return a.cfg.SyncContext(parent)
}
