package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/platinummonkey/conflictmapper/pkg/bootstrap"
	"github.com/platinummonkey/conflictmapper/pkg/config"
	"github.com/platinummonkey/conflictmapper/pkg/observability"
)

// commonFlags are accepted by every command that needs configuration
type commonFlags struct {
	configPath string
	pluginsDir string
	driver     string
	dsn        string
	mode       string
	logLevel   string
	asJSON     bool
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	f := &commonFlags{}
	fs.StringVar(&f.configPath, "config", "", "Path to a YAML config file")
	fs.StringVar(&f.pluginsDir, "plugins", "", "Plugins root directory (overrides config)")
	fs.StringVar(&f.driver, "driver", "", "Storage driver: sqlite or postgres (overrides config)")
	fs.StringVar(&f.dsn, "db", "", "Storage DSN (overrides config)")
	fs.StringVar(&f.mode, "mode", "", "Scan mode: all or active-only (overrides config)")
	fs.StringVar(&f.logLevel, "log-level", "warn", "Log level")
	fs.BoolVar(&f.asJSON, "json", false, "Print JSON instead of text")
	return f
}

// load reads the config file and environment, then applies flag overrides
func (f *commonFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	if f.pluginsDir != "" {
		cfg.Scan.PluginsRoot = f.pluginsDir
	}
	if f.driver != "" {
		cfg.Storage.Driver = f.driver
	}
	if f.dsn != "" {
		cfg.Storage.DSN = f.dsn
	}
	if f.mode != "" {
		cfg.Scan.Mode = f.mode
	}
	cfg.Observability.LogLevel = f.logLevel
	cfg.Observability.MetricsEnabled = false

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// runtime loads the configuration and builds the components it names
func (f *commonFlags) runtime() (*bootstrap.Runtime, error) {
	cfg, err := f.load()
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stderr)
	if err != nil {
		return nil, err
	}

	return bootstrap.Build(cfg, logger)
}

// commandContext is cancelled on SIGINT or SIGTERM
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}
