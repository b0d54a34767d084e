// Package cmd provides the ginja command-line interface. Configuration
// comes from flags, GINJA_ environment variables and a .ginja.yml file,
// in that order of precedence.
package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ginja-dev/ginja/internal/config"
	"github.com/ginja-dev/ginja/internal/environment"
	"github.com/ginja-dev/ginja/internal/logging"
	"github.com/ginja-dev/ginja/internal/registry"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ginja",
	Short: "Reactive Jinja-style template engine with live preview",
	Long: `ginja renders Jinja-style templates bound to live data: expressions
stay subscribed to the variables they read, and output updates
incrementally when the data changes.

Quick start:
  ginja render page.html --context data.yml   Render a template once
  ginja serve                                 Preview templates with live reload
  ginja list                                  List available templates`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default .ginja.yml, or GINJA_CONFIG_FILE)")
	pf.StringP("templates", "t", "", "template directory")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (text, json)")

	bind(pf, "templates.dir", "templates")
	bind(pf, "log.level", "log-level")
	bind(pf, "log.format", "log-format")
}

// bind wires a flag into the viper key, but only when the flag was set,
// so file and environment values survive unset flags.
func bind(fs *pflag.FlagSet, key, flag string) {
	f := fs.Lookup(flag)
	if f == nil {
		panic("unknown flag " + flag)
	}
	cobra.OnInitialize(func() {
		if f.Changed {
			viper.Set(key, f.Value.String())
		}
	})
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if env := os.Getenv("GINJA_CONFIG_FILE"); env != "" {
		viper.SetConfigFile(env)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".ginja")
	}

	viper.SetEnvPrefix("GINJA")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	config.SetDefaults(viper.GetViper())

	// A missing config file is fine; defaults apply.
	_ = viper.ReadInConfig()
}

// setup loads the validated configuration and builds the logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(&logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// newEnvironment builds the template environment described by cfg.
func newEnvironment(cfg *config.Config) *environment.Environment {
	opts := []environment.Option{
		environment.WithLoader(environment.NewFSLoader(cfg.Templates.Dir, cfg.Templates.Extensions...)),
		environment.WithDelimiters(
			cfg.Render.BlockStart, cfg.Render.BlockEnd,
			cfg.Render.VariableStart, cfg.Render.VariableEnd,
		),
	}
	if cfg.Render.TrimBlocks {
		opts = append(opts, environment.WithTrimBlocks())
	}
	if cfg.Render.LstripBlocks {
		opts = append(opts, environment.WithLstripBlocks())
	}
	if cfg.Render.StrictUndefined {
		opts = append(opts, environment.WithStrictUndefined())
	}
	if cfg.Render.Autoescape {
		opts = append(opts, environment.WithAutoescape())
	}
	return environment.New(opts...)
}

func newRegistry(cfg *config.Config) *registry.Registry {
	return registry.New(newEnvironment(cfg))
}
