package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/macropulse/macropulse/internal/config"
	"github.com/macropulse/macropulse/internal/log"
)

const (
	envPrefix         = "MACROPULSE"
	localConfigPath   = ".macropulse/config.yaml"
	defaultConfigName = "config"
)

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config
	configErr error
	layout    config.Layout

	// createdConfig is the default config written during this invocation.
	createdConfig string

	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "macropulse",
	Short: "Refresh macro liquidity data and publish it",
	Long: `macropulse fetches macro liquidity series, computes the liquidity regime and
composite score, and publishes the result as a single JSON artifact. A changed
artifact is committed and pushed so the static site redeploys.

A run whose result equals the published artifact changes nothing and exits 0.
A failed run leaves the published artifact as it was and exits non-zero.

Examples:
  macropulse                  # full pipeline
  macropulse --mode brief     # refresh only the daily brief
  macropulse --dry-run        # compute and compare, write nothing`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) { teardown() },
	RunE:              runPipeline,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .macropulse/config.yaml, then ~/.config/macropulse/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"log at debug level")

	addRunFlags(rootCmd)
}

func addRunFlags(c *cobra.Command) {
	c.Flags().String("mode", "full", "pipeline to run: full or brief")
	c.Flags().String("start", "", "history start date, YYYY-MM-DD (default from fetch.start)")
	c.Flags().Bool("clear-cache", false, "purge the series cache before fetching")
	c.Flags().Bool("no-brief", false, "full mode without the daily brief")
	c.Flags().Bool("no-push", false, "publish locally, skip distribution")
	c.Flags().Bool("dry-run", false, "compute and compare, write nothing")
	c.Flags().BoolP("quiet", "q", false, "print only the final summary")
}

func initConfig() {
	configErr = loadConfig(viper.GetViper())
}

// loadConfig reads the config file, the environment and the defaults into cfg.
func loadConfig(v *viper.Viper) error {
	if err := setDefaults(v); err != nil {
		return err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .macropulse/config.yaml (current directory)
		// 2. ~/.config/macropulse/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			v.SetConfigFile(localConfigPath)
		} else {
			home, err := homedir.Dir()
			if err == nil {
				v.AddConfigPath(filepath.Join(home, ".config", "macropulse"))
			}
			v.SetConfigName(defaultConfigName)
			v.SetConfigType("yaml")
		}
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case errors.As(err, &notFound):
		// No config file found anywhere - create default at .macropulse/config.yaml
		if werr := config.WriteDefaultConfig(localConfigPath); werr == nil {
			createdConfig = localConfigPath
			v.SetConfigFile(localConfigPath)
			_ = v.ReadInConfig()
		}
	case err != nil:
		return fmt.Errorf("reading config: %w", err)
	}

	// Secrets may live in a .env beside the config file or in the working
	// directory. Variables already set win.
	if used := v.ConfigFileUsed(); used != "" {
		_ = godotenv.Load(filepath.Join(filepath.Dir(used), ".env"))
	}
	_ = godotenv.Load()

	var out config.Config
	if err := v.Unmarshal(&out); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	cfg = out
	return nil
}

// setDefaults registers every leaf of config.Defaults() so environment
// overrides apply to keys absent from the file.
func setDefaults(v *viper.Viper) error {
	raw, err := yaml.Marshal(config.Defaults())
	if err != nil {
		return fmt.Errorf("encoding defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("decoding defaults: %w", err)
	}
	walkDefaults(v, "", tree)
	v.SetDefault("store.dsn", "")
	return nil
}

func walkDefaults(v *viper.Viper, prefix string, node map[string]any) {
	for k, val := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		// Watchlists are keyed by market and replaced as a whole.
		if m, ok := val.(map[string]any); ok && len(m) > 0 && k != "watchlist" {
			walkDefaults(v, key, m)
			continue
		}
		v.SetDefault(key, val)
	}
}

// setup validates config, resolves paths and starts logging. Commands that
// only touch the config file skip it.
func setup(cmd *cobra.Command, _ []string) error {
	if configErr != nil {
		return configErr
	}
	if cmd.Annotations["skipSetup"] == "true" {
		return nil
	}
	debug := debugFlag || os.Getenv(envPrefix+"_DEBUG") != ""

	l, err := cfg.ResolveLayout()
	if err != nil {
		return fmt.Errorf("resolving paths: %w", err)
	}
	layout = l

	cleanup, err := log.Init(log.Options{Path: layout.LogFile, Console: os.Stderr, Debug: debug})
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	logCleanup = cleanup
	if debug {
		log.SetMinLevel(log.LevelDebug)
	}
	log.Debug(log.CatConfig, "Config loaded", "file", viper.ConfigFileUsed(), "root", layout.Root)
	return nil
}

func teardown() {
	if logCleanup != nil {
		logCleanup()
		logCleanup = nil
	}
}

// Execute runs the root command
func Execute() error {
	defer teardown()
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
