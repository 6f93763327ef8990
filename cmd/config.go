package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/macropulse/macropulse/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "Manage the config file",
	Annotations: map[string]string{"skipSetup": "true"},
}

var configInitCmd = &cobra.Command{
	Use:         "init [path]",
	Short:       "Write the commented default config",
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{"skipSetup": "true"},
	RunE:        runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Print the effective config",
	Long:        `Print the effective config after defaults, file and environment are merged. Secrets are only reported as set or unset.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{"skipSetup": "true"},
	RunE:        runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a value in the config file",
	Long: `Set a dotted key in the config file, keeping its comments. The value is
parsed as YAML.

Examples:
  macropulse config set distribution.branch gh-pages
  macropulse config set signal.change_windows "[1, 5, 20]"
  macropulse config set flags.s3-mirror true`,
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{"skipSetup": "true"},
	RunE:        runConfigSet,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configSetCmd)
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := localConfigPath
	if len(args) == 1 {
		path = args[0]
	}
	if path == createdConfig && !configForce {
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	}
	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.WriteDefaultConfig(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	return writeConfig(cmd.OutOrStdout(), cfg, viper.ConfigFileUsed(), config.LoadSecrets())
}

// writeConfig prints c as YAML followed by the secret status. Secret values
// are never printed.
func writeConfig(w io.Writer, c config.Config, file string, s config.Secrets) error {
	if file != "" {
		fmt.Fprintf(w, "# file: %s\n", file)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}

	fmt.Fprintln(w, "# secrets (environment only)")
	for _, sec := range []struct {
		name string
		val  string
	}{
		{config.EnvFREDAPIKey, s.FREDAPIKey},
		{config.EnvAnalysisAPIKey, s.AnalysisAPIKey},
		{config.EnvGitToken, s.GitToken},
		{config.EnvS3AccessKey, s.S3AccessKey},
		{config.EnvS3SecretKey, s.S3SecretKey},
	} {
		fmt.Fprintf(w, "#   %s: %s\n", sec.name, setOrUnset(sec.val))
	}
	if c.Store.Driver == "postgres" {
		fmt.Fprintf(w, "#   %s_STORE_DSN: %s\n", envPrefix, redactDSN(c.Store.DSN))
	}
	return nil
}

func setOrUnset(v string) string {
	if v == "" {
		return "unset"
	}
	return "set"
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	path := viper.ConfigFileUsed()
	if cfgFile != "" {
		path = cfgFile
	}
	if path == "" {
		return errors.New("no config file in use; run `macropulse config init` first")
	}
	if err := config.SetValue(path, args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "set %s in %s\n", args[0], path)
	return nil
}
