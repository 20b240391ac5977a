package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"datalake/internal/config"
	"datalake/internal/logging"
)

// cliRoot carries the flags shared by every subcommand.
type cliRoot struct {
	cfgPath        string
	logLevel       string
	logFormat      string
	metricsBackend string
}

func newRootCmd() *cobra.Command {
	cli := &cliRoot{}
	cmd := &cobra.Command{
		Use:           "datalake",
		Short:         "Build the song-play star schema as partitioned Parquet",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&cli.cfgPath, "config", "c", "", "config file (.yaml, .yml or .json)")
	pf.StringVar(&cli.logLevel, "log-level", "", "log level: trace, debug, info, warn, error, disabled")
	pf.StringVar(&cli.logFormat, "log-format", "", "log format: json or console")
	pf.StringVar(&cli.metricsBackend, "metrics-backend", "", "metrics backend: none, prometheus, datadog")

	cmd.AddCommand(newCLIRun(cli).NewCommand())
	cmd.AddCommand(newCLIValidate(cli).NewCommand())
	return cmd
}

// load layers the config file, DATALAKE_* env vars and every flag the user
// set, then configures logging from the result. extra holds
// subcommand-specific overrides.
func (cli *cliRoot) load(cmd *cobra.Command, extra map[string]any) (*config.Config, error) {
	overrides := map[string]any{}
	flags := cmd.Flags()
	for flag, key := range map[string]string{
		"log-level":       "log.level",
		"log-format":      "log.format",
		"metrics-backend": "metrics.backend",
	} {
		if flags.Changed(flag) {
			v, _ := flags.GetString(flag)
			overrides[key] = v
		}
	}
	for k, v := range extra {
		overrides[k] = v
	}

	cfg, err := config.Load(cli.cfgPath, overrides)
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	return cfg, nil
}

// check prints every issue and fails when any of them is an error.
func (cli *cliRoot) check(w io.Writer, cfg *config.Config) error {
	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if err := config.Errors(issues); err != nil {
		return fmt.Errorf("configuration is invalid: %s", cli.source())
	}
	return nil
}

func (cli *cliRoot) source() string {
	if cli.cfgPath == "" {
		return "defaults and environment"
	}
	return cli.cfgPath
}
