package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"datalake/internal/logging"
	"datalake/internal/pipeline"
)

// runPipelineFn is a seam for tests.
var runPipelineFn = pipeline.Run

type cliRun struct {
	root   *cliRoot
	stage  string
	output string
	runID  string
}

func newCLIRun(root *cliRoot) *cliRun {
	return &cliRun{root: root}
}

func (cli *cliRun) NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline and commit the star-schema tables",
		Example: `datalake run --config configs/datalake.yaml
datalake run --stage catalog
DATALAKE_OUTPUT__PATH=s3://lake/sparkify datalake run --stage sessions`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.run(cmd)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cli.stage, "stage", "all", "stage to run: all, catalog or sessions")
	flags.StringVarP(&cli.output, "output", "o", "", "output root, overrides output.path")
	flags.StringVar(&cli.runID, "run-id", "", "run id stamped into manifests (random when empty)")
	return cmd
}

func (cli *cliRun) run(cmd *cobra.Command) error {
	stage, err := pipeline.ParseStage(cli.stage)
	if err != nil {
		return err
	}
	extra := map[string]any{}
	if cmd.Flags().Changed("output") {
		extra["output.path"] = cli.output
	}

	cfg, err := cli.root.load(cmd, extra)
	if err != nil {
		return err
	}
	if err := cli.root.check(cmd.ErrOrStderr(), cfg); err != nil {
		return err
	}

	flush, err := setupMetrics(cfg)
	if err != nil {
		return err
	}
	defer flush()

	start := time.Now()
	sum, err := runPipelineFn(cmd.Context(), cfg, pipeline.Options{Stage: stage, RunID: cli.runID})
	if err != nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), sum)
	logging.Info().Dur("elapsed", time.Since(start)).Msg("datalake: completed")
	return nil
}

func printSummary(w io.Writer, sum *pipeline.Summary) {
	fmt.Fprintf(w, "run %s (stage %s)\n", sum.RunID, sum.Stage)
	for _, t := range sum.Tables {
		fmt.Fprintf(w, "  %-10s %8s rows  %3d files  %8s  %d partitions\n",
			t.Table, humanize.Comma(t.Rows), t.Files, humanize.Bytes(uint64(t.Bytes)), t.Partitions)
	}
	if sum.ParseErrors > 0 {
		fmt.Fprintf(w, "  skipped %s malformed lines\n", humanize.Comma(int64(sum.ParseErrors)))
	}
}
