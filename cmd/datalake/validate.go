package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type cliValidate struct {
	root *cliRoot
}

func newCLIValidate(root *cliRoot) *cliValidate {
	return &cliValidate{root: root}
}

func (cli *cliValidate) NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cli.root.load(cmd, nil)
			if err != nil {
				return err
			}
			if err := cli.root.check(cmd.ErrOrStderr(), cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %s\n", cli.root.source())
			return nil
		},
	}
}
