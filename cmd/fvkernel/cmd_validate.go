package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/notargets/FVKernel/integrator"
	"github.com/notargets/FVKernel/partitions"
	"github.com/notargets/FVKernel/problems"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.check(); err != nil {
				return err
			}
			g := partitions.NewGlobalGrid(a.cfg.Grid)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid, %dD grid %v on %d ranks\n",
				a.cfg.Name, g.Dims, g.Cells[:g.Dims], g.NumRanks())
			return nil
		},
	}
}

// check validates the configuration and every name it refers to.
func (a *app) check() error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	if _, err := problems.Lookup(a.cfg); err != nil {
		return err
	}
	if _, err := integrator.MethodByName(a.cfg.Runtime.Integrator); err != nil {
		return err
	}
	_, err := partitions.BuildLayout(partitions.NewGlobalGrid(a.cfg.Grid))
	return err
}
