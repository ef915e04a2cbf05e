package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/notargets/FVKernel/partitions"
)

func newPartitionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "partition",
		Short: "Print every rank's subdomain and neighbors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			layout, err := partitions.BuildLayout(partitions.NewGlobalGrid(a.cfg.Grid))
			if err != nil {
				return err
			}
			dims := layout.Grid.Dims
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\tCOORDS\tSTART\tCELLS\tNEIGHBORS")
			for _, p := range layout.Partitions {
				fmt.Fprintf(w, "%d\t%v\t%v\t%v\t%v\n",
					p.Rank, p.Coords[:dims], p.Start[:dims], p.Cells[:dims], p.Neighbors[:dims])
			}
			return w.Flush()
		},
	}
}
