package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cognicore/harmonica/pkg/harmonica/results"
)

func newSummarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize DIR",
		Short: "Report per-radius faithfulness from a run's artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := results.Summarize(args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RADIUS\tSENTENCES\tSAMPLES\tMEAN\tMEDIAN\tP95")
			for _, s := range stats {
				fmt.Fprintf(w, "%d\t%s\t%s\t%.6f\t%.6f\t%.6f\n",
					s.Radius,
					humanize.Comma(int64(s.Sentences)),
					humanize.Comma(int64(s.Samples)),
					s.Mean, s.Median, s.P95)
			}
			return w.Flush()
		},
	}
}
