package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print row counts for every visible table",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, _ []string) error {
	c, err := NewContainer(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	wh, err := c.Warehouse()
	if err != nil {
		return err
	}
	counts, err := wh.Counts(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tROWS")
	var total int64
	for _, tc := range counts {
		fmt.Fprintf(w, "%s\t%d\n", tc.Table, tc.Rows)
		total += tc.Rows
	}
	fmt.Fprintf(w, "total\t%d\n", total)
	return w.Flush()
}
