package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var maintainCycles int

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run maintenance cycles (decay and prune)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		report, err := client.RunAggressiveMaintenance(ctx, maintainCycles)
		if err != nil {
			return err
		}
		fmt.Printf("cycle %d: examined %d, decayed %d, pruned %d\n",
			report.Cycle, report.Examined, report.Decayed, report.Pruned)
		return nil
	},
}

func init() {
	maintainCmd.Flags().IntVar(&maintainCycles, "cycles", 1, "number of decay cycles to apply")
	rootCmd.AddCommand(maintainCmd)
}
