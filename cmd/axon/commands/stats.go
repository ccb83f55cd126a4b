package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show connection statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		stats, err := client.ConnectionStatistics(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("connections:          %d\n", stats.Count)
		if stats.Count == 0 {
			return nil
		}
		fmt.Printf("strength min/mean/max: %.3f / %.3f / %.3f\n",
			stats.MinStrength, stats.MeanStrength, stats.MaxStrength)
		fmt.Printf("below decay threshold: %d\n", stats.BelowDecayThreshold)
		fmt.Printf("pruning candidates:    %d\n", stats.PruningCandidates)
		fmt.Println("distribution:")
		for i, count := range stats.Buckets {
			fmt.Printf("  [%.1f-%.1f) %d\n", float64(i)/10, float64(i+1)/10, count)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
