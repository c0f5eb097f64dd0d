package cmd

import (
	"fmt"

	"github.com/andresmejia3/livecheck/internal/liveness"
	"github.com/spf13/cobra"
)

var planLength int

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print a random challenge plan",
	Long:  "Prints distinct random challenges in the format --challenges accepts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		plan, err := liveness.NewPlan(nil, planLength)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), liveness.FormatPlan(plan))
		return nil
	},
}

func init() {
	planCmd.Flags().IntVarP(&planLength, "length", "l", 2, fmt.Sprintf("Number of challenges (1-%d)", len(liveness.AllChallenges)))
	rootCmd.AddCommand(planCmd)
}
