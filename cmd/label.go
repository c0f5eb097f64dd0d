package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var labelCmd = &cobra.Command{
	Use:         "label <recording_id> <label>",
	Short:       "Attach a label to a stored recording",
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{needsDB: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		id, label := args[0], args[1]
		if err := DB.LabelRecording(cmd.Context(), id, label); err != nil {
			return fmt.Errorf("failed to label recording: %w", err)
		}

		fmt.Printf("✅ Recording %s labeled as '%s'\n", shortID(id), label)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(labelCmd)
}
