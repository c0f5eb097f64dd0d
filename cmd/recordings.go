package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var recordingsCmd = &cobra.Command{
	Use:         "recordings",
	Short:       "List stored observation recordings",
	Annotations: map[string]string{needsDB: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		recordings, err := DB.ListRecordings(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list recordings: %w", err)
		}

		if len(recordings) == 0 {
			fmt.Println("No recordings found in database.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tLABEL\tFRAMES\tSOURCE\tRECORDED")
		fmt.Fprintln(w, "--\t-----\t------\t------\t--------")

		for _, r := range recordings {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", shortID(r.ID), r.Label, r.Frames, r.Source, r.RecordedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(recordingsCmd)
}
