package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List past training and evaluation runs",
	Run: func(cmd *cobra.Command, args []string) {
		s := getStorage()
		defer s.Close()

		runs, err := s.ListRuns()
		if err != nil {
			fmt.Printf("Failed to list runs: %v\n", err)
			return
		}
		if len(runs) == 0 {
			fmt.Println("(no runs)")
			return
		}
		for _, run := range runs {
			mode := run.Metadata["mode"]
			if mode == "" {
				mode = "?"
			}
			fmt.Printf("%s  %-5s  %-11s  %s\n",
				run.CreatedAt.Format("2006-01-02 15:04"), mode, run.Status, run.ID)
		}
	},
}

func init() {
	RootCmd.AddCommand(runsCmd)
}
