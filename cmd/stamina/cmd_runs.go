package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stamina/internal/store"
)

var runsDB string

// runsCmd lists truncation runs stored in a result database.
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List truncation runs stored in a result database",
	RunE:  listRuns,
}

func init() {
	runsCmd.Flags().StringVar(&runsDB, "db", "results.db", "path of the result database")
}

func listRuns(cmd *cobra.Command, args []string) error {
	s, err := store.Open(runsDB)
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.ListRuns(cmd.Context())
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs stored.")
		return nil
	}
	fmt.Printf("%-36s  %-20s  %-10s  %8s  %12s  %12s\n",
		"RUN", "MODEL", "METHOD", "STATES", "TRANSITIONS", "PI-HAT")
	for _, r := range runs {
		fmt.Printf("%-36s  %-20s  %-10s  %8d  %12d  %12.3e\n",
			r.ID, r.Model, r.Method, r.States, r.Transitions, r.PiHat)
	}
	return nil
}
