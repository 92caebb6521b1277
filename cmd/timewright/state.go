package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func stateCmd() *cobra.Command {
	var continuityID string
	cmd := &cobra.Command{
		Use:   "state <entity-id>",
		Short: "Derive an entity's timeline-implied field values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(continuityID) == "" {
				return fmt.Errorf("--continuity is required")
			}
			return runState(args[0], continuityID)
		},
	}
	cmd.Flags().StringVar(&continuityID, "continuity", "", "Continuity whose timeline decides the state")
	return cmd
}

func runState(entityID, continuityID string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	state, err := eventService(db).CurrentState(ctx, continuityID, entityID)
	if err != nil {
		return err
	}
	if len(state) == 0 {
		fmt.Fprintf(os.Stdout, "No timeline-derived state for %q.\n", entityID)
		return nil
	}

	fields := make([]string, 0, len(state))
	for field := range state {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		winner := state[field]
		fmt.Fprintf(os.Stdout, "%s = %s (event %s at %s)\n", field, winner.Outcome.ToValue, winner.EventID, winner.InWorldTime)
	}
	return nil
}
