package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"timewright/internal/drift"
	"timewright/internal/store"
)

func driftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Find entities that diverge from their timeline",
	}
	cmd.AddCommand(driftScanCmd())
	cmd.AddCommand(driftListCmd())
	cmd.AddCommand(driftResolveCmd())
	return cmd
}

func driftDetector(db store.Store) *drift.Detector {
	return drift.NewDetector(db, newLogger())
}

func driftScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <continuity-id>",
		Short: "Scan a continuity for drifted entities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDriftScan(args[0])
		},
	}
	return cmd
}

func runDriftScan(continuityID string) error {
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

	drifts, err := driftDetector(db).ScanContinuity(ctx, continuityID)
	if err != nil {
		return err
	}
	if len(drifts) == 0 {
		fmt.Fprintln(os.Stdout, "No drift detected.")
		return nil
	}

	printDrifts(drifts)
	return nil
}

func driftListCmd() *cobra.Command {
	var entityID string
	var continuityID string
	var unresolved bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded drifts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDriftList(entityID, continuityID, unresolved)
		},
	}
	cmd.Flags().StringVar(&entityID, "entity", "", "Entity to filter")
	cmd.Flags().StringVar(&continuityID, "continuity", "", "Continuity to filter")
	cmd.Flags().BoolVar(&unresolved, "unresolved", false, "Only open drifts")
	return cmd
}

func runDriftList(entityID, continuityID string, unresolved bool) error {
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

	drifts, err := driftDetector(db).List(ctx, store.DriftFilter{
		EntityID:     entityID,
		ContinuityID: continuityID,
		Unresolved:   unresolved,
	})
	if err != nil {
		return err
	}
	if len(drifts) == 0 {
		fmt.Fprintln(os.Stdout, "No drifts found.")
		return nil
	}

	printDrifts(drifts)
	return nil
}

func driftResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <drift-id>",
		Short: "Mark a drift record as handled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDriftResolve(args[0])
		},
	}
	return cmd
}

func runDriftResolve(driftID string) error {
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

	resolved, err := driftDetector(db).Resolve(ctx, driftID)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Resolved drift %s (%s.%s)\n", resolved.ID, resolved.EntityID, resolved.Field)
	return nil
}

func printDrifts(drifts []store.Drift) {
	for _, d := range drifts {
		status := "open"
		if d.Resolved() {
			status = "resolved"
		}
		fmt.Fprintf(os.Stdout, "%s  %s.%s: timeline says %q, record says %q [%s]\n",
			d.ID, d.EntityID, d.Field, d.EventDerivedValue, d.CurrentValue, status)
	}
}
