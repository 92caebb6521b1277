package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"timewright/internal/bus"
	"timewright/internal/continuity"
	"timewright/internal/store"
)

func continuityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "continuity",
		Short: "Manage timeline continuities",
	}
	cmd.AddCommand(continuityCreateCmd())
	cmd.AddCommand(continuityBranchCmd())
	cmd.AddCommand(continuityRenameCmd())
	cmd.AddCommand(continuityDescribeCmd())
	cmd.AddCommand(continuityListCmd())
	cmd.AddCommand(continuityDeleteCmd())
	return cmd
}

func continuityService(db store.Store) *continuity.Service {
	logger := newLogger()
	return continuity.NewService(db, bus.New(logger), logger)
}

func continuityCreateCmd() *cobra.Command {
	var worldID string
	var description string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a root continuity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContinuityCreate(args[0], worldID, description)
		},
	}
	cmd.Flags().StringVar(&worldID, "world", "", "World the continuity belongs to")
	cmd.Flags().StringVar(&description, "description", "", "Continuity description")
	return cmd
}

func runContinuityCreate(name, worldID, description string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if worldID == "" {
		worldID = cfg.WorldID
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	cont, err := continuityService(db).Create(ctx, continuity.CreateRequest{
		Name:        name,
		WorldID:     worldID,
		Description: description,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Created continuity %s (%s)\n", cont.Name, cont.ID)
	return nil
}

func continuityBranchCmd() *cobra.Command {
	var parentID string
	var eventID string
	var description string
	cmd := &cobra.Command{
		Use:   "branch <name>",
		Short: "Fork a continuity at one of its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(parentID) == "" {
				return fmt.Errorf("--from is required")
			}
			if strings.TrimSpace(eventID) == "" {
				return fmt.Errorf("--at is required")
			}
			return runContinuityBranch(args[0], parentID, eventID, description)
		},
	}
	cmd.Flags().StringVar(&parentID, "from", "", "Continuity to branch from")
	cmd.Flags().StringVar(&eventID, "at", "", "Branch point event in the parent")
	cmd.Flags().StringVar(&description, "description", "", "Continuity description")
	return cmd
}

func runContinuityBranch(name, parentID, eventID, description string) error {
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

	branch, err := continuityService(db).Branch(ctx, continuity.BranchRequest{
		Name:               name,
		ParentID:           parentID,
		BranchPointEventID: eventID,
		Description:        description,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Branched %s (%s) from %s at event %s\n", branch.Name, branch.ID, branch.BranchedFromID, branch.BranchPointEventID)
	return nil
}

func continuityRenameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a continuity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContinuityRename(args[0], args[1])
		},
	}
	return cmd
}

func runContinuityRename(contID, name string) error {
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

	cont, err := continuityService(db).Rename(ctx, contID, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Renamed continuity %s to %s\n", cont.ID, cont.Name)
	return nil
}

func continuityDescribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "describe <id> <description>",
		Short: "Update a continuity's description",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContinuityDescribe(args[0], args[1])
		},
	}
	return cmd
}

func runContinuityDescribe(contID, description string) error {
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

	if _, err := continuityService(db).UpdateDescription(ctx, contID, description); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Updated continuity %s\n", contID)
	return nil
}

func continuityListCmd() *cobra.Command {
	var worldID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the continuities of a world",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContinuityList(worldID)
		},
	}
	cmd.Flags().StringVar(&worldID, "world", "", "World to list")
	return cmd
}

func runContinuityList(worldID string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if worldID == "" {
		worldID = cfg.WorldID
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	continuities, err := continuityService(db).List(ctx, worldID)
	if err != nil {
		return err
	}
	if len(continuities) == 0 {
		fmt.Fprintln(os.Stdout, "No continuities found.")
		return nil
	}

	for _, cont := range continuities {
		if cont.Branched() {
			fmt.Fprintf(os.Stdout, "%s (%s) branched from %s at %s\n", cont.Name, cont.ID, cont.BranchedFromID, cont.BranchPointEventID)
			continue
		}
		fmt.Fprintf(os.Stdout, "%s (%s)\n", cont.Name, cont.ID)
	}
	return nil
}

func continuityDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an unreferenced continuity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContinuityDelete(args[0])
		},
	}
	return cmd
}

func runContinuityDelete(contID string) error {
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

	if err := continuityService(db).Delete(ctx, contID); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Deleted continuity %s\n", contID)
	return nil
}
