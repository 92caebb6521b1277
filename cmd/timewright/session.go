package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"timewright/internal/bus"
	"timewright/internal/sessionrun"
	"timewright/internal/store"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Start and end campaign sessions",
	}
	cmd.AddCommand(sessionStartCmd())
	cmd.AddCommand(sessionEndCmd())
	cmd.AddCommand(sessionStatusCmd())
	return cmd
}

func sessionTracker(db store.Store) *sessionrun.Tracker {
	logger := newLogger()
	return sessionrun.NewTracker(db, bus.New(logger), logger)
}

func sessionStartCmd() *cobra.Command {
	var campaignID string
	cmd := &cobra.Command{
		Use:   "start <session-id>",
		Short: "Mark a session as live for its campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(campaignID) == "" {
				return fmt.Errorf("--campaign is required")
			}
			return runSessionStart(campaignID, args[0])
		},
	}
	cmd.Flags().StringVar(&campaignID, "campaign", "", "Campaign the session belongs to")
	return cmd
}

func runSessionStart(campaignID, sessionID string) error {
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

	run, err := sessionTracker(db).Start(ctx, campaignID, sessionID)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Session %s live for campaign %s since %s\n", run.SessionID, run.CampaignID, run.StartedAt.Format("2006-01-02 15:04"))
	return nil
}

func sessionEndCmd() *cobra.Command {
	var campaignID string
	var durationSeconds int64
	cmd := &cobra.Command{
		Use:   "end <session-id>",
		Short: "End the live session and record its duration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(campaignID) == "" {
				return fmt.Errorf("--campaign is required")
			}
			return runSessionEnd(campaignID, args[0], durationSeconds)
		},
	}
	cmd.Flags().StringVar(&campaignID, "campaign", "", "Campaign the session belongs to")
	cmd.Flags().Int64Var(&durationSeconds, "duration", 0, "Session length in seconds")
	return cmd
}

func runSessionEnd(campaignID, sessionID string, durationSeconds int64) error {
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

	if err := sessionTracker(db).End(ctx, campaignID, sessionID, durationSeconds); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Session %s ended\n", sessionID)
	return nil
}

func sessionStatusCmd() *cobra.Command {
	var campaignID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report which session, if any, is live for a campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(campaignID) == "" {
				return fmt.Errorf("--campaign is required")
			}
			return runSessionStatus(campaignID)
		},
	}
	cmd.Flags().StringVar(&campaignID, "campaign", "", "Campaign to check")
	return cmd
}

func runSessionStatus(campaignID string) error {
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

	run, err := sessionTracker(db).Status(ctx, campaignID)
	if err != nil {
		return err
	}
	if run == nil {
		fmt.Fprintf(os.Stdout, "No session is live for campaign %s.\n", campaignID)
		return nil
	}
	fmt.Fprintf(os.Stdout, "Session %s live since %s\n", run.SessionID, run.StartedAt.Format("2006-01-02 15:04"))
	return nil
}
