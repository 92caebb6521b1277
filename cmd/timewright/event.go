package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"timewright/internal/bus"
	"timewright/internal/events"
	"timewright/internal/store"
	"timewright/internal/timeline"
)

func eventCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Record and inspect timeline events",
	}
	cmd.AddCommand(eventRecordCmd())
	cmd.AddCommand(eventUpdateCmd())
	cmd.AddCommand(eventTimelineCmd())
	return cmd
}

func eventService(db store.Store) *events.Service {
	logger := newLogger()
	return events.NewService(db, timeline.NewPropagator(db, logger), bus.New(logger), logger)
}

func eventRecordCmd() *cobra.Command {
	var continuityID string
	var description string
	var inWorldTime string
	var anchor string
	var locationID string
	var involved []string
	var outcomes []string
	cmd := &cobra.Command{
		Use:   "record <name>",
		Short: "Record an event and apply its outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(continuityID) == "" {
				return fmt.Errorf("--continuity is required")
			}
			return runEventRecord(args[0], continuityID, description, inWorldTime, anchor, locationID, involved, outcomes)
		},
	}
	cmd.Flags().StringVar(&continuityID, "continuity", "", "Continuity the event belongs to")
	cmd.Flags().StringVar(&description, "description", "", "Event description")
	cmd.Flags().StringVar(&inWorldTime, "when", "", "In-world timestamp, sortable string such as 1042-06-01")
	cmd.Flags().StringVar(&anchor, "anchor", "", "Real-world session date")
	cmd.Flags().StringVar(&locationID, "location", "", "Location entity id")
	cmd.Flags().StringSliceVar(&involved, "involves", nil, "Entity ids present at the event")
	cmd.Flags().StringSliceVar(&outcomes, "outcome", nil, "Outcome as entity.field=value, repeatable")
	return cmd
}

func runEventRecord(name, continuityID, description, inWorldTime, anchor, locationID string, involved, rawOutcomes []string) error {
	parsed, err := parseOutcomes(rawOutcomes)
	if err != nil {
		return err
	}

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

	event, result, err := eventService(db).Record(ctx, events.RecordRequest{
		ContinuityID:      continuityID,
		Name:              name,
		Description:       description,
		InWorldTime:       inWorldTime,
		RealWorldAnchor:   anchor,
		LocationID:        locationID,
		InvolvedEntityIDs: involved,
		Outcomes:          parsed,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Recorded event %s (%s)\n", event.Name, event.ID)
	for _, applied := range result.Applied {
		fmt.Fprintf(os.Stdout, "  applied %s.%s = %s\n", applied.EntityID, applied.Field, applied.Value)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(os.Stderr, "  warning: %s\n", warning)
	}
	return nil
}

// parseOutcomes turns entity.field=value flags into outcome records. The
// entity id may itself contain dots, so the split takes the last dot before
// the equals sign.
func parseOutcomes(raw []string) ([]store.Outcome, error) {
	outcomes := make([]store.Outcome, 0, len(raw))
	for _, item := range raw {
		target, value, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("outcome %q: want entity.field=value", item)
		}
		dot := strings.LastIndex(target, ".")
		if dot <= 0 || dot == len(target)-1 {
			return nil, fmt.Errorf("outcome %q: want entity.field=value", item)
		}
		outcomes = append(outcomes, store.Outcome{
			EntityID: target[:dot],
			Field:    target[dot+1:],
			ToValue:  value,
		})
	}
	return outcomes, nil
}

func eventUpdateCmd() *cobra.Command {
	var name string
	var description string
	var inWorldTime string
	var outcomes []string
	cmd := &cobra.Command{
		Use:   "update <event-id>",
		Short: "Update an event, re-running propagation when needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEventUpdate(cmd, args[0], name, description, inWorldTime, outcomes)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New event name")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringVar(&inWorldTime, "when", "", "New in-world timestamp")
	cmd.Flags().StringSliceVar(&outcomes, "outcome", nil, "Replacement outcomes as entity.field=value, repeatable")
	return cmd
}

func runEventUpdate(cmd *cobra.Command, eventID, name, description, inWorldTime string, rawOutcomes []string) error {
	req := events.UpdateRequest{EventID: eventID}
	if cmd.Flags().Changed("name") {
		req.Name = &name
	}
	if cmd.Flags().Changed("description") {
		req.Description = &description
	}
	if cmd.Flags().Changed("when") {
		req.InWorldTime = &inWorldTime
	}
	if cmd.Flags().Changed("outcome") {
		parsed, err := parseOutcomes(rawOutcomes)
		if err != nil {
			return err
		}
		req.Outcomes = parsed
		req.ReplaceOutcomes = true
	}

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

	event, result, err := eventService(db).Update(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Updated event %s (%s)\n", event.Name, event.ID)
	for _, applied := range result.Applied {
		fmt.Fprintf(os.Stdout, "  applied %s.%s = %s\n", applied.EntityID, applied.Field, applied.Value)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(os.Stderr, "  warning: %s\n", warning)
	}
	return nil
}

func eventTimelineCmd() *cobra.Command {
	var continuityID string
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Print a continuity's visible events in in-world order",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(continuityID) == "" {
				return fmt.Errorf("--continuity is required")
			}
			return runEventTimeline(continuityID)
		},
	}
	cmd.Flags().StringVar(&continuityID, "continuity", "", "Continuity to read")
	return cmd
}

func runEventTimeline(continuityID string) error {
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

	timelineEvents, err := eventService(db).Timeline(ctx, continuityID)
	if err != nil {
		return err
	}
	if len(timelineEvents) == 0 {
		fmt.Fprintln(os.Stdout, "No events found.")
		return nil
	}

	for _, event := range timelineEvents {
		when := event.InWorldTime
		if when == "" {
			when = "undated"
		}
		fmt.Fprintf(os.Stdout, "[%s] %s (%s)\n", when, event.Name, event.ID)
		if event.ContinuityID != continuityID {
			fmt.Fprintf(os.Stdout, "    inherited from %s\n", event.ContinuityID)
		}
		for _, outcome := range event.Outcomes {
			fmt.Fprintf(os.Stdout, "    %s.%s = %s\n", outcome.EntityID, outcome.Field, outcome.ToValue)
		}
	}
	return nil
}
