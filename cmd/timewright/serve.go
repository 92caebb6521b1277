package main

import (
	"context"

	"github.com/spf13/cobra"

	"timewright/internal/bus"
	"timewright/internal/continuity"
	"timewright/internal/drift"
	"timewright/internal/events"
	"timewright/internal/mcp"
	"timewright/internal/sessionrun"
	"timewright/internal/store"
	"timewright/internal/timeline"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		RunE:  runServe,
	}
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
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

	server := newMCPServer(db)
	return server.Run(ctx, &sdk.StdioTransport{})
}

func newMCPServer(db store.Store) *mcp.Server {
	logger := newLogger()
	notifications := bus.New(logger)
	return mcp.NewServer(
		continuity.NewService(db, notifications, logger),
		events.NewService(db, timeline.NewPropagator(db, logger), notifications, logger),
		sessionrun.NewTracker(db, notifications, logger),
		drift.NewDetector(db, logger),
		version,
	)
}
