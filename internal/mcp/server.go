// Package mcp exposes timewright's timeline operations as MCP tools so a
// game-master assistant can drive them over stdio.
package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"timewright/internal/continuity"
	"timewright/internal/drift"
	"timewright/internal/events"
	"timewright/internal/sessionrun"
)

type Server struct {
	continuities *continuity.Service
	events       *events.Service
	sessions     *sessionrun.Tracker
	drifts       *drift.Detector
	mcp          *sdk.Server
}

func NewServer(continuities *continuity.Service, ev *events.Service, sessions *sessionrun.Tracker, drifts *drift.Detector, version string) *Server {
	s := &Server{
		continuities: continuities,
		events:       ev,
		sessions:     sessions,
		drifts:       drifts,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "timewright",
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s
}

func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}
