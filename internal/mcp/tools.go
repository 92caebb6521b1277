package mcp

import (
	"context"
	"fmt"
	"sort"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"timewright/internal/continuity"
	"timewright/internal/events"
	"timewright/internal/store"
	"timewright/internal/timeline"
)

type CreateContinuityInput struct {
	Name        string `json:"name" jsonschema:"continuity name"`
	WorldID     string `json:"worldID" jsonschema:"world the continuity belongs to"`
	Description string `json:"description,omitempty" jsonschema:"optional description"`
}

type BranchContinuityInput struct {
	Name               string `json:"name" jsonschema:"name of the new branch"`
	ParentID           string `json:"parentID" jsonschema:"continuity to branch from"`
	BranchPointEventID string `json:"branchPointEventID" jsonschema:"event in the parent where the branch diverges"`
	Description        string `json:"description,omitempty" jsonschema:"optional description"`
}

type ListContinuitiesInput struct {
	WorldID string `json:"worldID" jsonschema:"world to list continuities for"`
}

type RecordEventInput struct {
	ContinuityID      string         `json:"continuityID" jsonschema:"continuity the event belongs to"`
	Name              string         `json:"name" jsonschema:"event name"`
	Description       string         `json:"description,omitempty" jsonschema:"optional description"`
	InWorldTime       string         `json:"inWorldTime,omitempty" jsonschema:"in-world timestamp, sortable string such as 1042-06-01"`
	RealWorldAnchor   string         `json:"realWorldAnchor,omitempty" jsonschema:"real-world session date the event was played"`
	LocationID        string         `json:"locationID,omitempty" jsonschema:"location entity where the event happened"`
	InvolvedEntityIDs []string       `json:"involvedEntityIDs,omitempty" jsonschema:"entities present at the event"`
	Outcomes          []OutcomeInput `json:"outcomes,omitempty" jsonschema:"state changes the event causes"`
}

type OutcomeInput struct {
	EntityID    string `json:"entityID" jsonschema:"entity the outcome changes"`
	Field       string `json:"field" jsonschema:"field to change, such as status or location"`
	ToValue     string `json:"toValue" jsonschema:"new value"`
	FromValue   string `json:"fromValue,omitempty" jsonschema:"optional prior value"`
	Description string `json:"description,omitempty" jsonschema:"optional note"`
}

type GetTimelineInput struct {
	ContinuityID string `json:"continuityID" jsonschema:"continuity to read, including inherited ancestor events"`
}

type GetCurrentStateInput struct {
	ContinuityID string `json:"continuityID" jsonschema:"continuity whose timeline decides the state"`
	EntityID     string `json:"entityID" jsonschema:"entity to derive state for"`
}

type StartSessionInput struct {
	CampaignID string `json:"campaignID" jsonschema:"campaign the session belongs to"`
	SessionID  string `json:"sessionID" jsonschema:"session entity to start"`
}

type EndSessionInput struct {
	CampaignID      string `json:"campaignID" jsonschema:"campaign the session belongs to"`
	SessionID       string `json:"sessionID" jsonschema:"session entity to end"`
	DurationSeconds int64  `json:"durationSeconds" jsonschema:"how long the session ran, in seconds"`
}

type SessionStatusInput struct {
	CampaignID string `json:"campaignID" jsonschema:"campaign to check"`
}

type ListDriftsInput struct {
	EntityID     string `json:"entityID,omitempty" jsonschema:"filter by entity"`
	ContinuityID string `json:"continuityID,omitempty" jsonschema:"filter by continuity"`
	Unresolved   bool   `json:"unresolved,omitempty" jsonschema:"only open drifts"`
}

type ScanDriftInput struct {
	ContinuityID string `json:"continuityID" jsonschema:"continuity to scan for drift"`
}

type ResolveDriftInput struct {
	DriftID string `json:"driftID" jsonschema:"drift record to resolve"`
}

type ContinuityOutput struct {
	ID                 string `json:"id"`
	WorldID            string `json:"worldID"`
	Name               string `json:"name"`
	Description        string `json:"description,omitempty"`
	BranchedFromID     string `json:"branchedFromID,omitempty"`
	BranchPointEventID string `json:"branchPointEventID,omitempty"`
}

type ListContinuitiesOutput struct {
	Continuities []ContinuityOutput `json:"continuities"`
}

type EventOutput struct {
	ID                string         `json:"id"`
	ContinuityID      string         `json:"continuityID"`
	Name              string         `json:"name"`
	Description       string         `json:"description,omitempty"`
	InWorldTime       string         `json:"inWorldTime,omitempty"`
	RealWorldAnchor   string         `json:"realWorldAnchor,omitempty"`
	LocationID        string         `json:"locationID,omitempty"`
	InvolvedEntityIDs []string       `json:"involvedEntityIDs,omitempty"`
	Outcomes          []OutcomeInput `json:"outcomes,omitempty"`
}

type RecordEventOutput struct {
	Event    EventOutput     `json:"event"`
	Applied  []AppliedOutput `json:"applied"`
	Warnings []string        `json:"warnings,omitempty"`
}

type AppliedOutput struct {
	EntityID string `json:"entityID"`
	Field    string `json:"field"`
	Value    string `json:"value"`
	EventID  string `json:"eventID"`
}

type GetTimelineOutput struct {
	Events []EventOutput `json:"events"`
}

type FieldStateOutput struct {
	Field       string `json:"field"`
	Value       string `json:"value"`
	EventID     string `json:"eventID"`
	InWorldTime string `json:"inWorldTime"`
}

type GetCurrentStateOutput struct {
	EntityID string             `json:"entityID"`
	Fields   []FieldStateOutput `json:"fields"`
}

type SessionRunOutput struct {
	CampaignID string `json:"campaignID"`
	SessionID  string `json:"sessionID"`
	StartedAt  string `json:"startedAt"`
}

type SessionStatusOutput struct {
	Active bool              `json:"active"`
	Run    *SessionRunOutput `json:"run,omitempty"`
}

type EndSessionOutput struct {
	Ended bool `json:"ended"`
}

type DriftOutput struct {
	ID                string `json:"id"`
	EntityID          string `json:"entityID"`
	ContinuityID      string `json:"continuityID"`
	Field             string `json:"field"`
	EventDerivedValue string `json:"eventDerivedValue"`
	CurrentValue      string `json:"currentValue"`
	Resolved          bool   `json:"resolved"`
}

type ListDriftsOutput struct {
	Drifts []DriftOutput `json:"drifts"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "create_continuity",
		Description: "Create a root continuity for a world",
	}, s.handleCreateContinuity)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "branch_continuity",
		Description: "Fork a continuity at one of its events",
	}, s.handleBranchContinuity)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_continuities",
		Description: "List the continuities of a world",
	}, s.handleListContinuities)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "record_event",
		Description: "Record a timeline event and apply its outcomes",
	}, s.handleRecordEvent)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_timeline",
		Description: "Read a continuity's visible events in in-world order",
	}, s.handleGetTimeline)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_current_state",
		Description: "Derive an entity's timeline-implied field values",
	}, s.handleGetCurrentState)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "start_session",
		Description: "Mark a session as live for its campaign",
	}, s.handleStartSession)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "end_session",
		Description: "End the live session and record its duration",
	}, s.handleEndSession)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "session_status",
		Description: "Report which session, if any, is live for a campaign",
	}, s.handleSessionStatus)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_drifts",
		Description: "List recorded drifts between entities and their timelines",
	}, s.handleListDrifts)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "scan_drift",
		Description: "Scan a continuity for entities that diverge from their timeline",
	}, s.handleScanDrift)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "resolve_drift",
		Description: "Mark a drift record as handled",
	}, s.handleResolveDrift)
}

func (s *Server) handleCreateContinuity(ctx context.Context, req *sdk.CallToolRequest, input CreateContinuityInput) (*sdk.CallToolResult, ContinuityOutput, error) {
	cont, err := s.continuities.Create(ctx, continuity.CreateRequest{
		Name:        input.Name,
		WorldID:     input.WorldID,
		Description: input.Description,
	})
	if err != nil {
		return nil, ContinuityOutput{}, err
	}
	return nil, continuityOutput(cont), nil
}

func (s *Server) handleBranchContinuity(ctx context.Context, req *sdk.CallToolRequest, input BranchContinuityInput) (*sdk.CallToolResult, ContinuityOutput, error) {
	cont, err := s.continuities.Branch(ctx, continuity.BranchRequest{
		Name:               input.Name,
		ParentID:           input.ParentID,
		BranchPointEventID: input.BranchPointEventID,
		Description:        input.Description,
	})
	if err != nil {
		return nil, ContinuityOutput{}, err
	}
	return nil, continuityOutput(cont), nil
}

func (s *Server) handleListContinuities(ctx context.Context, req *sdk.CallToolRequest, input ListContinuitiesInput) (*sdk.CallToolResult, ListContinuitiesOutput, error) {
	if input.WorldID == "" {
		return nil, ListContinuitiesOutput{}, fmt.Errorf("worldID is required")
	}
	continuities, err := s.continuities.List(ctx, input.WorldID)
	if err != nil {
		return nil, ListContinuitiesOutput{}, err
	}

	output := make([]ContinuityOutput, 0, len(continuities))
	for _, cont := range continuities {
		output = append(output, continuityOutput(cont))
	}
	return nil, ListContinuitiesOutput{Continuities: output}, nil
}

func (s *Server) handleRecordEvent(ctx context.Context, req *sdk.CallToolRequest, input RecordEventInput) (*sdk.CallToolResult, RecordEventOutput, error) {
	outcomes := make([]store.Outcome, 0, len(input.Outcomes))
	for _, o := range input.Outcomes {
		outcomes = append(outcomes, store.Outcome{
			EntityID:    o.EntityID,
			Field:       o.Field,
			ToValue:     o.ToValue,
			FromValue:   o.FromValue,
			Description: o.Description,
		})
	}

	event, result, err := s.events.Record(ctx, events.RecordRequest{
		ContinuityID:      input.ContinuityID,
		Name:              input.Name,
		Description:       input.Description,
		InWorldTime:       input.InWorldTime,
		RealWorldAnchor:   input.RealWorldAnchor,
		LocationID:        input.LocationID,
		InvolvedEntityIDs: input.InvolvedEntityIDs,
		Outcomes:          outcomes,
	})
	if err != nil {
		return nil, RecordEventOutput{}, err
	}
	return nil, recordEventOutput(event, result), nil
}

func (s *Server) handleGetTimeline(ctx context.Context, req *sdk.CallToolRequest, input GetTimelineInput) (*sdk.CallToolResult, GetTimelineOutput, error) {
	if input.ContinuityID == "" {
		return nil, GetTimelineOutput{}, fmt.Errorf("continuityID is required")
	}
	timelineEvents, err := s.events.Timeline(ctx, input.ContinuityID)
	if err != nil {
		return nil, GetTimelineOutput{}, err
	}

	output := make([]EventOutput, 0, len(timelineEvents))
	for _, event := range timelineEvents {
		output = append(output, eventOutput(event))
	}
	return nil, GetTimelineOutput{Events: output}, nil
}

func (s *Server) handleGetCurrentState(ctx context.Context, req *sdk.CallToolRequest, input GetCurrentStateInput) (*sdk.CallToolResult, GetCurrentStateOutput, error) {
	state, err := s.events.CurrentState(ctx, input.ContinuityID, input.EntityID)
	if err != nil {
		return nil, GetCurrentStateOutput{}, err
	}
	return nil, currentStateOutput(input.EntityID, state), nil
}

func (s *Server) handleStartSession(ctx context.Context, req *sdk.CallToolRequest, input StartSessionInput) (*sdk.CallToolResult, SessionRunOutput, error) {
	run, err := s.sessions.Start(ctx, input.CampaignID, input.SessionID)
	if err != nil {
		return nil, SessionRunOutput{}, err
	}
	return nil, sessionRunOutput(run), nil
}

func (s *Server) handleEndSession(ctx context.Context, req *sdk.CallToolRequest, input EndSessionInput) (*sdk.CallToolResult, EndSessionOutput, error) {
	if err := s.sessions.End(ctx, input.CampaignID, input.SessionID, input.DurationSeconds); err != nil {
		return nil, EndSessionOutput{}, err
	}
	return nil, EndSessionOutput{Ended: true}, nil
}

func (s *Server) handleSessionStatus(ctx context.Context, req *sdk.CallToolRequest, input SessionStatusInput) (*sdk.CallToolResult, SessionStatusOutput, error) {
	run, err := s.sessions.Status(ctx, input.CampaignID)
	if err != nil {
		return nil, SessionStatusOutput{}, err
	}
	if run == nil {
		return nil, SessionStatusOutput{Active: false}, nil
	}
	out := sessionRunOutput(*run)
	return nil, SessionStatusOutput{Active: true, Run: &out}, nil
}

func (s *Server) handleListDrifts(ctx context.Context, req *sdk.CallToolRequest, input ListDriftsInput) (*sdk.CallToolResult, ListDriftsOutput, error) {
	drifts, err := s.drifts.List(ctx, store.DriftFilter{
		EntityID:     input.EntityID,
		ContinuityID: input.ContinuityID,
		Unresolved:   input.Unresolved,
	})
	if err != nil {
		return nil, ListDriftsOutput{}, err
	}
	return nil, ListDriftsOutput{Drifts: driftOutputs(drifts)}, nil
}

func (s *Server) handleScanDrift(ctx context.Context, req *sdk.CallToolRequest, input ScanDriftInput) (*sdk.CallToolResult, ListDriftsOutput, error) {
	drifts, err := s.drifts.ScanContinuity(ctx, input.ContinuityID)
	if err != nil {
		return nil, ListDriftsOutput{}, err
	}
	return nil, ListDriftsOutput{Drifts: driftOutputs(drifts)}, nil
}

func (s *Server) handleResolveDrift(ctx context.Context, req *sdk.CallToolRequest, input ResolveDriftInput) (*sdk.CallToolResult, DriftOutput, error) {
	resolved, err := s.drifts.Resolve(ctx, input.DriftID)
	if err != nil {
		return nil, DriftOutput{}, err
	}
	return nil, driftOutput(resolved), nil
}

func continuityOutput(c store.Continuity) ContinuityOutput {
	return ContinuityOutput{
		ID:                 c.ID,
		WorldID:            c.WorldID,
		Name:               c.Name,
		Description:        c.Description,
		BranchedFromID:     c.BranchedFromID,
		BranchPointEventID: c.BranchPointEventID,
	}
}

func eventOutput(e store.Event) EventOutput {
	outcomes := make([]OutcomeInput, 0, len(e.Outcomes))
	for _, o := range e.Outcomes {
		outcomes = append(outcomes, OutcomeInput{
			EntityID:    o.EntityID,
			Field:       o.Field,
			ToValue:     o.ToValue,
			FromValue:   o.FromValue,
			Description: o.Description,
		})
	}
	return EventOutput{
		ID:                e.ID,
		ContinuityID:      e.ContinuityID,
		Name:              e.Name,
		Description:       e.Description,
		InWorldTime:       e.InWorldTime,
		RealWorldAnchor:   e.RealWorldAnchor,
		LocationID:        e.LocationID,
		InvolvedEntityIDs: e.InvolvedEntityIDs,
		Outcomes:          outcomes,
	}
}

func recordEventOutput(e store.Event, result timeline.Result) RecordEventOutput {
	applied := make([]AppliedOutput, 0, len(result.Applied))
	for _, a := range result.Applied {
		applied = append(applied, AppliedOutput{
			EntityID: a.EntityID,
			Field:    a.Field,
			Value:    a.Value,
			EventID:  a.EventID,
		})
	}
	return RecordEventOutput{
		Event:    eventOutput(e),
		Applied:  applied,
		Warnings: result.Warnings,
	}
}

func currentStateOutput(entityID string, state map[string]timeline.Winner) GetCurrentStateOutput {
	fields := make([]FieldStateOutput, 0, len(state))
	for field, winner := range state {
		fields = append(fields, FieldStateOutput{
			Field:       field,
			Value:       winner.Outcome.ToValue,
			EventID:     winner.EventID,
			InWorldTime: winner.InWorldTime,
		})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
	return GetCurrentStateOutput{EntityID: entityID, Fields: fields}
}

func sessionRunOutput(run store.ActiveSessionRun) SessionRunOutput {
	return SessionRunOutput{
		CampaignID: run.CampaignID,
		SessionID:  run.SessionID,
		StartedAt:  run.StartedAt.Format(time.RFC3339),
	}
}

func driftOutputs(drifts []store.Drift) []DriftOutput {
	output := make([]DriftOutput, 0, len(drifts))
	for _, d := range drifts {
		output = append(output, driftOutput(d))
	}
	return output
}

func driftOutput(d store.Drift) DriftOutput {
	return DriftOutput{
		ID:                d.ID,
		EntityID:          d.EntityID,
		ContinuityID:      d.ContinuityID,
		Field:             d.Field,
		EventDerivedValue: d.EventDerivedValue,
		CurrentValue:      d.CurrentValue,
		Resolved:          d.Resolved(),
	}
}
