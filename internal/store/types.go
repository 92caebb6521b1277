package store

import "time"

// Kind enumerates the entity variants the store persists.
type Kind string

const (
	KindWorld     Kind = "world"
	KindCampaign  Kind = "campaign"
	KindCharacter Kind = "character"
	KindLocation  Kind = "location"
	KindFaction   Kind = "faction"
	KindNote      Kind = "note"
	KindSession   Kind = "session"
)

// ValidKind reports whether k names a known entity variant.
func ValidKind(k Kind) bool {
	switch k {
	case KindWorld, KindCampaign, KindCharacter, KindLocation, KindFaction, KindNote, KindSession:
		return true
	}
	return false
}

// Entity is a world record. Sessions additionally carry terminal fields
// written when their run ends.
type Entity struct {
	ID           string
	WorldID      string
	CampaignID   string
	ContinuityID string
	Kind         Kind
	Name         string
	Description  string
	Secrets      string
	TypeFields   map[string]string
	CreatedAt    time.Time
	ModifiedAt   time.Time

	EndedAt         *time.Time
	DurationSeconds *int64
}

// HasEnded reports whether a session entity already recorded its end.
func (e Entity) HasEnded() bool {
	return e.EndedAt != nil
}

// Event is a dated occurrence in a continuity that may declare outcomes.
type Event struct {
	ID                string
	WorldID           string
	ContinuityID      string
	Name              string
	Description       string
	InWorldTime       string
	RealWorldAnchor   string
	LocationID        string
	InvolvedEntityIDs []string
	Outcomes          []Outcome
	CreatedAt         time.Time
	ModifiedAt        time.Time
}

// Outcome claims that, as of its owning event, EntityID.Field becomes ToValue.
type Outcome struct {
	EntityID    string `json:"entityID"`
	Field       string `json:"field"`
	ToValue     string `json:"toValue"`
	FromValue   string `json:"fromValue,omitempty"`
	Description string `json:"description,omitempty"`
}

// Continuity is one branch of a world's fictional timeline.
type Continuity struct {
	ID                 string
	WorldID            string
	Name               string
	Description        string
	BranchedFromID     string
	BranchPointEventID string
	CreatedAt          time.Time
	ModifiedAt         time.Time
}

// Branched reports whether the continuity forked off a parent.
func (c Continuity) Branched() bool {
	return c.BranchedFromID != ""
}

// Drift records a mismatch between an entity's stored field value and the
// value the timeline implies. One logical drift exists per (entity, field).
type Drift struct {
	ID                string
	EntityID          string
	ContinuityID      string
	Field             string
	EventDerivedValue string
	CurrentValue      string
	DetectedAt        time.Time
	ResolvedAt        *time.Time
}

// Resolved reports whether the drift has been dismissed or converged.
func (d Drift) Resolved() bool {
	return d.ResolvedAt != nil
}

// ActiveSessionRun is the durable pointer marking a campaign's live session.
type ActiveSessionRun struct {
	CampaignID string
	SessionID  string
	StartedAt  time.Time
}

// EntityFilter narrows ListEntities. Zero fields match everything.
type EntityFilter struct {
	WorldID      string
	CampaignID   string
	ContinuityID string
	Kind         Kind
	Limit        int
}

// DriftFilter narrows ListDrifts. Zero fields match everything.
type DriftFilter struct {
	EntityID     string
	ContinuityID string
	Unresolved   bool
}
