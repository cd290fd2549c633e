package store

import (
	"time"

	"github.com/google/uuid"
)

// FactType classifies a memory_units row (§3).
type FactType string

const (
	FactTypeWorld       FactType = "world"
	FactTypeExperience  FactType = "experience"
	FactTypeObservation FactType = "observation"
)

// FactKind further classifies a raw fact (world/experience) by the dedup
// strategy it uses (§4.5 step 5); observations leave this empty.
type FactKind string

const (
	FactKindEvent        FactKind = "event"
	FactKindConversation FactKind = "conversation"
)

// HistoryEntry is one append-only record of an observation's evolution
// (§3: "history (append-only list of {at, change} records)").
type HistoryEntry struct {
	At     time.Time `json:"at"`
	Change string    `json:"change"`
}

// MemoryUnit is a row of memory_units: either a raw fact (world/experience)
// captured during Retain or a consolidated observation produced by
// Consolidation (§3).
type MemoryUnit struct {
	ID         uuid.UUID
	BankID     uuid.UUID
	DocumentID *uuid.UUID

	Text      string
	Context   string
	Embedding []float32

	FactType FactType
	FactKind *FactKind

	What             string
	Who              []string
	WhenDescription  string
	WhereDescription string
	WhyDescription   string

	EventDate     *time.Time
	OccurredStart *time.Time
	OccurredEnd   *time.Time
	MentionedAt   *time.Time

	// Observation-only fields; zero-valued on world/experience units.
	ProofCount      int
	SourceMemoryIDs []uuid.UUID
	History         []HistoryEntry
	ConfidenceScore *float64

	ConsolidatedAt *time.Time

	Tags     []string
	Metadata map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Entity is a resolved canonical name within a bank (§3, §4.4).
type Entity struct {
	ID            uuid.UUID
	BankID        uuid.UUID
	CanonicalName string
	EntityType    string // person|organization|location|concept|event|other
	MentionCount  int
	FirstSeen     time.Time
	LastSeen      time.Time
}

// LinkType classifies a directed edge between two units (§3).
type LinkType string

const (
	LinkTemporal  LinkType = "temporal"
	LinkSemantic  LinkType = "semantic"
	LinkEntity    LinkType = "entity"
	LinkCauses    LinkType = "causes"
	LinkCausedBy  LinkType = "caused_by"
)

// MemoryLink is a directed, typed, weighted edge in the observation graph
// (§3). Unique on the full (from, to, link_type, entity_id) tuple.
type MemoryLink struct {
	ID         uuid.UUID
	BankID     uuid.UUID
	FromUnitID uuid.UUID
	ToUnitID   uuid.UUID
	LinkType   LinkType
	EntityID   *uuid.UUID
	Weight     float64 // in [0,1]
	CreatedAt  time.Time
}

// EntityCooccurrence is a symmetric edge between two distinct entities,
// canonicalized so EntityA < EntityB (§3).
type EntityCooccurrence struct {
	BankID         uuid.UUID
	EntityA        uuid.UUID
	EntityB        uuid.UUID
	Count          int
	LastCooccurred time.Time
}

// AsyncOperationStatus is the lifecycle state of a durable job record (§3).
type AsyncOperationStatus string

const (
	AsyncPending    AsyncOperationStatus = "pending"
	AsyncProcessing AsyncOperationStatus = "processing"
	AsyncCompleted  AsyncOperationStatus = "completed"
	AsyncFailed     AsyncOperationStatus = "failed"
)

// AsyncOperation is a durable job record (consolidation batch, mental model
// generation/refresh). Has no updated_at — §4.1 uses started_at/completed_at
// instead.
type AsyncOperation struct {
	ID            uuid.UUID
	BankID        uuid.UUID
	OperationType string
	Status        AsyncOperationStatus
	WorkerID      string
	Payload       map[string]any
	Result        map[string]any
	ErrorMessage  string
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// MentalModel is a curated per-entity or per-theme summary (§3, §4.8).
type MentalModel struct {
	ID                        uuid.UUID
	BankID                    uuid.UUID
	EntityID                  *uuid.UUID
	Name                      string
	Description               string
	Content                   string
	SourceQuery               string
	Embedding                 []float32
	SourceObservationIDs      []uuid.UUID
	Tags                      []string
	MaxTokens                 int
	RefreshAfterConsolidation bool
	LastRefreshedAt           *time.Time
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// Document is the raw text a Retain call was given, prior to extraction.
type Document struct {
	ID        uuid.UUID
	BankID    uuid.UUID
	Source    string
	RawText   string
	CreatedAt time.Time
}

// Chunk is a pre-split passage of a memory unit's text, used by Reflect's
// expand tool (§3). Owned by the parent unit, not the document.
type Chunk struct {
	ID        uuid.UUID
	UnitID    uuid.UUID
	Ordinal   int
	Text      string
	Embedding []float32
	CreatedAt time.Time
}
