package integrate

import "paperkg/pkg/common"

// Event is the marker interface for every message flowing through one
// fragment's Retrieve -> Resolve -> Persist integration run.
type Event interface {
	isEvent()
}

// IntegrateEvent kicks off a run: merge newGraph into the canonical store.
type IntegrateEvent struct {
	NewGraph  common.GraphData
	PaperPath string
}

func (IntegrateEvent) isEvent() {}

// CandidatesRetrievedEvent carries the new fragment plus, per new entity
// id, the candidate store entities retrieved by vector similarity.
type CandidatesRetrievedEvent struct {
	NewGraph   common.GraphData
	Candidates map[string][]common.Entity
	PaperPath  string
}

func (CandidatesRetrievedEvent) isEvent() {}

// EntitiesResolvedEvent carries the rewritten graph ready for persistence,
// plus the sequence of merge decisions made to produce it.
type EntitiesResolvedEvent struct {
	ResolvedGraph common.GraphData
	MergeLog      []common.MergeDecision
	PaperPath     string
}

func (EntitiesResolvedEvent) isEvent() {}

// IntegrationCompleteEvent is the terminal event for a run.
type IntegrationCompleteEvent struct {
	Success           bool
	PaperPath         string
	EntitiesProcessed int
	EntitiesMerged    int
	EntitiesCreated   int
	Error             string
}

func (IntegrationCompleteEvent) isEvent() {}

// IntegrationErrorEvent reports a handler-level failure at a named stage.
type IntegrationErrorEvent struct {
	Stage     string
	Err       error
	PaperPath string
}

func (IntegrationErrorEvent) isEvent() {}
