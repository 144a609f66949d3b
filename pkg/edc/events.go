package edc

import "paperkg/pkg/common"

// Event is the marker interface for every message flowing through a single
// paper's Load -> (PreParse) -> Extract -> Define -> Canonicalize -> Save
// run. A run's event stream always terminates in exactly one CompleteEvent.
type Event interface {
	isEvent()
}

// LoadEvent kicks off a run: obtain text for the PDF at paperPath.
type LoadEvent struct {
	PaperPath string
}

func (LoadEvent) isEvent() {}

// PreParsedEvent carries text into the optional pre-parse stage. Load emits
// it with a nil Context; the PreParse handler then emits an ExtractEvent,
// whose Context stays nil when pre-parse fails.
type PreParsedEvent struct {
	Text      string
	PaperPath string
	Context   *common.PreparsedPaperContext
}

func (PreParsedEvent) isEvent() {}

// ExtractEvent triggers Stage A/B extraction over text, steered by an
// optional pre-parsed context.
type ExtractEvent struct {
	Text      string
	PaperPath string
	Context   *common.PreparsedPaperContext
}

func (ExtractEvent) isEvent() {}

// DefineEvent triggers batched type/name refinement over an extracted
// fragment.
type DefineEvent struct {
	Graph     common.GraphData
	PaperPath string
}

func (DefineEvent) isEvent() {}

// CanonicalizeEvent triggers intra-document deduplication over a refined
// fragment.
type CanonicalizeEvent struct {
	Graph     common.GraphData
	PaperPath string
}

func (CanonicalizeEvent) isEvent() {}

// SaveEvent triggers persistence of a canonicalized fragment.
type SaveEvent struct {
	Graph     common.GraphData
	PaperPath string
}

func (SaveEvent) isEvent() {}

// CompleteEvent is the terminal event for a run.
type CompleteEvent struct {
	Success            bool
	PaperPath          string
	EntitiesCount      int
	RelationshipsCount int
	FinalGraph         *common.GraphData
	Error              string
}

func (CompleteEvent) isEvent() {}

// ErrorEvent reports a handler-level failure at a named stage; the Error
// handler converts it into a CompleteEvent with Success=false.
type ErrorEvent struct {
	Stage     string
	Err       error
	PaperPath string
}

func (ErrorEvent) isEvent() {}
