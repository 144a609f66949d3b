// Package edc implements the Load -> (PreParse) -> Extract -> Define ->
// Canonicalize -> Save event-driven workflow that turns one PDF into a
// validated, self-deduplicated graph fragment.
package edc

import (
	"context"
	"crypto/sha256"
	"fmt"

	"paperkg/internal/debugwriter"
	"paperkg/pkg/canonicalize"
	"paperkg/pkg/common"
	"paperkg/pkg/logger"
	"paperkg/pkg/store"
)

// TextParser obtains text from a PDF blob. Implemented by pkg/parser.
type TextParser interface {
	ParseText(ctx context.Context, paperID string, data []byte) (string, error)
}

// PreParser extracts structured metadata ahead of extraction. Implemented
// by pkg/preparse.
type PreParser interface {
	PreParse(ctx context.Context, text string) (*common.PreparsedPaperContext, error)
}

// Extractor runs the entities-then-relationships extraction stage.
// Implemented by pkg/extract.
type Extractor interface {
	Extract(ctx context.Context, text string, preparsed *common.PreparsedPaperContext) (common.GraphData, error)
}

// Definer refines entity types/names in batches. Implemented by pkg/define.
type Definer interface {
	Define(ctx context.Context, g common.GraphData) (common.GraphData, error)
}

// Workflow drives a single paper through every EDC stage, emitting one
// Event per transition on a channel the caller drains until CompleteEvent.
type Workflow struct {
	Parser    TextParser
	PreParser PreParser // nil disables the PreParse stage
	Extractor Extractor
	Definer   Definer
	Store     store.GraphStorage
	Debug     *debugwriter.Writer

	// Canonicalize is a pure function hook so tests can swap it; production
	// callers leave it at its New default.
	Canonicalize func(common.GraphData) common.GraphData
}

// New builds a Workflow. preParser may be nil to run Load -> Extract
// directly, skipping the PreParse stage.
func New(parser TextParser, preParser PreParser, extractor Extractor, definer Definer, st store.GraphStorage, debug *debugwriter.Writer) *Workflow {
	return &Workflow{
		Parser:       parser,
		PreParser:    preParser,
		Extractor:    extractor,
		Definer:      definer,
		Store:        st,
		Debug:        debug,
		Canonicalize: canonicalize.Canonicalize,
	}
}

// Run starts a single paper's pipeline and returns the event stream. The
// channel is closed after the terminal CompleteEvent is sent.
func (w *Workflow) Run(ctx context.Context, paperPath string, pdfBytes []byte) <-chan Event {
	out := make(chan Event, 8)
	go w.drive(ctx, paperPath, pdfBytes, out)
	return out
}

// Drain runs the workflow to completion and returns its terminal event,
// for callers that only want the final result rather than the stream.
func Drain(events <-chan Event) CompleteEvent {
	var last CompleteEvent
	for ev := range events {
		if c, ok := ev.(CompleteEvent); ok {
			last = c
		}
	}
	return last
}

func (w *Workflow) drive(ctx context.Context, paperPath string, pdfBytes []byte, out chan<- Event) {
	defer close(out)

	pending := []Event{LoadEvent{PaperPath: paperPath}}
	for len(pending) > 0 {
		ev := pending[0]
		pending = pending[1:]

		out <- ev
		if _, ok := ev.(CompleteEvent); ok {
			return
		}

		if next := w.handle(ctx, ev, pdfBytes); next != nil {
			pending = append(pending, next)
		}
	}
}

func (w *Workflow) handle(ctx context.Context, ev Event, pdfBytes []byte) Event {
	switch e := ev.(type) {
	case LoadEvent:
		return w.handleLoad(ctx, e, pdfBytes)
	case PreParsedEvent:
		return w.handlePreParse(ctx, e)
	case ExtractEvent:
		return w.handleExtract(ctx, e)
	case DefineEvent:
		return w.handleDefine(ctx, e)
	case CanonicalizeEvent:
		return w.handleCanonicalize(e)
	case SaveEvent:
		return w.handleSave(ctx, e, pdfBytes)
	case ErrorEvent:
		return w.handleError(e)
	default:
		return nil
	}
}

func (w *Workflow) handleLoad(ctx context.Context, e LoadEvent, pdfBytes []byte) Event {
	text, err := w.Parser.ParseText(ctx, e.PaperPath, pdfBytes)
	if err != nil {
		return ErrorEvent{Stage: "load", Err: err, PaperPath: e.PaperPath}
	}
	if w.PreParser == nil {
		return ExtractEvent{Text: text, PaperPath: e.PaperPath}
	}
	return PreParsedEvent{Text: text, PaperPath: e.PaperPath}
}

func (w *Workflow) handlePreParse(ctx context.Context, e PreParsedEvent) Event {
	preparsed, err := w.PreParser.PreParse(ctx, e.Text)
	if err != nil {
		logger.Warn("edc: pre-parse failed, proceeding without context", "paperPath", e.PaperPath, "error", err)
		return ExtractEvent{Text: e.Text, PaperPath: e.PaperPath}
	}
	w.Debug.Write(debugwriter.PreParsed, preparsed)
	return ExtractEvent{Text: e.Text, PaperPath: e.PaperPath, Context: preparsed}
}

func (w *Workflow) handleExtract(ctx context.Context, e ExtractEvent) Event {
	graph, err := w.Extractor.Extract(ctx, e.Text, e.Context)
	if err != nil {
		return ErrorEvent{Stage: "extract", Err: err, PaperPath: e.PaperPath}
	}
	w.Debug.Write(debugwriter.Extraction, graph)
	return DefineEvent{Graph: graph, PaperPath: e.PaperPath}
}

func (w *Workflow) handleDefine(ctx context.Context, e DefineEvent) Event {
	graph, err := w.Definer.Define(ctx, e.Graph)
	if err != nil {
		return ErrorEvent{Stage: "define", Err: err, PaperPath: e.PaperPath}
	}
	w.Debug.Write(debugwriter.Definition, graph)
	return CanonicalizeEvent{Graph: graph, PaperPath: e.PaperPath}
}

func (w *Workflow) handleCanonicalize(e CanonicalizeEvent) Event {
	graph := w.Canonicalize(e.Graph)
	w.Debug.Write(debugwriter.Canonicalization, graph)
	return SaveEvent{Graph: graph, PaperPath: e.PaperPath}
}

func (w *Workflow) handleSave(ctx context.Context, e SaveEvent, pdfBytes []byte) Event {
	if err := w.Store.UpsertGraph(ctx, e.Graph); err != nil {
		return ErrorEvent{Stage: "save", Err: err, PaperPath: e.PaperPath}
	}

	checksum := fmt.Sprintf("%x", sha256.Sum256(pdfBytes))
	if err := w.Store.RecordDocument(ctx, e.PaperPath, checksum); err != nil {
		logger.Warn("edc: record document failed, graph was still saved", "paperPath", e.PaperPath, "error", err)
	}

	graph := e.Graph
	return CompleteEvent{
		Success:            true,
		PaperPath:          e.PaperPath,
		EntitiesCount:      len(graph.Entities),
		RelationshipsCount: len(graph.Relationships),
		FinalGraph:         &graph,
	}
}

func (w *Workflow) handleError(e ErrorEvent) Event {
	logger.Error("edc: stage failed", "stage", e.Stage, "paperPath", e.PaperPath, "error", e.Err)
	return CompleteEvent{Success: false, PaperPath: e.PaperPath, Error: e.Err.Error()}
}
