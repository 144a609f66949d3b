package edc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"paperkg/internal/debugwriter"
	"paperkg/pkg/common"
)

type fakeParser struct {
	text string
	err  error
}

func (f *fakeParser) ParseText(ctx context.Context, paperID string, data []byte) (string, error) {
	return f.text, f.err
}

type fakePreParser struct {
	ctx   *common.PreparsedPaperContext
	err   error
	calls int
}

func (f *fakePreParser) PreParse(ctx context.Context, text string) (*common.PreparsedPaperContext, error) {
	f.calls++
	return f.ctx, f.err
}

type fakeExtractor struct {
	graph common.GraphData
	err   error
	seen  *common.PreparsedPaperContext
}

func (f *fakeExtractor) Extract(ctx context.Context, text string, preparsed *common.PreparsedPaperContext) (common.GraphData, error) {
	f.seen = preparsed
	return f.graph, f.err
}

type fakeDefiner struct {
	graph common.GraphData
	err   error
}

func (f *fakeDefiner) Define(ctx context.Context, g common.GraphData) (common.GraphData, error) {
	return f.graph, f.err
}

type fakeStore struct {
	upsertErr  error
	upserted   common.GraphData
}

func (f *fakeStore) Init(ctx context.Context) error { return nil }
func (f *fakeStore) UpsertGraph(ctx context.Context, graph common.GraphData) error {
	f.upserted = graph
	return f.upsertErr
}
func (f *fakeStore) FetchSimilarEntities(ctx context.Context, entity common.Entity, k int) ([]common.Entity, error) {
	return nil, nil
}
func (f *fakeStore) FetchSimilarEntitiesBatch(ctx context.Context, entities []common.Entity) (map[string][]common.Entity, error) {
	return nil, nil
}
func (f *fakeStore) RecordDocument(ctx context.Context, path, checksum string) error { return nil }
func (f *fakeStore) Summarize(ctx context.Context) (common.GraphSummary, error)      { return common.GraphSummary{}, nil }
func (f *fakeStore) Close()                                                          {}

func sampleGraph() common.GraphData {
	return common.GraphData{
		Entities: []common.Entity{{ID: "a", Name: "A", Type: "Method"}},
	}
}

func TestRun_HappyPathEmitsEventsInOrderAndCompletes(t *testing.T) {
	st := &fakeStore{}
	w := New(&fakeParser{text: "paper text"}, &fakePreParser{ctx: &common.PreparsedPaperContext{Title: "T"}},
		&fakeExtractor{graph: sampleGraph()}, &fakeDefiner{graph: sampleGraph()}, st, debugwriter.New(""))

	var kinds []string
	var complete CompleteEvent
	for ev := range w.Run(context.Background(), "papers/a.pdf", []byte("pdf")) {
		switch e := ev.(type) {
		case LoadEvent:
			kinds = append(kinds, "load")
		case PreParsedEvent:
			kinds = append(kinds, "preparsed")
		case ExtractEvent:
			kinds = append(kinds, "extract")
		case DefineEvent:
			kinds = append(kinds, "define")
		case CanonicalizeEvent:
			kinds = append(kinds, "canonicalize")
		case SaveEvent:
			kinds = append(kinds, "save")
		case CompleteEvent:
			kinds = append(kinds, "complete")
			complete = e
		}
	}

	require.Equal(t, []string{"load", "preparsed", "extract", "define", "canonicalize", "save", "complete"}, kinds)
	require.True(t, complete.Success)
	require.Equal(t, "papers/a.pdf", complete.PaperPath)
	require.Equal(t, 1, complete.EntitiesCount)
	require.NotNil(t, complete.FinalGraph)
	require.Equal(t, sampleGraph().Entities, st.upserted.Entities)
}

func TestRun_LoadFailureEmitsFailedComplete(t *testing.T) {
	w := New(&fakeParser{err: errors.New("parser down")}, nil, &fakeExtractor{}, &fakeDefiner{}, &fakeStore{}, debugwriter.New(""))

	complete := Drain(w.Run(context.Background(), "p.pdf", nil))

	require.False(t, complete.Success)
	require.Contains(t, complete.Error, "parser down")
}

func TestRun_PreParseFailureDegradesInsteadOfFailing(t *testing.T) {
	extractor := &fakeExtractor{graph: sampleGraph()}
	w := New(&fakeParser{text: "text"}, &fakePreParser{err: errors.New("preparse down")},
		extractor, &fakeDefiner{graph: sampleGraph()}, &fakeStore{}, debugwriter.New(""))

	complete := Drain(w.Run(context.Background(), "p.pdf", nil))

	require.True(t, complete.Success)
	require.Nil(t, extractor.seen)
}

func TestRun_NilPreParserSkipsPreParseStage(t *testing.T) {
	w := New(&fakeParser{text: "text"}, nil, &fakeExtractor{graph: sampleGraph()}, &fakeDefiner{graph: sampleGraph()}, &fakeStore{}, debugwriter.New(""))

	var sawPreParsed bool
	for ev := range w.Run(context.Background(), "p.pdf", nil) {
		if _, ok := ev.(PreParsedEvent); ok {
			sawPreParsed = true
		}
	}
	require.False(t, sawPreParsed)
}

func TestRun_DefineFailureIsFatalForTheRun(t *testing.T) {
	w := New(&fakeParser{text: "text"}, nil, &fakeExtractor{graph: sampleGraph()},
		&fakeDefiner{err: errors.New("malformed json")}, &fakeStore{}, debugwriter.New(""))

	complete := Drain(w.Run(context.Background(), "p.pdf", nil))

	require.False(t, complete.Success)
	require.Contains(t, complete.Error, "malformed json")
}

func TestRun_SaveFailurePropagatesAsFailedComplete(t *testing.T) {
	st := &fakeStore{upsertErr: errors.New("serialization failure exhausted retries")}
	w := New(&fakeParser{text: "text"}, nil, &fakeExtractor{graph: sampleGraph()}, &fakeDefiner{graph: sampleGraph()}, st, debugwriter.New(""))

	complete := Drain(w.Run(context.Background(), "p.pdf", nil))

	require.False(t, complete.Success)
	require.Contains(t, complete.Error, "serialization failure")
}
