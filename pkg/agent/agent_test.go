package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"paperkg/pkg/ai"
	"paperkg/pkg/common"
	"paperkg/pkg/discovery"
	"paperkg/pkg/edc"
	"paperkg/pkg/store"
)

type scriptedChatClient struct {
	results []ai.ChatResult
	calls   int
}

func (f *scriptedChatClient) GenerateChat(ctx context.Context, messages []ai.ChatMessage, opts ...ai.GenerateOption) (string, error) {
	return "", nil
}

func (f *scriptedChatClient) GenerateJSON(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	return nil
}

func (f *scriptedChatClient) GenerateChatWithTools(ctx context.Context, messages []ai.ChatMessage, tools []ai.Tool, opts ...ai.GenerateOption) (ai.ChatResult, error) {
	result := f.results[f.calls]
	f.calls++
	return result, nil
}

func (f *scriptedChatClient) ResetMetrics() {}

func (f *scriptedChatClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

type fakeEmbedder struct{}

func (fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func (fakeEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	return out, nil
}

type fakeProvider struct{}

func (fakeProvider) SearchPapers(ctx context.Context, query string, limit int) ([]discovery.Paper, error) {
	return []discovery.Paper{{ID: "P1", Title: "A Paper", CitationCount: 3}}, nil
}

func (fakeProvider) GetCitations(ctx context.Context, paperID string, limit int) ([]discovery.Paper, error) {
	return nil, nil
}

func (fakeProvider) ResolvePDFURL(ctx context.Context, paperID string) (string, error) {
	return "", nil
}

type fakeStore struct {
	summary common.GraphSummary
}

func (f *fakeStore) Init(ctx context.Context) error { return nil }
func (f *fakeStore) UpsertGraph(ctx context.Context, graph common.GraphData) error {
	return nil
}
func (f *fakeStore) FetchSimilarEntities(ctx context.Context, entity common.Entity, k int) ([]common.Entity, error) {
	return []common.Entity{{ID: "e1", Name: "Match"}}, nil
}
func (f *fakeStore) FetchSimilarEntitiesBatch(ctx context.Context, entities []common.Entity) (map[string][]common.Entity, error) {
	return nil, nil
}
func (f *fakeStore) RecordDocument(ctx context.Context, path, checksum string) error { return nil }
func (f *fakeStore) Summarize(ctx context.Context) (common.GraphSummary, error) {
	return f.summary, nil
}
func (f *fakeStore) Close() {}

var _ store.GraphStorage = (*fakeStore)(nil)

func newTestController(chat ai.ChatClient) *Controller {
	return New(chat, fakeEmbedder{}, fakeProvider{}, nil, nil, nil, &fakeStore{}, 5)
}

func TestRun_ReturnsFinalAnswerWithNoToolCalls(t *testing.T) {
	chat := &scriptedChatClient{results: []ai.ChatResult{{Content: "done, found nothing new"}}}
	c := newTestController(chat)

	answer, err := c.Run(context.Background(), "survey the field")
	require.NoError(t, err)
	require.Equal(t, "done, found nothing new", answer)
	require.Equal(t, 1, chat.calls)
}

func TestRun_ExecutesToolCallThenReturnsFinalAnswer(t *testing.T) {
	chat := &scriptedChatClient{results: []ai.ChatResult{
		{ToolCalls: []ai.ToolCall{{ID: "call1", Name: "searchPapers", Arguments: `{"query":"nerf","limit":5}`}}},
		{Content: "found one paper"},
	}}
	c := newTestController(chat)

	answer, err := c.Run(context.Background(), "find papers about nerf")
	require.NoError(t, err)
	require.Equal(t, "found one paper", answer)
	require.Equal(t, 2, chat.calls)
}

func TestRun_UnknownToolNameReportedAsToolError(t *testing.T) {
	chat := &scriptedChatClient{results: []ai.ChatResult{
		{ToolCalls: []ai.ToolCall{{ID: "call1", Name: "notATool", Arguments: `{}`}}},
		{Content: "gave up"},
	}}
	c := newTestController(chat)

	answer, err := c.Run(context.Background(), "do something unsupported")
	require.NoError(t, err)
	require.Equal(t, "gave up", answer)
}

func TestRun_StepCapReachedReturnsError(t *testing.T) {
	results := make([]ai.ChatResult, 5)
	for i := range results {
		results[i] = ai.ChatResult{ToolCalls: []ai.ToolCall{{ID: "call", Name: "summarizeKnowledgeGraph", Arguments: `{}`}}}
	}
	chat := &scriptedChatClient{results: results}
	c := newTestController(chat)
	c.StepCap = 5

	_, err := c.Run(context.Background(), "loop forever")
	require.Error(t, err)
	require.Equal(t, 5, chat.calls)
}

func TestToolQueryKnowledgeGraph_ReturnsEntitiesAndCount(t *testing.T) {
	c := newTestController(&scriptedChatClient{})
	tool := c.toolQueryKnowledgeGraph()

	out, err := tool.Handler(context.Background(), `{"searchTerm":"gradient descent","limit":5}`)
	require.NoError(t, err)

	var parsed struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	require.Equal(t, 1, parsed.Count)
}

func TestToolSummarizeKnowledgeGraph_ReturnsAggregates(t *testing.T) {
	st := &fakeStore{summary: common.GraphSummary{TotalEntities: 7, TotalRelationships: 3}}
	c := New(&scriptedChatClient{}, fakeEmbedder{}, fakeProvider{}, nil, nil, nil, st, 5)
	tool := c.toolSummarizeKnowledgeGraph()

	out, err := tool.Handler(context.Background(), `{}`)
	require.NoError(t, err)

	var summary common.GraphSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	require.Equal(t, 7, summary.TotalEntities)
}

func TestProcessPaper_ReadFileFailureSurfacesAsUnsuccessfulResult(t *testing.T) {
	st := &fakeStore{}
	wf := edc.New(nil, nil, nil, nil, st, nil)
	c := New(&scriptedChatClient{}, fakeEmbedder{}, fakeProvider{}, nil, wf, nil, st, 5)

	result := c.ProcessPaper(context.Background(), "/no/such/file.pdf", "")
	require.False(t, result.Success)
	require.NotEmpty(t, result.Error)
}
