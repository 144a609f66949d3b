package extract

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"paperkg/pkg/ai"
	"paperkg/pkg/common"
)

type fakeChatClient struct {
	calls     int
	responses []string
	errOnCall int

	chatResponse string
	chatErr      error
}

func (f *fakeChatClient) GenerateChat(ctx context.Context, messages []ai.ChatMessage, opts ...ai.GenerateOption) (string, error) {
	if f.chatErr != nil {
		return "", f.chatErr
	}
	if f.chatResponse != "" {
		return f.chatResponse, nil
	}
	return "", errors.New("not implemented")
}

func (f *fakeChatClient) GenerateJSON(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	idx := f.calls
	f.calls++
	if f.errOnCall != 0 && idx+1 == f.errOnCall {
		return errors.New("malformed json")
	}
	if idx >= len(f.responses) {
		return errors.New("no more fake responses")
	}
	return json.Unmarshal([]byte(f.responses[idx]), out)
}

func (f *fakeChatClient) GenerateChatWithTools(ctx context.Context, messages []ai.ChatMessage, tools []ai.Tool, opts ...ai.GenerateOption) (ai.ChatResult, error) {
	return ai.ChatResult{}, errors.New("not implemented")
}

func (f *fakeChatClient) ResetMetrics()                {}
func (f *fakeChatClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func TestExtract_EmptyTextReturnsEmptyFragment(t *testing.T) {
	e := New(&fakeChatClient{})
	got, err := e.Extract(context.Background(), "", nil)
	require.NoError(t, err)
	require.Empty(t, got.Entities)
	require.Empty(t, got.Relationships)
}

func TestExtract_ZeroEntitiesSkipsStageB(t *testing.T) {
	client := &fakeChatClient{responses: []string{`{"entities":[]}`}}
	e := New(client)

	got, err := e.Extract(context.Background(), "some paper text", nil)
	require.NoError(t, err)
	require.Empty(t, got.Entities)
	require.Empty(t, got.Relationships)
	require.Equal(t, 1, client.calls)
}

func TestExtract_FiltersOrphanAndSelfLoopRelationships(t *testing.T) {
	entitiesResp := `{"entities":[{"id":"nerf","name":"NeRF","type":"Method"},{"id":"psnr","name":"PSNR","type":"Metric"}]}`
	relResp := `{"relationships":[
		{"sourceId":"nerf","targetId":"psnr","type":"achieves"},
		{"sourceId":"nerf","targetId":"nerf","type":"uses"},
		{"sourceId":"nerf","targetId":"unknown_id","type":"uses"},
		{"sourceId":"psnr","targetId":"nerf","type":"totally_made_up_type"}
	]}`
	client := &fakeChatClient{responses: []string{entitiesResp, relResp}}
	e := New(client)

	got, err := e.Extract(context.Background(), "some paper text", nil)
	require.NoError(t, err)
	require.Len(t, got.Entities, 2)
	require.Len(t, got.Relationships, 2)

	require.Equal(t, "achieves", got.Relationships[0].Type)
	require.Equal(t, common.RelationshipRelatedTo, got.Relationships[1].Type)
}

func TestExtract_EntityFailurePropagates(t *testing.T) {
	client := &fakeChatClient{responses: []string{`{"entities":[]}`}, errOnCall: 1}
	e := New(client)

	_, err := e.Extract(context.Background(), "text", nil)
	require.Error(t, err)
}

func TestMergeFragments_DedupesEntitiesAndRelationships(t *testing.T) {
	a := common.GraphData{
		Entities: []common.Entity{
			{ID: "nerf", Name: "NeRF", Type: "Method", Description: "first", Aliases: []string{"NeRF"}},
		},
		Relationships: []common.Relationship{
			{SourceID: "nerf", TargetID: "psnr", Type: "achieves"},
		},
	}
	b := common.GraphData{
		Entities: []common.Entity{
			{ID: "nerf", Name: "NeRF", Type: "Concept", Description: "second", Aliases: []string{"NeRF", "Neural Radiance Fields"}},
		},
		Relationships: []common.Relationship{
			{SourceID: "nerf", TargetID: "psnr", Type: "achieves"},
		},
	}

	merged := MergeFragments([]common.GraphData{a, b})

	require.Len(t, merged.Entities, 1)
	require.Equal(t, "Method", merged.Entities[0].Type)
	require.Equal(t, "first", merged.Entities[0].Description)
	require.ElementsMatch(t, []string{"NeRF", "Neural Radiance Fields"}, merged.Entities[0].Aliases)
	require.Len(t, merged.Relationships, 1)
}

func TestChunkText_SplitsAtParagraphBoundaries(t *testing.T) {
	text := "para one with some words in it.\n\npara two with some words in it.\n\npara three with some words in it."
	chunks := ChunkText(text, 5)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		require.NotEmpty(t, c)
	}
}

func TestChunkText_SingleParagraphIsOneChunk(t *testing.T) {
	chunks := ChunkText("just one paragraph, no breaks here", 100)
	require.Len(t, chunks, 1)
}
