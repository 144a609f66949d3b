package define

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
	generateJSON func(ctx context.Context, name, description, prompt string, out any) error
}

func (f *fakeChatClient) GenerateChat(ctx context.Context, messages []ai.ChatMessage, opts ...ai.GenerateOption) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeChatClient) GenerateJSON(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	return f.generateJSON(ctx, name, description, prompt, out)
}

func (f *fakeChatClient) GenerateChatWithTools(ctx context.Context, messages []ai.ChatMessage, tools []ai.Tool, opts ...ai.GenerateOption) (ai.ChatResult, error) {
	return ai.ChatResult{}, errors.New("not implemented")
}

func (f *fakeChatClient) ResetMetrics()                {}
func (f *fakeChatClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func TestDefine_RefinesTypeAndPreservesOtherFields(t *testing.T) {
	client := &fakeChatClient{
		generateJSON: func(ctx context.Context, name, description, prompt string, out any) error {
			raw := `{"entities":[{"id":"nerf","name":"Neural Radiance Fields","type":"Method"}]}`
			return json.Unmarshal([]byte(raw), out)
		},
	}
	d := New(client)

	input := common.GraphData{
		Entities: []common.Entity{
			{ID: "nerf", Name: "NeRF", Type: "unknown", Description: "a rendering technique", Aliases: []string{"NeRF"}},
		},
	}

	got, err := d.Define(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, got.Entities, 1)
	require.Equal(t, "Method", got.Entities[0].Type)
	require.Equal(t, "Neural Radiance Fields", got.Entities[0].Name)
	require.Equal(t, "a rendering technique", got.Entities[0].Description)
	require.Equal(t, []string{"NeRF"}, got.Entities[0].Aliases)
}

func TestDefine_MissingRefinedIDKeepsOriginal(t *testing.T) {
	client := &fakeChatClient{
		generateJSON: func(ctx context.Context, name, description, prompt string, out any) error {
			return json.Unmarshal([]byte(`{"entities":[]}`), out)
		},
	}
	d := New(client)

	input := common.GraphData{
		Entities: []common.Entity{{ID: "a", Name: "A", Type: "Concept"}},
	}

	got, err := d.Define(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, input.Entities, got.Entities)
}

func TestDefine_EmptyFragmentSkipsLLM(t *testing.T) {
	client := &fakeChatClient{
		generateJSON: func(ctx context.Context, name, description, prompt string, out any) error {
			t.Fatal("should not be called for empty fragment")
			return nil
		},
	}
	d := New(client)

	got, err := d.Define(context.Background(), common.GraphData{})
	require.NoError(t, err)
	require.Empty(t, got.Entities)
}

func TestDefine_BatchFailureIsFatal(t *testing.T) {
	client := &fakeChatClient{
		generateJSON: func(ctx context.Context, name, description, prompt string, out any) error {
			return errors.New("malformed json")
		},
	}
	d := New(client)

	input := common.GraphData{Entities: []common.Entity{{ID: "a", Name: "A"}}}
	_, err := d.Define(context.Background(), input)
	require.Error(t, err)
}

func TestDefine_MultipleBatches(t *testing.T) {
	calls := 0
	client := &fakeChatClient{
		generateJSON: func(ctx context.Context, name, description, prompt string, out any) error {
			calls++
			return json.Unmarshal([]byte(`{"entities":[]}`), out)
		},
	}
	d := New(client)

	entities := make([]common.Entity, BatchSize+5)
	for i := range entities {
		entities[i] = common.Entity{ID: "id" + string(rune('a'+i%26)) + string(rune('0'+i/26)), Name: "x"}
	}

	_, err := d.Define(context.Background(), common.GraphData{Entities: entities})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}
