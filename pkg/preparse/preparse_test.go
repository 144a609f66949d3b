package preparse

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"paperkg/pkg/ai"
)

type fakeChatClient struct {
	raw       string
	err       error
	callCount int
}

func (f *fakeChatClient) GenerateChat(ctx context.Context, messages []ai.ChatMessage, opts ...ai.GenerateOption) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeChatClient) GenerateJSON(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	f.callCount++
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.raw), out)
}

func (f *fakeChatClient) GenerateChatWithTools(ctx context.Context, messages []ai.ChatMessage, tools []ai.Tool, opts ...ai.GenerateOption) (ai.ChatResult, error) {
	return ai.ChatResult{}, errors.New("not implemented")
}

func (f *fakeChatClient) ResetMetrics()                {}
func (f *fakeChatClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func TestPreParse_EmptyTextSkipsLLM(t *testing.T) {
	client := &fakeChatClient{}
	p := New(client)

	got, err := p.PreParse(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "", got.Title)
	require.Equal(t, 0, client.callCount)
}

func TestPreParse_PopulatesAllFields(t *testing.T) {
	client := &fakeChatClient{raw: `{
		"title": "Neural Radiance Fields",
		"authors": [{"name": "Ben Mildenhall", "affiliation": "UC Berkeley"}],
		"abstract": "We present a method...",
		"keywords": ["rendering", "neural fields"],
		"mainFindings": ["state of the art view synthesis"],
		"methodology": "volumetric rendering",
		"results": "improved PSNR",
		"discussion": "limitations remain",
		"references": ["[1] ..."],
		"publication": "ECCV 2020"
	}`}
	p := New(client)

	got, err := p.PreParse(context.Background(), "some paper text")
	require.NoError(t, err)
	require.Equal(t, "Neural Radiance Fields", got.Title)
	require.Len(t, got.Authors, 1)
	require.Equal(t, "Ben Mildenhall", got.Authors[0].Name)
	require.Equal(t, "UC Berkeley", got.Authors[0].Affiliation)
	require.Equal(t, []string{"rendering", "neural fields"}, got.Keywords)
	require.Equal(t, "ECCV 2020", got.Publication)
}

func TestPreParse_LLMFailurePropagates(t *testing.T) {
	client := &fakeChatClient{err: errors.New("provider unavailable")}
	p := New(client)

	_, err := p.PreParse(context.Background(), "some paper text")
	require.Error(t, err)
}
