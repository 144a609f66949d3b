package integrate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"paperkg/internal/debugwriter"
	"paperkg/pkg/ai"
	"paperkg/pkg/common"
)

type fakeCandidateStore struct {
	candidates  map[string][]common.Entity
	retrieveErr error
	persisted   common.GraphData
	persistErr  error
}

func (f *fakeCandidateStore) FetchSimilarEntitiesBatch(ctx context.Context, entities []common.Entity) (map[string][]common.Entity, error) {
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	return f.candidates, nil
}

func (f *fakeCandidateStore) UpsertGraph(ctx context.Context, graph common.GraphData) error {
	f.persisted = graph
	return f.persistErr
}

type fakeChatClient struct {
	response string
	err      error
}

func (f *fakeChatClient) GenerateChat(ctx context.Context, messages []ai.ChatMessage, opts ...ai.GenerateOption) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeChatClient) GenerateJSON(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.response), out)
}

func (f *fakeChatClient) GenerateChatWithTools(ctx context.Context, messages []ai.ChatMessage, tools []ai.Tool, opts ...ai.GenerateOption) (ai.ChatResult, error) {
	return ai.ChatResult{}, errors.New("not implemented")
}

func (f *fakeChatClient) ResetMetrics() {}

func (f *fakeChatClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func TestRun_NoCandidatesAlwaysCreates(t *testing.T) {
	newGraph := common.GraphData{
		Entities: []common.Entity{{ID: "nerf", Name: "NeRF", Type: "Method"}},
		Relationships: []common.Relationship{
			{SourceID: "nerf", TargetID: "nerf", Type: "related_to"},
		},
	}
	st := &fakeCandidateStore{candidates: map[string][]common.Entity{}}
	w := New(st, &fakeChatClient{}, debugwriter.New(""))

	complete := Drain(w.Run(context.Background(), newGraph, "p.pdf"))

	require.True(t, complete.Success)
	require.Equal(t, 1, complete.EntitiesProcessed)
	require.Equal(t, 0, complete.EntitiesMerged)
	require.Equal(t, 1, complete.EntitiesCreated)
	require.Len(t, st.persisted.Entities, 1)
	require.Equal(t, "nerf", st.persisted.Entities[0].ID)
}

func TestRun_MergeDecisionRewritesIdsAndReferencesTarget(t *testing.T) {
	newGraph := common.GraphData{
		Entities: []common.Entity{{ID: "nerf_new", Name: "NeRF", Type: "Method"}},
		Relationships: []common.Relationship{
			{SourceID: "nerf_new", TargetID: "nerf_new", Type: "related_to"},
		},
	}
	st := &fakeCandidateStore{
		candidates: map[string][]common.Entity{
			"nerf_new": {{ID: "nerf_existing", Name: "NeRF", Type: "Method"}},
		},
	}
	chat := &fakeChatClient{response: `{"action":"MERGE","targetId":"nerf_existing","confidence":0.9,"rationale":"same method"}`}
	w := New(st, chat, debugwriter.New(""))

	complete := Drain(w.Run(context.Background(), newGraph, "p.pdf"))

	require.True(t, complete.Success)
	require.Equal(t, 1, complete.EntitiesMerged)
	require.Equal(t, 0, complete.EntitiesCreated)
	require.Empty(t, st.persisted.Entities)
	require.Contains(t, st.persisted.ReferencedEntityIDs, "nerf_existing")
}

func TestRun_MalformedResolutionJSONDefaultsToCreate(t *testing.T) {
	newGraph := common.GraphData{Entities: []common.Entity{{ID: "a", Name: "A", Type: "Method"}}}
	st := &fakeCandidateStore{candidates: map[string][]common.Entity{"a": {{ID: "b", Name: "B", Type: "Method"}}}}
	chat := &fakeChatClient{response: `not json`}
	w := New(st, chat, debugwriter.New(""))

	complete := Drain(w.Run(context.Background(), newGraph, "p.pdf"))

	require.True(t, complete.Success)
	require.Equal(t, 0, complete.EntitiesMerged)
	require.Equal(t, 1, complete.EntitiesCreated)
	require.Len(t, st.persisted.Entities, 1)
}

func TestRun_RetrieveFailurePropagatesAsFailedComplete(t *testing.T) {
	st := &fakeCandidateStore{retrieveErr: errors.New("db down")}
	w := New(st, &fakeChatClient{}, debugwriter.New(""))

	complete := Drain(w.Run(context.Background(), common.GraphData{Entities: []common.Entity{{ID: "a", Name: "A"}}}, "p.pdf"))

	require.False(t, complete.Success)
	require.Contains(t, complete.Error, "db down")
}

func TestRun_PersistFailurePropagatesAsFailedComplete(t *testing.T) {
	st := &fakeCandidateStore{candidates: map[string][]common.Entity{}, persistErr: errors.New("serialization failure")}
	w := New(st, &fakeChatClient{}, debugwriter.New(""))

	complete := Drain(w.Run(context.Background(), common.GraphData{Entities: []common.Entity{{ID: "a", Name: "A"}}}, "p.pdf"))

	require.False(t, complete.Success)
	require.Contains(t, complete.Error, "serialization failure")
}

func TestRewriteGraph_RewritesRelationshipEndpointsThroughMapping(t *testing.T) {
	newGraph := common.GraphData{
		Entities: []common.Entity{
			{ID: "a_new", Name: "A"},
			{ID: "b_new", Name: "B"},
		},
		Relationships: []common.Relationship{
			{SourceID: "a_new", TargetID: "b_new", Type: "uses"},
		},
	}
	decisions := []common.MergeDecision{
		{NewID: "a_new", TargetID: "a_existing", Action: common.MergeActionMerge},
		{NewID: "b_new", TargetID: "b_new", Action: common.MergeActionCreate},
	}

	got := rewriteGraph(newGraph, decisions)

	require.Len(t, got.Entities, 1)
	require.Equal(t, "b_new", got.Entities[0].ID)
	require.Len(t, got.Relationships, 1)
	require.Equal(t, "a_existing", got.Relationships[0].SourceID)
	require.Equal(t, "b_new", got.Relationships[0].TargetID)
	require.Equal(t, []string{"a_existing"}, got.ReferencedEntityIDs)
}
