// Package integrate implements the Retrieve -> Resolve -> Persist workflow
// that merges one EDC fragment into the persistent, cross-document graph:
// vector-similarity candidate retrieval followed by LLM adjudication
// between MERGE and CREATE for each new entity.
package integrate

import (
	"context"
	"encoding/json"
	"sort"

	"golang.org/x/sync/errgroup"

	"paperkg/internal/debugwriter"
	"paperkg/pkg/ai"
	"paperkg/pkg/common"
	"paperkg/pkg/logger"
)

// ResolveLimit bounds the number of concurrent LLM resolution calls a
// single integration run issues.
const ResolveLimit = 10

// CandidateStore is the subset of store.GraphStorage the integration
// workflow depends on.
type CandidateStore interface {
	FetchSimilarEntitiesBatch(ctx context.Context, entities []common.Entity) (map[string][]common.Entity, error)
	UpsertGraph(ctx context.Context, graph common.GraphData) error
}

// Workflow drives one fragment through Retrieve -> Resolve -> Persist,
// emitting one Event per transition on a channel the caller drains until
// IntegrationCompleteEvent.
type Workflow struct {
	Store        CandidateStore
	Client       ai.ChatClient
	Debug        *debugwriter.Writer
	ResolveLimit int
}

// New builds a Workflow backed by st and client, using the default
// resolver concurrency limit.
func New(st CandidateStore, client ai.ChatClient, debug *debugwriter.Writer) *Workflow {
	return &Workflow{Store: st, Client: client, Debug: debug, ResolveLimit: ResolveLimit}
}

// Run starts an integration run over newGraph and returns its event
// stream. The channel is closed after the terminal
// IntegrationCompleteEvent is sent.
func (w *Workflow) Run(ctx context.Context, newGraph common.GraphData, paperPath string) <-chan Event {
	out := make(chan Event, 4)
	go w.drive(ctx, newGraph, paperPath, out)
	return out
}

// Drain runs the workflow to completion and returns its terminal event.
func Drain(events <-chan Event) IntegrationCompleteEvent {
	var last IntegrationCompleteEvent
	for ev := range events {
		if c, ok := ev.(IntegrationCompleteEvent); ok {
			last = c
		}
	}
	return last
}

func (w *Workflow) drive(ctx context.Context, newGraph common.GraphData, paperPath string, out chan<- Event) {
	defer close(out)

	pending := []Event{IntegrateEvent{NewGraph: newGraph, PaperPath: paperPath}}
	for len(pending) > 0 {
		ev := pending[0]
		pending = pending[1:]

		out <- ev
		if _, ok := ev.(IntegrationCompleteEvent); ok {
			return
		}

		if next := w.handle(ctx, ev); next != nil {
			pending = append(pending, next)
		}
	}
}

func (w *Workflow) handle(ctx context.Context, ev Event) Event {
	switch e := ev.(type) {
	case IntegrateEvent:
		return w.handleIntegrate(ctx, e)
	case CandidatesRetrievedEvent:
		return w.handleCandidatesRetrieved(ctx, e)
	case EntitiesResolvedEvent:
		return w.handlePersist(ctx, e)
	case IntegrationErrorEvent:
		return w.handleError(e)
	default:
		return nil
	}
}

func (w *Workflow) handleIntegrate(ctx context.Context, e IntegrateEvent) Event {
	candidates, err := w.Store.FetchSimilarEntitiesBatch(ctx, e.NewGraph.Entities)
	if err != nil {
		return IntegrationErrorEvent{Stage: "retrieve", Err: err, PaperPath: e.PaperPath}
	}
	return CandidatesRetrievedEvent{NewGraph: e.NewGraph, Candidates: candidates, PaperPath: e.PaperPath}
}

func (w *Workflow) handleCandidatesRetrieved(ctx context.Context, e CandidatesRetrievedEvent) Event {
	decisions := w.resolveAll(ctx, e.NewGraph.Entities, e.Candidates)
	resolved := rewriteGraph(e.NewGraph, decisions)
	return EntitiesResolvedEvent{ResolvedGraph: resolved, MergeLog: decisions, PaperPath: e.PaperPath}
}

func (w *Workflow) handlePersist(ctx context.Context, e EntitiesResolvedEvent) Event {
	w.Debug.Write(debugwriter.IntegrationLog, e.MergeLog)

	if err := w.Store.UpsertGraph(ctx, e.ResolvedGraph); err != nil {
		return IntegrationErrorEvent{Stage: "persist", Err: err, PaperPath: e.PaperPath}
	}

	merged, created := 0, 0
	for _, d := range e.MergeLog {
		if d.Action == common.MergeActionMerge {
			merged++
		} else {
			created++
		}
	}
	return IntegrationCompleteEvent{
		Success:           true,
		PaperPath:         e.PaperPath,
		EntitiesProcessed: len(e.MergeLog),
		EntitiesMerged:    merged,
		EntitiesCreated:   created,
	}
}

func (w *Workflow) handleError(e IntegrationErrorEvent) Event {
	logger.Error("integrate: stage failed", "stage", e.Stage, "paperPath", e.PaperPath, "error", e.Err)
	return IntegrationCompleteEvent{Success: false, PaperPath: e.PaperPath, Error: e.Err.Error()}
}

// resolveAll builds one MergeDecision per entity, in entity order,
// resolving entities with candidates concurrently up to w.ResolveLimit.
func (w *Workflow) resolveAll(ctx context.Context, entities []common.Entity, candidates map[string][]common.Entity) []common.MergeDecision {
	decisions := make([]common.MergeDecision, len(entities))

	limit := w.ResolveLimit
	if limit <= 0 {
		limit = ResolveLimit
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)

	for i, entity := range entities {
		i, entity := i, entity
		entityCandidates := candidates[entity.ID]
		if len(entityCandidates) == 0 {
			decisions[i] = common.MergeDecision{
				NewID:      entity.ID,
				TargetID:   entity.ID,
				Action:     common.MergeActionCreate,
				Confidence: 1.0,
				Rationale:  "no similar entities found",
			}
			continue
		}
		eg.Go(func() error {
			decisions[i] = w.resolveOne(egCtx, entity, entityCandidates)
			return nil
		})
	}
	_ = eg.Wait() // resolveOne never returns an error; failures degrade to CREATE.

	return decisions
}

type resolveResponse struct {
	Action     string  `json:"action"`
	TargetID   string  `json:"targetId,omitempty"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// resolveOne adjudicates MERGE vs CREATE for one new entity against its
// retrieved candidates. Any failure — transport error, malformed JSON, or
// a MERGE decision missing its target — defaults to CREATE with
// confidence 0, per the Integration resolver's error policy.
func (w *Workflow) resolveOne(ctx context.Context, entity common.Entity, candidates []common.Entity) common.MergeDecision {
	entityJSON, err := json.Marshal(entity)
	if err != nil {
		return defaultCreate(entity.ID, "failed to marshal entity for resolution")
	}
	candidatesJSON, err := json.Marshal(candidates)
	if err != nil {
		return defaultCreate(entity.ID, "failed to marshal candidates for resolution")
	}

	var resp resolveResponse
	if err := w.Client.GenerateJSON(
		ctx,
		"integration_resolve",
		"MERGE/CREATE adjudication for one candidate entity",
		ai.FormatIntegrationResolvePrompt(string(entityJSON), string(candidatesJSON)),
		&resp,
		ai.WithSystemPrompts("You decide whether two knowledge graph entities refer to the same real-world thing."),
	); err != nil {
		logger.Warn("integrate: resolution failed, defaulting to create", "id", entity.ID, "error", err)
		return defaultCreate(entity.ID, "resolution failed: "+err.Error())
	}

	switch resp.Action {
	case common.MergeActionMerge:
		if resp.TargetID == "" {
			logger.Warn("integrate: merge decision missing targetId, defaulting to create", "id", entity.ID)
			return defaultCreate(entity.ID, "merge decision missing targetId")
		}
		return common.MergeDecision{NewID: entity.ID, TargetID: resp.TargetID, Action: common.MergeActionMerge, Confidence: resp.Confidence, Rationale: resp.Rationale}
	case common.MergeActionCreate:
		return common.MergeDecision{NewID: entity.ID, TargetID: entity.ID, Action: common.MergeActionCreate, Confidence: resp.Confidence, Rationale: resp.Rationale}
	default:
		logger.Warn("integrate: unrecognized resolution action, defaulting to create", "id", entity.ID, "action", resp.Action)
		return defaultCreate(entity.ID, "unrecognized action: "+resp.Action)
	}
}

func defaultCreate(id, rationale string) common.MergeDecision {
	return common.MergeDecision{NewID: id, TargetID: id, Action: common.MergeActionCreate, Confidence: 0, Rationale: rationale}
}

// rewriteGraph builds the resolved fragment: CREATE-outcome entities kept
// as-is, relationships rewritten through the new-id -> resolved-id
// mapping, and referencedEntityIds set to resolved ids that a MERGE
// decision points at but that are absent from the kept entities.
func rewriteGraph(newGraph common.GraphData, decisions []common.MergeDecision) common.GraphData {
	idMapping := make(map[string]string, len(decisions))
	for _, d := range decisions {
		idMapping[d.NewID] = d.TargetID
	}

	entities := make([]common.Entity, 0, len(newGraph.Entities))
	created := make(map[string]bool, len(newGraph.Entities))
	for _, e := range newGraph.Entities {
		if idMapping[e.ID] == e.ID {
			entities = append(entities, e)
			created[e.ID] = true
		}
	}

	relationships := make([]common.Relationship, 0, len(newGraph.Relationships))
	for _, r := range newGraph.Relationships {
		rewritten := r
		if target, ok := idMapping[rewritten.SourceID]; ok {
			rewritten.SourceID = target
		}
		if target, ok := idMapping[rewritten.TargetID]; ok {
			rewritten.TargetID = target
		}
		relationships = append(relationships, rewritten)
	}

	referencedSet := make(map[string]bool)
	for _, d := range decisions {
		if d.Action == common.MergeActionMerge && !created[d.TargetID] {
			referencedSet[d.TargetID] = true
		}
	}
	referenced := make([]string, 0, len(referencedSet))
	for id := range referencedSet {
		referenced = append(referenced, id)
	}
	sort.Strings(referenced)

	return common.GraphData{
		Entities:            entities,
		Relationships:       relationships,
		ReferencedEntityIDs: referenced,
	}
}
