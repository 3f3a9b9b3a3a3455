package testkit

import (
	"context"
	"sort"
	"sync"

	"gocombat/domain/combat"
	"gocombat/domain/core"
	"gocombat/internal"
	"gocombat/ports"
)

// Kit bundles in-memory fakes for service and adapter tests
type Kit struct {
	Models *InMemoryModelRepository
	Runs   *InMemoryRunRepository
	Logger *internal.Logger
}

// NewKit creates a kit with a quiet logger and empty storage
func NewKit() *Kit {
	return &Kit{
		Models: NewInMemoryModelRepository(),
		Runs:   NewInMemoryRunRepository(),
		Logger: internal.NewLogger(internal.LogLevelError),
	}
}

// InMemoryModelRepository is a ModelRepository backed by a map. It is
// safe for concurrent use and also serves as the storage fallback when
// no database is configured.
type InMemoryModelRepository struct {
	mu     sync.RWMutex
	models map[core.ModelID]*combat.Model
}

// NewInMemoryModelRepository creates empty in-memory storage
func NewInMemoryModelRepository() *InMemoryModelRepository {
	return &InMemoryModelRepository{models: make(map[core.ModelID]*combat.Model)}
}

// SaveModel stores the model, replacing any previous version
func (r *InMemoryModelRepository) SaveModel(_ context.Context, m *combat.Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[m.ID] = m
	return nil
}

// GetModel retrieves a model by ID
func (r *InMemoryModelRepository) GetModel(_ context.Context, id core.ModelID) (*combat.Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[id]
	if !ok {
		return nil, core.NewNotFoundError("model", id.String())
	}
	return m, nil
}

// ListModels returns summaries newest first
func (r *InMemoryModelRepository) ListModels(_ context.Context, filters ports.ModelFilters) ([]ports.ModelSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var summaries []ports.ModelSummary
	for _, m := range r.models {
		if filters.Batch != nil {
			if _, ok := m.BatchIndex(*filters.Batch); !ok {
				continue
			}
		}
		samples := 0
		for _, b := range m.Batches {
			samples += b.Size
		}
		summaries = append(summaries, ports.ModelSummary{
			ID:          m.ID,
			CreatedAt:   m.CreatedAt,
			Features:    m.FeatureCount(),
			Batches:     m.K(),
			Samples:     samples,
			Converged:   m.AllConverged(),
			Fingerprint: m.Fingerprint,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[j].CreatedAt.Before(summaries[i].CreatedAt)
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(summaries) {
			return nil, nil
		}
		summaries = summaries[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(summaries) {
		summaries = summaries[:filters.Limit]
	}
	return summaries, nil
}

// DeleteModel removes a model by ID
func (r *InMemoryModelRepository) DeleteModel(_ context.Context, id core.ModelID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[id]; !ok {
		return core.NewNotFoundError("model", id.String())
	}
	delete(r.models, id)
	return nil
}

// Len reports the number of stored models
func (r *InMemoryModelRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// InMemoryRunRepository is a RunRepository backed by per-model slices
type InMemoryRunRepository struct {
	mu   sync.RWMutex
	runs map[core.ModelID][]ports.RunRecord
}

// NewInMemoryRunRepository creates empty in-memory run storage
func NewInMemoryRunRepository() *InMemoryRunRepository {
	return &InMemoryRunRepository{runs: make(map[core.ModelID][]ports.RunRecord)}
}

// SaveRun appends one run record
func (r *InMemoryRunRepository) SaveRun(_ context.Context, run *ports.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ModelID] = append(r.runs[run.ModelID], *run)
	return nil
}

// ListRuns returns the runs of a model, newest first
func (r *InMemoryRunRepository) ListRuns(_ context.Context, modelID core.ModelID, limit int) ([]ports.RunRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.runs[modelID]
	out := make([]ports.RunRecord, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, stored[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
