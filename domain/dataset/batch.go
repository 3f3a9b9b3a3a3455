package dataset

import (
	"gocombat/domain/core"
)

// BatchAssignment maps each sample row to its batch label
type BatchAssignment struct {
	Labels []core.BatchKey
}

// BatchGroup is one batch with the row indices that belong to it, in input order
type BatchGroup struct {
	Key  core.BatchKey
	Rows []int
}

// NewBatchAssignment builds an assignment from raw string labels
func NewBatchAssignment(labels []string) (*BatchAssignment, error) {
	keys := make([]core.BatchKey, len(labels))
	for i, raw := range labels {
		key, err := core.ParseBatchKey(raw)
		if err != nil {
			return nil, core.NewValidationError("batch_labels", err.Error())
		}
		keys[i] = key
	}
	return &BatchAssignment{Labels: keys}, nil
}

// Validate checks the assignment lines up with a matrix row count. Batch
// size rules are separate: fitting needs ValidateMinSizes too, transform
// accepts any composition drawn from the fitted universe.
func (a *BatchAssignment) Validate(rows int) error {
	if len(a.Labels) != rows {
		return core.NewShapeError("batch_labels", len(a.Labels), rows)
	}
	for _, key := range a.Labels {
		if key == "" {
			return core.NewValidationError("batch_labels", "empty batch label")
		}
	}
	return nil
}

// ValidateMinSizes rejects batches too small for within-batch variance
// (fewer than two observations)
func (a *BatchAssignment) ValidateMinSizes() error {
	for _, g := range a.Groups() {
		if len(g.Rows) < 2 {
			return core.NewDegenerateBatchError(g.Key.String(), len(g.Rows))
		}
	}
	return nil
}

// Groups partitions row indices by batch, ordered by first appearance.
// The ordering is deterministic for a given input, which keeps fitted
// parameter layout reproducible run to run.
func (a *BatchAssignment) Groups() []BatchGroup {
	index := make(map[core.BatchKey]int)
	groups := make([]BatchGroup, 0)
	for i, key := range a.Labels {
		gi, ok := index[key]
		if !ok {
			gi = len(groups)
			index[key] = gi
			groups = append(groups, BatchGroup{Key: key})
		}
		groups[gi].Rows = append(groups[gi].Rows, i)
	}
	return groups
}

// Batches returns the distinct batch keys in first-appearance order
func (a *BatchAssignment) Batches() []core.BatchKey {
	groups := a.Groups()
	keys := make([]core.BatchKey, len(groups))
	for i, g := range groups {
		keys[i] = g.Key
	}
	return keys
}

// Counts returns observations per batch keyed by batch label
func (a *BatchAssignment) Counts() map[core.BatchKey]int {
	counts := make(map[core.BatchKey]int)
	for _, key := range a.Labels {
		counts[key]++
	}
	return counts
}

// SubsetOf reports whether every label in a appears in universe. Transform
// accepts only batches the model saw at fit time; the first offender is
// returned for the error message.
func (a *BatchAssignment) SubsetOf(universe []core.BatchKey) (core.BatchKey, bool) {
	known := make(map[core.BatchKey]bool, len(universe))
	for _, key := range universe {
		known[key] = true
	}
	for _, key := range a.Labels {
		if !known[key] {
			return key, false
		}
	}
	return "", true
}
