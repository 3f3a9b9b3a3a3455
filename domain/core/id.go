package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	// Use UUID v7 for time-ordered, sortable IDs
	// Falls back to v4 if v7 is not available (for compatibility)
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	// ModelID identifies a fitted harmonization model.
	ModelID ID
	// RunID identifies one fit or transform invocation.
	RunID ID
	// BatchKey is a categorical batch label (site, scanner, processing run).
	BatchKey string
	// FeatureKey names a measured variable (gene, imaging feature, column).
	FeatureKey string
	// SampleKey names an observation (row).
	SampleKey string
)

// String conversions for domain IDs
func (id ModelID) String() string   { return ID(id).String() }
func (id RunID) String() string     { return ID(id).String() }
func (k BatchKey) String() string   { return string(k) }
func (k FeatureKey) String() string { return string(k) }
func (k SampleKey) String() string  { return string(k) }

// ParseModelID parses a string into ModelID
func ParseModelID(s string) (ModelID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("model ID cannot be empty")
	}
	return ModelID(s), nil
}

// ParseRunID parses a string into RunID
func ParseRunID(s string) (RunID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("run ID cannot be empty")
	}
	return RunID(s), nil
}

// ParseBatchKey parses a string into BatchKey. Batch labels may be numeric
// or string valued; they are carried verbatim but never blank.
func ParseBatchKey(s string) (BatchKey, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("batch label cannot be empty")
	}
	return BatchKey(s), nil
}
