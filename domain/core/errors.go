package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound      = errors.New("resource not found")
	ErrModelNotFound = fmt.Errorf("%w: model", ErrNotFound)
	ErrRunNotFound   = fmt.Errorf("%w: run", ErrNotFound)

	// Validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrShapeMismatch   = errors.New("row count mismatch between matrix and labels")
	ErrEmptyMatrix     = errors.New("response matrix is empty")
	ErrNonFinite       = errors.New("non-finite value in response matrix")
	ErrRaggedMatrix    = errors.New("response matrix rows have unequal length")
	ErrDegenerateBatch = errors.New("batch has fewer than two observations")
	ErrUnknownBatch    = errors.New("batch label not seen at fit time")
	ErrFeatureMismatch = errors.New("feature set does not match fitted model")
	ErrRankDeficient   = errors.New("combined design matrix is rank deficient")
	ErrZeroVariance    = errors.New("feature has zero pooled variance")
	ErrDuplicateColumn = errors.New("duplicate covariate column name")

	// Configuration errors
	ErrUnsupportedMethod = errors.New("unsupported harmonization method")
	ErrInvalidConfig     = errors.New("invalid harmonization configuration")

	// Determinism errors
	ErrHashMismatch = errors.New("fingerprint mismatch between runs")
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidInput, field, reason)
}

func NewShapeError(what string, got, want int) error {
	return fmt.Errorf("%w: %s has %d rows, expected %d", ErrShapeMismatch, what, got, want)
}

func NewDegenerateBatchError(batch string, size int) error {
	return fmt.Errorf("%w: batch %q has %d observation(s)", ErrDegenerateBatch, batch, size)
}

func NewUnknownBatchError(batch string) error {
	return fmt.Errorf("%w: %q", ErrUnknownBatch, batch)
}

func NewRankError(cause error) error {
	return fmt.Errorf("%w: %v", ErrRankDeficient, cause)
}

func NewUnsupportedMethodError(method string) error {
	return fmt.Errorf("%w: %q (only \"parametric\" is implemented)", ErrUnsupportedMethod, method)
}

func NewConfigError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, field, reason)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrShapeMismatch) ||
		errors.Is(err, ErrEmptyMatrix) ||
		errors.Is(err, ErrNonFinite) ||
		errors.Is(err, ErrRaggedMatrix) ||
		errors.Is(err, ErrDegenerateBatch) ||
		errors.Is(err, ErrUnknownBatch) ||
		errors.Is(err, ErrFeatureMismatch) ||
		errors.Is(err, ErrRankDeficient) ||
		errors.Is(err, ErrZeroVariance) ||
		errors.Is(err, ErrDuplicateColumn)
}

func IsConfigError(err error) bool {
	return errors.Is(err, ErrUnsupportedMethod) ||
		errors.Is(err, ErrInvalidConfig)
}
