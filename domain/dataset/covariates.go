package dataset

import (
	"fmt"
	"math"
	"sort"

	"gocombat/domain/core"
)

// Column is one named covariate regressor
type Column struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// CovariateSet separates regressors by role: interest covariates are
// preserved through adjustment, nuisance covariates are removed for good.
type CovariateSet struct {
	Interest []Column `json:"interest,omitempty"`
	Nuisance []Column `json:"nuisance,omitempty"`
}

// NewCovariateSet returns an empty set; nil is also a valid "no covariates" value
func NewCovariateSet() *CovariateSet {
	return &CovariateSet{}
}

// AddInterest appends a numeric interest covariate
func (s *CovariateSet) AddInterest(name string, values []float64) {
	s.Interest = append(s.Interest, Column{Name: name, Values: values})
}

// AddNuisance appends a numeric nuisance covariate
func (s *CovariateSet) AddNuisance(name string, values []float64) {
	s.Nuisance = append(s.Nuisance, Column{Name: name, Values: values})
}

// AddInterestCategorical dummy-encodes labels and appends the indicator columns
func (s *CovariateSet) AddInterestCategorical(name string, labels []string) error {
	cols, err := EncodeCategorical(name, labels)
	if err != nil {
		return err
	}
	s.Interest = append(s.Interest, cols...)
	return nil
}

// AddNuisanceCategorical dummy-encodes labels and appends the indicator columns
func (s *CovariateSet) AddNuisanceCategorical(name string, labels []string) error {
	cols, err := EncodeCategorical(name, labels)
	if err != nil {
		return err
	}
	s.Nuisance = append(s.Nuisance, cols...)
	return nil
}

// EncodeCategorical one-hot encodes a categorical covariate with the
// reference level dropped, so the encoded block stays full rank alongside
// the intercept-carrying batch indicators. Levels sort lexically and the
// first becomes the reference. A single-level column encodes to nothing.
func EncodeCategorical(name string, labels []string) ([]Column, error) {
	if len(labels) == 0 {
		return nil, core.NewValidationError(name, "categorical covariate has no values")
	}

	levelSet := make(map[string]bool)
	for i, l := range labels {
		if l == "" {
			return nil, core.NewValidationError(name, fmt.Sprintf("empty level at row %d", i))
		}
		levelSet[l] = true
	}

	levels := make([]string, 0, len(levelSet))
	for l := range levelSet {
		levels = append(levels, l)
	}
	sort.Strings(levels)

	// levels[0] is the reference; one indicator per remaining level
	cols := make([]Column, 0, len(levels)-1)
	for _, level := range levels[1:] {
		values := make([]float64, len(labels))
		for i, l := range labels {
			if l == level {
				values[i] = 1
			}
		}
		cols = append(cols, Column{Name: fmt.Sprintf("%s=%s", name, level), Values: values})
	}
	return cols, nil
}

// InterestCount returns the number of interest regressor columns
func (s *CovariateSet) InterestCount() int {
	if s == nil {
		return 0
	}
	return len(s.Interest)
}

// NuisanceCount returns the number of nuisance regressor columns
func (s *CovariateSet) NuisanceCount() int {
	if s == nil {
		return 0
	}
	return len(s.Nuisance)
}

// ColumnNames returns interest then nuisance names, design order
func (s *CovariateSet) ColumnNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Interest)+len(s.Nuisance))
	for _, c := range s.Interest {
		names = append(names, c.Name)
	}
	for _, c := range s.Nuisance {
		names = append(names, c.Name)
	}
	return names
}

// Validate checks column lengths against the sample count, rejects
// non-finite values and duplicate names across both roles.
func (s *CovariateSet) Validate(rows int) error {
	if s == nil {
		return nil
	}
	seen := make(map[string]bool)
	check := func(role string, cols []Column) error {
		for _, c := range cols {
			if seen[c.Name] {
				return fmt.Errorf("%w: %q", core.ErrDuplicateColumn, c.Name)
			}
			seen[c.Name] = true
			if len(c.Values) != rows {
				return core.NewShapeError(fmt.Sprintf("%s covariate %q", role, c.Name), len(c.Values), rows)
			}
			for i, v := range c.Values {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return fmt.Errorf("%w: covariate %q row %d", core.ErrNonFinite, c.Name, i)
				}
			}
		}
		return nil
	}
	if err := check("interest", s.Interest); err != nil {
		return err
	}
	return check("nuisance", s.Nuisance)
}
