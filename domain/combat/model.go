package combat

import (
	"fmt"

	"gocombat/domain/core"
	"gocombat/domain/dataset"
)

// BatchInfo records one batch the model saw at fit time
type BatchInfo struct {
	Key  core.BatchKey `json:"key"`
	Size int           `json:"size"`
}

// Model is the immutable output of one fit: standardization constants,
// coefficient blocks, raw and posterior batch parameters, and the prior
// hyperparameters, all laid out per batch in fit order. A later fit
// builds a fresh Model; nothing here mutates after construction.
type Model struct {
	ID        core.ModelID   `json:"id"`
	CreatedAt core.Timestamp `json:"created_at"`
	Config    Config         `json:"config"`

	Features []core.FeatureKey `json:"features"`
	Batches  []BatchInfo       `json:"batches"`

	// Covariate column names fixed at fit time; transform inputs must
	// present the same columns in the same order.
	InterestNames []string `json:"interest_names,omitempty"`
	NuisanceNames []string `json:"nuisance_names,omitempty"`

	GrandMean    []float64   `json:"grand_mean"`
	PooledVar    []float64   `json:"pooled_var"`
	BetaInterest [][]float64 `json:"beta_interest,omitempty"`
	BetaNuisance [][]float64 `json:"beta_nuisance,omitempty"`

	// Raw estimates kept alongside the posteriors for diagnostics and
	// shrinkage audits.
	GammaHat  [][]float64 `json:"gamma_hat"`
	Delta2Hat [][]float64 `json:"delta2_hat"`
	Gamma     [][]float64 `json:"gamma"`
	Delta2    [][]float64 `json:"delta2"`

	GammaBar []float64 `json:"gamma_bar"`
	Tau2     []float64 `json:"tau2"`
	Lambda   []float64 `json:"lambda"`
	Theta    []float64 `json:"theta"`

	Convergence []BatchConvergence `json:"convergence"`

	Fingerprint      core.ModelFingerprint  `json:"fingerprint"`
	InputFingerprint core.MatrixFingerprint `json:"input_fingerprint"`
}

// K returns the number of batches
func (m *Model) K() int {
	return len(m.Batches)
}

// FeatureCount returns the number of features
func (m *Model) FeatureCount() int {
	return len(m.Features)
}

// BatchIndex finds the fit-order index for a batch key
func (m *Model) BatchIndex(key core.BatchKey) (int, bool) {
	for k, b := range m.Batches {
		if b.Key == key {
			return k, true
		}
	}
	return -1, false
}

// BatchKeys returns the fitted batch universe in fit order
func (m *Model) BatchKeys() []core.BatchKey {
	keys := make([]core.BatchKey, len(m.Batches))
	for k, b := range m.Batches {
		keys[k] = b.Key
	}
	return keys
}

// AllConverged reports whether every batch reached tolerance
func (m *Model) AllConverged() bool {
	for _, c := range m.Convergence {
		if !c.Converged() {
			return false
		}
	}
	return true
}

// NonConverged lists the batches that hit the iteration cap
func (m *Model) NonConverged() []BatchConvergence {
	var out []BatchConvergence
	for _, c := range m.Convergence {
		if !c.Converged() {
			out = append(out, c)
		}
	}
	return out
}

// standardizationView rebuilds the standardizer from stored parameters
// so transform reproduces the fit-time residual computation exactly.
func (m *Model) standardizationView() *standardization {
	return &standardization{
		grandMean:    m.GrandMean,
		pooledVar:    m.PooledVar,
		betaInterest: m.BetaInterest,
		betaNuisance: m.BetaNuisance,
	}
}

// computeFingerprint hashes the fitted parameter vectors
func (m *Model) computeFingerprint() core.ModelFingerprint {
	gamma := make(map[core.BatchKey][]float64, len(m.Batches))
	delta2 := make(map[core.BatchKey][]float64, len(m.Batches))
	for k, b := range m.Batches {
		gamma[b.Key] = m.Gamma[k]
		delta2[b.Key] = m.Delta2[k]
	}
	return core.ComputeModelFingerprint(gamma, delta2, m.GrandMean, m.PooledVar)
}

// validateTransformInputs checks a matrix, batch assignment, and
// covariates against what the model saw at fit time.
func (m *Model) validateTransformInputs(y *dataset.Matrix, batches *dataset.BatchAssignment, covs *dataset.CovariateSet) error {
	if err := y.Validate(); err != nil {
		return err
	}
	if err := batches.Validate(y.Rows()); err != nil {
		return err
	}
	if err := covs.Validate(y.Rows()); err != nil {
		return err
	}

	if len(y.Features) != len(m.Features) {
		return fmt.Errorf("%w: got %d features, model has %d", core.ErrFeatureMismatch, len(y.Features), len(m.Features))
	}
	for j, key := range m.Features {
		if y.Features[j] != key {
			return fmt.Errorf("%w: feature %d is %q, model has %q", core.ErrFeatureMismatch, j, y.Features[j], key)
		}
	}

	if offender, ok := batches.SubsetOf(m.BatchKeys()); !ok {
		return core.NewUnknownBatchError(offender.String())
	}

	if err := matchNames("interest", m.InterestNames, interestNames(covs)); err != nil {
		return err
	}
	return matchNames("nuisance", m.NuisanceNames, nuisanceNames(covs))
}

func interestNames(covs *dataset.CovariateSet) []string {
	if covs == nil {
		return nil
	}
	names := make([]string, len(covs.Interest))
	for i, c := range covs.Interest {
		names[i] = c.Name
	}
	return names
}

func nuisanceNames(covs *dataset.CovariateSet) []string {
	if covs == nil {
		return nil
	}
	names := make([]string, len(covs.Nuisance))
	for i, c := range covs.Nuisance {
		names[i] = c.Name
	}
	return names
}

func matchNames(role string, want, got []string) error {
	if len(want) != len(got) {
		return core.NewValidationError(role+"_covariates",
			fmt.Sprintf("got %d columns, model was fitted with %d", len(got), len(want)))
	}
	for i := range want {
		if want[i] != got[i] {
			return core.NewValidationError(role+"_covariates",
				fmt.Sprintf("column %d is %q, model was fitted with %q", i, got[i], want[i]))
		}
	}
	return nil
}
