package app

import (
	"context"
	"testing"

	"gocombat/domain/combat"
	"gocombat/domain/core"
	"gocombat/internal"
	"gocombat/internal/testkit"
	"gocombat/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// Mock implementations for testing
type MockModelRepository struct {
	mock.Mock
	saved []*combat.Model
}

func (m *MockModelRepository) SaveModel(ctx context.Context, model *combat.Model) error {
	args := m.Called(ctx, model)
	m.saved = append(m.saved, model)
	return args.Error(0)
}

func (m *MockModelRepository) GetModel(ctx context.Context, id core.ModelID) (*combat.Model, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*combat.Model), args.Error(1)
}

func (m *MockModelRepository) ListModels(ctx context.Context, filters ports.ModelFilters) ([]ports.ModelSummary, error) {
	args := m.Called(ctx, filters)
	return args.Get(0).([]ports.ModelSummary), args.Error(1)
}

func (m *MockModelRepository) DeleteModel(ctx context.Context, id core.ModelID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockRunRepository struct {
	mock.Mock
	records []ports.RunRecord
}

func (m *MockRunRepository) SaveRun(ctx context.Context, run *ports.RunRecord) error {
	args := m.Called(ctx, run)
	m.records = append(m.records, *run)
	return args.Error(0)
}

func (m *MockRunRepository) ListRuns(ctx context.Context, modelID core.ModelID, limit int) ([]ports.RunRecord, error) {
	args := m.Called(ctx, modelID, limit)
	return m.records, args.Error(1)
}

func quietLogger() *internal.Logger {
	return internal.NewLogger(internal.LogLevelError)
}

func generateFixture(t *testing.T) *FitRequest {
	t.Helper()
	gen := testkit.NewExpressionGenerator(testkit.DefaultExpressionConfig())
	matrix, batches, covs, err := gen.Generate()
	if err != nil {
		t.Fatalf("generate fixture: %v", err)
	}
	return &FitRequest{Data: matrix, Batches: batches, Covariates: covs}
}

func TestHarmonizationService_FitStoresModelAndRun(t *testing.T) {
	mockModels := &MockModelRepository{}
	mockRuns := &MockRunRepository{}

	mockModels.On("SaveModel", mock.Anything, mock.AnythingOfType("*combat.Model")).Return(nil)
	mockRuns.On("SaveRun", mock.Anything, mock.AnythingOfType("*ports.RunRecord")).Return(nil)

	svc := NewHarmonizationService(combat.DefaultConfig(), mockModels, mockRuns, quietLogger())
	req := generateFixture(t)

	result, err := svc.Fit(context.Background(), *req)

	assert.NoError(t, err)
	assert.NotNil(t, result)
	assert.False(t, result.Model.ID.String() == "", "fitted model should carry an ID")
	assert.Empty(t, result.Warnings, "default settings should converge on generated data")

	assert.Len(t, mockModels.saved, 1, "Should have stored the model")
	assert.Len(t, mockRuns.records, 1, "Should have recorded the run")

	record := mockRuns.records[0]
	assert.Equal(t, ports.RunFit, record.Kind)
	assert.Equal(t, result.Model.ID, record.ModelID)
	assert.Equal(t, result.RunID, record.ID)
	assert.Equal(t, req.Data.Rows(), record.Rows)
	assert.Equal(t, result.Model.InputFingerprint, record.InputFingerprint)
	assert.Empty(t, record.OutputFingerprint, "fit alone produces no adjusted matrix")
}

func TestHarmonizationService_OptionsOverrideDefaults(t *testing.T) {
	mockModels := &MockModelRepository{}
	mockRuns := &MockRunRepository{}

	mockModels.On("SaveModel", mock.Anything, mock.Anything).Return(nil)
	mockRuns.On("SaveRun", mock.Anything, mock.Anything).Return(nil)

	svc := NewHarmonizationService(combat.DefaultConfig(), mockModels, mockRuns, quietLogger())
	req := generateFixture(t)
	req.Options = Options{Mode: string(combat.ModeStripAll), Tolerance: 1e-6}

	result, err := svc.Fit(context.Background(), *req)

	assert.NoError(t, err)
	assert.Equal(t, combat.ModeStripAll, result.Model.Config.Mode)
	assert.Equal(t, 1e-6, result.Model.Config.ConvergenceTolerance)
}

func TestHarmonizationService_FitReportsConvergenceWarnings(t *testing.T) {
	mockModels := &MockModelRepository{}
	mockRuns := &MockRunRepository{}

	mockModels.On("SaveModel", mock.Anything, mock.Anything).Return(nil)
	mockRuns.On("SaveRun", mock.Anything, mock.Anything).Return(nil)

	svc := NewHarmonizationService(combat.DefaultConfig(), mockModels, mockRuns, quietLogger())
	req := generateFixture(t)
	req.Options = Options{Tolerance: 1e-12, MaxIterations: 1}

	result, err := svc.Fit(context.Background(), *req)

	assert.NoError(t, err, "hitting the iteration cap is a warning, not an error")
	assert.False(t, result.Model.AllConverged())
	assert.Greater(t, len(result.Warnings), 0, "Should surface non-convergence warnings")
	assert.Equal(t, result.Warnings, mockRuns.records[0].Warnings, "run record should carry the same warnings")
}

func TestHarmonizationService_TransformUsesStoredModel(t *testing.T) {
	req := generateFixture(t)

	h, err := combat.New(combat.DefaultConfig())
	assert.NoError(t, err)
	model, err := h.Fit(context.Background(), req.Data, req.Batches, req.Covariates)
	assert.NoError(t, err)

	mockModels := &MockModelRepository{}
	mockRuns := &MockRunRepository{}
	mockModels.On("GetModel", mock.Anything, model.ID).Return(model, nil)
	mockRuns.On("SaveRun", mock.Anything, mock.Anything).Return(nil)

	svc := NewHarmonizationService(combat.DefaultConfig(), mockModels, mockRuns, quietLogger())

	result, err := svc.Transform(context.Background(), TransformRequest{
		ModelID:    model.ID,
		Data:       req.Data,
		Batches:    req.Batches,
		Covariates: req.Covariates,
	})

	assert.NoError(t, err)
	assert.NotNil(t, result.Adjusted)
	assert.Equal(t, req.Data.Rows(), result.Adjusted.Rows())
	assert.Equal(t, model.ID, result.ModelID)

	record := mockRuns.records[0]
	assert.Equal(t, ports.RunTransform, record.Kind)
	assert.Equal(t, result.Adjusted.Fingerprint(), record.OutputFingerprint)
}

func TestHarmonizationService_TransformUnknownModel(t *testing.T) {
	mockModels := &MockModelRepository{}
	mockRuns := &MockRunRepository{}

	missing := core.ModelID(core.NewID())
	mockModels.On("GetModel", mock.Anything, missing).Return(nil, core.NewNotFoundError("model", missing.String()))

	svc := NewHarmonizationService(combat.DefaultConfig(), mockModels, mockRuns, quietLogger())
	req := generateFixture(t)

	_, err := svc.Transform(context.Background(), TransformRequest{
		ModelID:    missing,
		Data:       req.Data,
		Batches:    req.Batches,
		Covariates: req.Covariates,
	})

	assert.Error(t, err)
	assert.True(t, core.IsNotFoundError(err), "not-found should survive wrapping")
}

func TestHarmonizationService_RunWriteFailureDoesNotFailFit(t *testing.T) {
	mockModels := &MockModelRepository{}
	mockRuns := &MockRunRepository{}

	mockModels.On("SaveModel", mock.Anything, mock.Anything).Return(nil)
	mockRuns.On("SaveRun", mock.Anything, mock.Anything).Return(assert.AnError)

	svc := NewHarmonizationService(combat.DefaultConfig(), mockModels, mockRuns, quietLogger())
	req := generateFixture(t)

	result, err := svc.Fit(context.Background(), *req)

	assert.NoError(t, err, "a failed audit write should not fail the fit")
	assert.NotNil(t, result)
	assert.Len(t, mockModels.saved, 1)
}

func TestHarmonizationService_FitTransformSharesOneModel(t *testing.T) {
	mockModels := &MockModelRepository{}
	mockRuns := &MockRunRepository{}

	mockModels.On("SaveModel", mock.Anything, mock.Anything).Return(nil)
	mockRuns.On("SaveRun", mock.Anything, mock.Anything).Return(nil)

	svc := NewHarmonizationService(combat.DefaultConfig(), mockModels, mockRuns, quietLogger())
	req := generateFixture(t)

	result, err := svc.FitTransform(context.Background(), *req)

	assert.NoError(t, err)
	assert.NotNil(t, result.Model)
	assert.NotNil(t, result.Adjusted)
	assert.Len(t, mockModels.saved, 1)

	record := mockRuns.records[0]
	assert.Equal(t, ports.RunFitTransform, record.Kind)
	assert.Equal(t, result.Model.InputFingerprint, record.InputFingerprint)
	assert.Equal(t, result.Adjusted.Fingerprint(), record.OutputFingerprint)
}
