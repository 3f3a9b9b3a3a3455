package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"gocombat/app"
	"gocombat/domain/combat"
	"gocombat/domain/core"
	"gocombat/internal"
	"gocombat/ports"
)

// Server exposes harmonization over HTTP
type Server struct {
	service *app.HarmonizationService
	logger  *internal.Logger
	engine  *gin.Engine
	http    *http.Server
}

// NewServer wires the REST routes onto a gin engine
func NewServer(service *app.HarmonizationService, port string, ginMode string, logger *internal.Logger) *Server {
	if ginMode != "" {
		gin.SetMode(ginMode)
	}

	s := &Server{
		service: service,
		logger:  logger.WithComponent("api"),
		engine:  gin.Default(),
	}
	s.setupRoutes()

	s.http = &http.Server{
		Addr:              ":" + port,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Engine exposes the router for tests
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start blocks serving HTTP until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	api := s.engine.Group("/api")

	api.GET("/healthz", s.handleHealthz)

	api.POST("/fit", s.handleFit)
	api.POST("/transform", s.handleTransform)
	api.POST("/fit-transform", s.handleFitTransform)

	api.GET("/models", s.handleListModels)
	api.GET("/models/:id", s.handleGetModel)
	api.DELETE("/models/:id", s.handleDeleteModel)
	api.GET("/models/:id/runs", s.handleListRuns)
	api.GET("/models/:id/diagnostics", s.handleModelDiagnostics)
	api.GET("/models/:id/report", s.handleModelReport)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleFit estimates batch parameters from the posted matrix and stores
// the resulting model
func (s *Server) handleFit(c *gin.Context) {
	var body FitRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	matrix, batches, covs, err := body.Data.toDomain()
	if err != nil {
		s.respondError(c, err)
		return
	}

	result, err := s.service.Fit(c.Request.Context(), app.FitRequest{
		Data:       matrix,
		Batches:    batches,
		Covariates: covs,
		Options:    body.Options,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, fitResponseFrom(result.Model, result.RunID, result.Warnings, result.RuntimeMs))
}

// handleTransform adjusts the posted matrix with a stored model
func (s *Server) handleTransform(c *gin.Context) {
	var body TransformRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	modelID, err := core.ParseModelID(body.ModelID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	matrix, batches, covs, err := body.Data.toDomain()
	if err != nil {
		s.respondError(c, err)
		return
	}

	result, err := s.service.Transform(c.Request.Context(), app.TransformRequest{
		ModelID:    modelID,
		Data:       matrix,
		Batches:    batches,
		Covariates: covs,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, TransformResponse{
		ModelID:   result.ModelID,
		RunID:     result.RunID,
		Adjusted:  documentFrom(result.Adjusted, batches),
		RuntimeMs: result.RuntimeMs,
	})
}

// handleFitTransform fits on the posted matrix and returns it adjusted
func (s *Server) handleFitTransform(c *gin.Context) {
	var body FitRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	matrix, batches, covs, err := body.Data.toDomain()
	if err != nil {
		s.respondError(c, err)
		return
	}

	result, err := s.service.FitTransform(c.Request.Context(), app.FitRequest{
		Data:       matrix,
		Batches:    batches,
		Covariates: covs,
		Options:    body.Options,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, FitTransformResponse{
		FitResponse: fitResponseFrom(result.Model, result.RunID, result.Warnings, result.RuntimeMs),
		Adjusted:    documentFrom(result.Adjusted, batches),
	})
}

// handleListModels returns stored model summaries, newest first
func (s *Server) handleListModels(c *gin.Context) {
	filters := ports.ModelFilters{
		Limit:  intQuery(c, "limit", 50),
		Offset: intQuery(c, "offset", 0),
	}
	if batch := c.Query("batch"); batch != "" {
		key := core.BatchKey(batch)
		filters.Batch = &key
	}

	models, err := s.service.ListModels(c.Request.Context(), filters)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"models": models,
		"count":  len(models),
	})
}

func (s *Server) handleGetModel(c *gin.Context) {
	model, ok := s.loadModel(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, model)
}

func (s *Server) handleDeleteModel(c *gin.Context) {
	modelID, err := core.ParseModelID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.service.DeleteModel(c.Request.Context(), modelID); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": modelID})
}

// handleListRuns returns the run audit entries of a model
func (s *Server) handleListRuns(c *gin.Context) {
	model, ok := s.loadModel(c)
	if !ok {
		return
	}

	runs, err := s.service.ListRuns(c.Request.Context(), model.ID, intQuery(c, "limit", 0))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"model_id": model.ID,
		"runs":     runs,
		"count":    len(runs),
	})
}

// handleModelDiagnostics reports per-batch prior fit statistics
func (s *Server) handleModelDiagnostics(c *gin.Context) {
	model, ok := s.loadModel(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"model_id":  model.ID,
		"converged": model.AllConverged(),
		"priors":    combat.PriorFitDiagnostics(model),
	})
}

// handleModelReport renders a human-readable model report. The default
// is HTML; format=md returns the underlying markdown.
func (s *Server) handleModelReport(c *gin.Context) {
	model, ok := s.loadModel(c)
	if !ok {
		return
	}

	runs, err := s.service.ListRuns(c.Request.Context(), model.ID, reportRunLimit)
	if err != nil {
		s.respondError(c, err)
		return
	}

	md := buildModelReport(model, runs)
	if c.Query("format") == "md" {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", md)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", renderHTML(md))
}

// loadModel resolves the :id path parameter; on failure it has already
// written the error response.
func (s *Server) loadModel(c *gin.Context) (*combat.Model, bool) {
	modelID, err := core.ParseModelID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}

	model, err := s.service.GetModel(c.Request.Context(), modelID)
	if err != nil {
		s.respondError(c, err)
		return nil, false
	}
	return model, true
}

// respondError maps domain errors onto HTTP statuses. Validation and
// shape problems are the caller's fault; anything unrecognized is ours.
func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case core.IsNotFoundError(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case core.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case core.IsConfigError(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusRequestTimeout, gin.H{"error": err.Error()})
	default:
		s.logger.Error("request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
