package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/helixforge/helixforge/internal/application/campaign"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/errors"
	"github.com/helixforge/helixforge/pkg/types/design"
)

// RunHandler serves the run lifecycle and inspection endpoints.
type RunHandler struct {
	service campaign.Service
	logger  logging.Logger
}

// NewRunHandler constructs a RunHandler.
func NewRunHandler(service campaign.Service, log logging.Logger) *RunHandler {
	return &RunHandler{service: service, logger: log.Named("run_handler")}
}

// startRunRequest is the POST /runs payload.
type startRunRequest struct {
	RunID string   `json:"run_id"`
	Seeds []string `json:"seeds" binding:"required"`
}

// Start launches a run.  The generation loop outlives the request, so the
// handler detaches it and answers 202 with the run id; progress is observed
// through the read endpoints.
func (h *RunHandler) Start(c *gin.Context) {
	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "invalid run request"))
		return
	}
	if len(req.Seeds) == 0 {
		respondError(c, errors.New(errors.ErrCodeValidation, "a run requires at least one seed sequence"))
		return
	}

	input := &campaign.StartInput{RunID: req.RunID, Seeds: req.Seeds}
	if input.RunID == "" {
		// Assigned here so the caller learns the id from the 202 response.
		input.RunID = uuid.NewString()
	}
	runID := input.RunID

	go func() {
		// Detached from the request; the run is driven to completion on the
		// server's own lifetime.
		if _, err := h.service.StartRun(context.Background(), input); err != nil {
			h.logger.Error("run failed", logging.String("run_id", runID), logging.Err(err))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "state": design.RunStateInitialized})
}

// Resume restarts an interrupted run from its checkpoint, detached like Start.
func (h *RunHandler) Resume(c *gin.Context) {
	runID := c.Param("id")

	go func() {
		if _, err := h.service.ResumeRun(context.Background(), runID); err != nil {
			h.logger.Error("resume failed", logging.String("run_id", runID), logging.Err(err))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "state": design.RunStateRunning})
}

// Cancel requests cooperative cancellation of an active run.
func (h *RunHandler) Cancel(c *gin.Context) {
	runID := c.Param("id")
	if !h.service.CancelRun(runID) {
		respondError(c, errors.New(errors.ErrCodeRunNotFound,
			"run is not active on this instance").WithDetail("run_id="+runID))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "state": design.RunStateCancelled})
}

// Get returns one run's persisted record.
func (h *RunHandler) Get(c *gin.Context) {
	rec, err := h.service.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// List returns runs newest-first, optionally filtered by state.
func (h *RunHandler) List(c *gin.Context) {
	state := design.RunState(c.Query("state"))
	if state != "" && !state.IsValid() {
		respondError(c, errors.New(errors.ErrCodeValidation, "unknown run state: "+string(state)))
		return
	}

	recs, err := h.service.ListRuns(c.Request.Context(), state,
		intQuery(c, "limit", 50), intQuery(c, "offset", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": recs, "count": len(recs)})
}

// Generations returns a run's per-generation statistics in order.
func (h *RunHandler) Generations(c *gin.Context) {
	history, err := h.service.GenerationHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"generations": history, "count": len(history)})
}

// TopCandidates returns a run's best-scoring candidates.
func (h *RunHandler) TopCandidates(c *gin.Context) {
	recs, err := h.service.TopCandidates(c.Request.Context(), c.Param("id"), intQuery(c, "limit", 10))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": recs, "count": len(recs)})
}

// GetCandidate returns one archived candidate of a run.
func (h *RunHandler) GetCandidate(c *gin.Context) {
	rec, err := h.service.GetCandidate(c.Request.Context(), c.Param("id"), c.Param("key"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Ancestry returns the derivation chain behind a candidate.
func (h *RunHandler) Ancestry(c *gin.Context) {
	nodes, err := h.service.Ancestry(c.Request.Context(), c.Param("key"), intQuery(c, "depth", 10))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ancestors": nodes, "count": len(nodes)})
}

// Descendants returns the candidates derived from a candidate.
func (h *RunHandler) Descendants(c *gin.Context) {
	nodes, err := h.service.Descendants(c.Request.Context(), c.Param("key"), intQuery(c, "depth", 10))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"descendants": nodes, "count": len(nodes)})
}
