package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/internal/infrastructure/search/milvus"
	"github.com/helixforge/helixforge/internal/infrastructure/search/opensearch"
	"github.com/helixforge/helixforge/pkg/errors"
	"github.com/helixforge/helixforge/pkg/types/design"
)

// ArchiveSearcher queries the candidate archive.
type ArchiveSearcher interface {
	Search(ctx context.Context, q opensearch.ArchiveQuery) (*opensearch.ArchiveResult, error)
	Count(ctx context.Context, q opensearch.ArchiveQuery) (int64, error)
}

// SimilarityIndex answers nearest-neighbour queries over sequence embeddings.
type SimilarityIndex interface {
	Nearest(ctx context.Context, sequence string, topK int) ([]milvus.Neighbor, error)
}

// PoseArtifacts resolves stored docking poses.
type PoseArtifacts interface {
	PoseURL(ctx context.Context, runID, candidateKey string) (string, error)
}

// ArchiveHandler serves the post-run analysis endpoints: archive queries,
// similarity lookups, and pose downloads.
type ArchiveHandler struct {
	searcher ArchiveSearcher
	index    SimilarityIndex
	poses    PoseArtifacts
	logger   logging.Logger
}

// NewArchiveHandler constructs an ArchiveHandler.  Backends left nil answer
// 503 for their endpoints.
func NewArchiveHandler(searcher ArchiveSearcher, index SimilarityIndex, poses PoseArtifacts, log logging.Logger) *ArchiveHandler {
	return &ArchiveHandler{searcher: searcher, index: index, poses: poses, logger: log.Named("archive_handler")}
}

// Search queries the archive with filters from the query string.
func (h *ArchiveHandler) Search(c *gin.Context) {
	if h.searcher == nil {
		respondError(c, errors.New(errors.ErrCodeServiceUnavailable, "candidate archive is not configured"))
		return
	}

	q := opensearch.ArchiveQuery{
		RunID:   c.Query("run_id"),
		Status:  design.ScoreStatus(c.Query("status")),
		Size:    intQuery(c, "size", 20),
		From:    intQuery(c, "from", 0),
		SortAsc: c.Query("order") != "desc",
	}
	if gen := c.Query("generation"); gen != "" {
		n := intQuery(c, "generation", -1)
		if n < 0 {
			respondError(c, errors.New(errors.ErrCodeValidation, "generation must be a non-negative integer"))
			return
		}
		q.Generation = &n
	}

	result, err := h.searcher.Search(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// similarRequest is the POST /candidates/similar payload.
type similarRequest struct {
	Sequence string `json:"sequence" binding:"required"`
	TopK     int    `json:"top_k"`
}

// Similar returns the archived sequences nearest to the submitted one.
func (h *ArchiveHandler) Similar(c *gin.Context) {
	if h.index == nil {
		respondError(c, errors.New(errors.ErrCodeServiceUnavailable, "similarity index is not configured"))
		return
	}

	var req similarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "invalid similarity request"))
		return
	}
	if req.TopK <= 0 {
		req.TopK = 10
	}

	neighbors, err := h.index.Nearest(c.Request.Context(), req.Sequence, req.TopK)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"neighbors": neighbors, "count": len(neighbors)})
}

// PoseURL answers a presigned download link for one candidate's docked pose.
func (h *ArchiveHandler) PoseURL(c *gin.Context) {
	if h.poses == nil {
		respondError(c, errors.New(errors.ErrCodeServiceUnavailable, "artifact storage is not configured"))
		return
	}

	url, err := h.poses.PoseURL(c.Request.Context(), c.Param("id"), c.Param("key"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
