package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/errors"
)

// EmbeddingConfig configures the learned-embedding scoring service client.
type EmbeddingConfig struct {
	// Endpoint is the service's REST base URL.
	Endpoint string

	// Model selects the scoring head the service should apply.
	Model string
}

// EmbeddingClient scores candidates against a learned-embedding service
// (a model predicting fitness from sequence embeddings).  A cheaper proxy
// oracle than docking, usually run with a shorter adapter timeout.
type EmbeddingClient struct {
	cfg    EmbeddingConfig
	http   *http.Client
	logger logging.Logger
}

type embedScoreRequest struct {
	Sequence string `json:"sequence"`
	Key      string `json:"key"`
	Model    string `json:"model,omitempty"`
}

type embedScoreResponse struct {
	Score       float64         `json:"score"`
	Diagnostics json.RawMessage `json:"diagnostics,omitempty"`
}

// NewEmbeddingClient constructs an EmbeddingClient.
func NewEmbeddingClient(cfg EmbeddingConfig, log logging.Logger) (*EmbeddingClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New(errors.ErrCodeValidation, "embedding client requires an endpoint")
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &EmbeddingClient{
		cfg:    cfg,
		http:   &http.Client{},
		logger: log.Named("embedding"),
	}, nil
}

// Engine implements Invoker.
func (e *EmbeddingClient) Engine() string { return "embedding" }

// Invoke submits one candidate to the service's /v1/score endpoint, with the
// same status classification as the docking client.
func (e *EmbeddingClient) Invoke(ctx context.Context, c *candidate.Candidate) (float64, json.RawMessage, error) {
	payload, err := json.Marshal(embedScoreRequest{
		Sequence: c.Sequence,
		Key:      c.Key,
		Model:    e.cfg.Model,
	})
	if err != nil {
		return 0, nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode embedding request")
	}

	url := strings.TrimRight(e.cfg.Endpoint, "/") + "/v1/score"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to build embedding request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		return 0, nil, Transient(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, Transient(err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var parsed embedScoreResponse
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return 0, nil, Transient(fmt.Errorf("malformed embedding response: %w", err))
		}
		return parsed.Score, parsed.Diagnostics, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return 0, nil, Rejected(oracleMessage(raw, resp.StatusCode))
	default:
		return 0, nil, Transient(fmt.Errorf("embedding service returned status %d", resp.StatusCode))
	}
}
