package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Docking Daemon Client
// ─────────────────────────────────────────────────────────────────────────────

// DockingConfig configures the client for the Vina-style docking daemon.
type DockingConfig struct {
	// Endpoint is the daemon's REST base URL, e.g. "http://dock-0:8900".
	Endpoint string

	// HealthAddr is the daemon's gRPC health endpoint, host:port.
	HealthAddr string

	// Receptor identifies the receptor structure the daemon should dock
	// against; resolved by the daemon from its artifact store.
	Receptor string

	// Exhaustiveness is passed through to the docking engine.
	Exhaustiveness int
}

// DockingClient speaks REST to a docking daemon and implements Invoker.
// Per-call deadlines come from the caller's context; the embedded HTTP
// client carries no timeout of its own.
type DockingClient struct {
	cfg    DockingConfig
	http   *http.Client
	logger logging.Logger
}

// dockRequest is the daemon's scoring request body.
type dockRequest struct {
	Sequence       string `json:"sequence"`
	Key            string `json:"key"`
	Receptor       string `json:"receptor,omitempty"`
	Exhaustiveness int    `json:"exhaustiveness,omitempty"`
}

// dockResponse is the daemon's scoring response body.  Affinity is the Vina
// binding affinity in kcal/mol (lower is better); Pose is opaque diagnostic
// payload forwarded unparsed.
type dockResponse struct {
	Affinity float64         `json:"affinity_kcal_mol"`
	Pose     json.RawMessage `json:"pose,omitempty"`
}

// NewDockingClient constructs a DockingClient.
func NewDockingClient(cfg DockingConfig, log logging.Logger) (*DockingClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New(errors.ErrCodeValidation, "docking client requires an endpoint")
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &DockingClient{
		cfg:    cfg,
		http:   &http.Client{},
		logger: log.Named("docking"),
	}, nil
}

// Engine implements Invoker.
func (d *DockingClient) Engine() string { return "vina" }

// Invoke submits one candidate to the daemon's /v1/dock endpoint.
// HTTP 4xx responses become non-retriable rejections; 5xx and transport
// errors become transient faults the adapter may retry.
func (d *DockingClient) Invoke(ctx context.Context, c *candidate.Candidate) (float64, json.RawMessage, error) {
	body := dockRequest{
		Sequence:       c.Sequence,
		Key:            c.Key,
		Receptor:       d.cfg.Receptor,
		Exhaustiveness: d.cfg.Exhaustiveness,
	}

	var resp dockResponse
	if err := d.postJSON(ctx, "/v1/dock", body, &resp); err != nil {
		return 0, nil, err
	}
	return resp.Affinity, resp.Pose, nil
}

func (d *DockingClient) postJSON(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode oracle request")
	}

	url := strings.TrimRight(d.cfg.Endpoint, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to build oracle request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return Transient(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Transient(err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.Unmarshal(raw, out); err != nil {
			return Transient(fmt.Errorf("malformed oracle response: %w", err))
		}
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return Rejected(oracleMessage(raw, resp.StatusCode))
	default:
		return Transient(fmt.Errorf("oracle returned status %d: %s", resp.StatusCode, oracleMessage(raw, resp.StatusCode)))
	}
}

// oracleMessage extracts the daemon's error message, falling back to the raw
// body or status code.
func oracleMessage(raw []byte, status int) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	if len(raw) > 0 {
		if len(raw) > 256 {
			raw = raw[:256]
		}
		return string(raw)
	}
	return fmt.Sprintf("status %d", status)
}

// ─────────────────────────────────────────────────────────────────────────────
// Health Probe
// ─────────────────────────────────────────────────────────────────────────────

// CheckHealth probes the daemon's gRPC health endpoint.  Used by the worker
// and API readiness checks before admitting scoring work.
func (d *DockingClient) CheckHealth(ctx context.Context) error {
	if d.cfg.HealthAddr == "" {
		return errors.New(errors.ErrCodeValidation, "docking client has no health address configured")
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(probeCtx, d.cfg.HealthAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeOracleUnavailable, "failed to dial docking daemon health endpoint")
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(probeCtx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeOracleUnavailable, "docking daemon health check failed")
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return errors.New(errors.ErrCodeOracleUnavailable, "docking daemon not serving").
			WithDetail("status=" + resp.GetStatus().String())
	}
	return nil
}
