package oracle

import (
	"github.com/helixforge/helixforge/internal/config"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/errors"
)

// NewInvoker builds the configured oracle backend.
func NewInvoker(cfg *config.OracleConfig, log logging.Logger) (Invoker, error) {
	switch cfg.Engine {
	case "vina":
		return NewDockingClient(DockingConfig{
			Endpoint:       cfg.Endpoint,
			HealthAddr:     cfg.HealthAddr,
			Exhaustiveness: cfg.Exhaustiveness,
		}, log)
	case "embedding":
		return NewEmbeddingClient(EmbeddingConfig{Endpoint: cfg.Endpoint}, log)
	case "mock":
		return NewMockInvoker(), nil
	default:
		return nil, errors.New(errors.ErrCodeValidation, "unsupported oracle engine: "+cfg.Engine)
	}
}

// NewFromConfig builds the full adapter stack (invoker + retry/timeout
// policy) from configuration.
func NewFromConfig(cfg *config.OracleConfig, log logging.Logger, opts ...AdapterOption) (*Adapter, error) {
	invoker, err := NewInvoker(cfg, log)
	if err != nil {
		return nil, err
	}
	return NewAdapter(invoker, Config{
		Timeout:      cfg.Timeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, log, opts...)
}
