// Command helixforge is the operator CLI: it drives design campaigns
// directly against the configured backends.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/helixforge/helixforge/internal/application/campaign"
	"github.com/helixforge/helixforge/internal/bootstrap"
	"github.com/helixforge/helixforge/internal/config"
	neorepo "github.com/helixforge/helixforge/internal/infrastructure/database/neo4j/repositories"
	pgrepo "github.com/helixforge/helixforge/internal/infrastructure/database/postgres/repositories"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/internal/interfaces/cli"
	"github.com/helixforge/helixforge/pkg/types/design"
)

func main() {
	opts := &cli.RootOptions{}
	root := cli.NewRootCommand(opts)

	lazy := &lazyCampaign{opts: opts}
	defer lazy.close()

	cli.RegisterCommands(root, opts, cli.Dependencies{
		Campaign: lazy,
		Logger:   logging.NewNopLogger(),
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// lazyCampaign defers backend connection until the first service call, after
// cobra has parsed the --config flag.
type lazyCampaign struct {
	opts *cli.RootOptions

	once     sync.Once
	backends *bootstrap.Backends
	service  campaign.Service
	initErr  error
}

func (l *lazyCampaign) init(ctx context.Context) (campaign.Service, error) {
	l.once.Do(func() {
		var cfg *config.Config
		var err error
		if l.opts.ConfigPath != "" {
			cfg, err = config.Load(l.opts.ConfigPath)
		} else {
			cfg, err = config.LoadFromEnv()
		}
		if err != nil {
			l.initErr = err
			return
		}
		if l.opts.LogLevel != "" {
			cfg.Log.Level = l.opts.LogLevel
		}

		log, err := bootstrap.NewLogger(cfg.Log)
		if err != nil {
			l.initErr = err
			return
		}

		backends, err := bootstrap.Connect(ctx, cfg, log)
		if err != nil {
			l.initErr = err
			return
		}
		if err := backends.Migrate(); err != nil {
			backends.Close()
			l.initErr = err
			return
		}

		service, err := backends.CampaignService()
		if err != nil {
			backends.Close()
			l.initErr = err
			return
		}
		l.backends = backends
		l.service = service
	})
	return l.service, l.initErr
}

func (l *lazyCampaign) close() {
	if l.backends != nil {
		l.backends.Close()
	}
}

func (l *lazyCampaign) StartRun(ctx context.Context, input *campaign.StartInput) (design.RunSummary, error) {
	svc, err := l.init(ctx)
	if err != nil {
		return design.RunSummary{}, err
	}
	return svc.StartRun(ctx, input)
}

func (l *lazyCampaign) ResumeRun(ctx context.Context, runID string) (design.RunSummary, error) {
	svc, err := l.init(ctx)
	if err != nil {
		return design.RunSummary{}, err
	}
	return svc.ResumeRun(ctx, runID)
}

func (l *lazyCampaign) CancelRun(runID string) bool {
	if l.service == nil {
		return false
	}
	return l.service.CancelRun(runID)
}

func (l *lazyCampaign) GetRun(ctx context.Context, runID string) (*pgrepo.RunRecord, error) {
	svc, err := l.init(ctx)
	if err != nil {
		return nil, err
	}
	return svc.GetRun(ctx, runID)
}

func (l *lazyCampaign) ListRuns(ctx context.Context, state design.RunState, limit, offset int) ([]*pgrepo.RunRecord, error) {
	svc, err := l.init(ctx)
	if err != nil {
		return nil, err
	}
	return svc.ListRuns(ctx, state, limit, offset)
}

func (l *lazyCampaign) GenerationHistory(ctx context.Context, runID string) ([]design.GenerationReport, error) {
	svc, err := l.init(ctx)
	if err != nil {
		return nil, err
	}
	return svc.GenerationHistory(ctx, runID)
}

func (l *lazyCampaign) TopCandidates(ctx context.Context, runID string, limit int) ([]*pgrepo.CandidateRecord, error) {
	svc, err := l.init(ctx)
	if err != nil {
		return nil, err
	}
	return svc.TopCandidates(ctx, runID, limit)
}

func (l *lazyCampaign) GetCandidate(ctx context.Context, runID, key string) (*pgrepo.CandidateRecord, error) {
	svc, err := l.init(ctx)
	if err != nil {
		return nil, err
	}
	return svc.GetCandidate(ctx, runID, key)
}

func (l *lazyCampaign) Ancestry(ctx context.Context, key string, maxDepth int) ([]neorepo.LineageNode, error) {
	svc, err := l.init(ctx)
	if err != nil {
		return nil, err
	}
	return svc.Ancestry(ctx, key, maxDepth)
}

func (l *lazyCampaign) Descendants(ctx context.Context, key string, maxDepth int) ([]neorepo.LineageNode, error) {
	svc, err := l.init(ctx)
	if err != nil {
		return nil, err
	}
	return svc.Descendants(ctx, key, maxDepth)
}
