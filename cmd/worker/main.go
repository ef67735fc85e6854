// Command worker consumes asynchronous scoring jobs from kafka, evaluates
// them against the docking oracle, and feeds the shared score cache so
// controllers picking up the same design hit instead of re-docking.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/helixforge/helixforge/internal/bootstrap"
	"github.com/helixforge/helixforge/internal/config"
	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/internal/infrastructure/database/redis"
	"github.com/helixforge/helixforge/internal/infrastructure/messaging/kafka"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/internal/search/cache"
	"github.com/helixforge/helixforge/internal/search/controller"
	"github.com/helixforge/helixforge/pkg/errors"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (HELIX_* env vars when empty)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return err
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return errors.New(errors.ErrCodeValidation, "worker requires kafka brokers")
	}

	log, err := bootstrap.NewLogger(cfg.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := bootstrap.Connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backends.Close()

	scorer, err := backends.Scorer()
	if err != nil {
		return err
	}

	w := &scoreWorker{
		scorer:         scorer,
		store:          redis.NewScoreStore(backends.Redis, log),
		handlerTimeout: cfg.Worker.HandlerTimeout,
		logger:         log.Named("score_worker"),
	}

	topics := kafka.NewTopics(&cfg.Kafka)
	concurrency := cfg.Worker.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	log.Info("scoring worker starting",
		logging.String("topic", topics.ScoringJobs()),
		logging.Int("concurrency", concurrency))

	group, gctx := errgroup.WithContext(ctx)

	consumers := make([]*kafka.Consumer, 0, concurrency)
	for i := 0; i < concurrency; i++ {
		consumer, err := kafka.NewConsumer(&cfg.Kafka, topics.ScoringJobs(), w.handle, log,
			kafka.WithRetryPolicy(cfg.Worker.MaxRetries, cfg.Worker.RetryBackoff))
		if err != nil {
			return err
		}
		consumers = append(consumers, consumer)
		group.Go(func() error { return consumer.Run(gctx) })
	}

	if cfg.Worker.HeartbeatInterval > 0 {
		group.Go(func() error {
			heartbeat(gctx, consumers, cfg.Worker.HeartbeatInterval, log)
			return nil
		})
	}

	err = group.Wait()
	for _, consumer := range consumers {
		if cerr := consumer.Close(); cerr != nil {
			log.Warn("consumer close failed", logging.Err(cerr))
		}
	}
	return err
}

// heartbeat logs aggregate consumer throughput until the context ends.
func heartbeat(ctx context.Context, consumers []*kafka.Consumer, interval time.Duration, log logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var processed, retried, dropped int64
			for _, c := range consumers {
				m := c.Metrics()
				processed += m.Processed
				retried += m.Retried
				dropped += m.Dropped
			}
			log.Info("worker heartbeat",
				logging.Int64("processed", processed),
				logging.Int64("retried", retried),
				logging.Int64("dropped", dropped))
		}
	}
}

// scoreWorker evaluates one scoring job per message.
type scoreWorker struct {
	scorer         controller.Scorer
	store          cache.Store
	handlerTimeout time.Duration
	logger         logging.Logger
}

func (w *scoreWorker) handle(ctx context.Context, envelope *kafka.EventEnvelope) error {
	if envelope.Type != kafka.EventScoringRequested {
		return nil
	}

	var job kafka.ScoringJobPayload
	if err := json.Unmarshal(envelope.Payload, &job); err != nil {
		w.logger.Warn("dropping malformed scoring job", logging.Err(err))
		return nil
	}

	cand, err := candidate.New(job.Sequence, candidate.NewLineage(job.Generation, job.ParentKey), nil)
	if err != nil {
		// Invalid payloads are terminal; retrying cannot fix them.
		w.logger.Warn("dropping invalid scoring job",
			logging.String("run_id", job.RunID),
			logging.String("key", job.Key),
			logging.Err(err))
		return nil
	}

	if _, ok, err := w.store.Load(ctx, cand.Key); err == nil && ok {
		return nil
	}

	hctx := ctx
	if w.handlerTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, w.handlerTimeout)
		defer cancel()
	}

	score, err := w.scorer.Score(hctx, cand)
	if err != nil {
		return err
	}
	if !score.Usable() {
		w.logger.Info("scoring job finished without usable fitness",
			logging.String("run_id", job.RunID),
			logging.String("key", cand.Key),
			logging.String("status", string(score.Status)))
		return nil
	}

	if err := w.store.Save(ctx, cand.Key, score); err != nil {
		return err
	}
	w.logger.Debug("scoring job completed",
		logging.String("run_id", job.RunID),
		logging.String("key", cand.Key),
		logging.Float64("fitness", score.Fitness))
	return nil
}
