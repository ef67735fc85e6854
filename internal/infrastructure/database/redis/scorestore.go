package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/errors"
)

// ScoreStore is the durable tier behind the in-process score cache.  Scores
// for a canonical key are immutable, so entries carry no version and a plain
// GET/SET protocol suffices.  It satisfies the search cache's Store interface.
type ScoreStore struct {
	client *Client
	logger logging.Logger
	ttl    time.Duration
}

// ScoreStoreOption configures a ScoreStore.
type ScoreStoreOption func(*ScoreStore)

// WithScoreTTL bounds how long persisted scores live.  Zero keeps them
// indefinitely, the default: a canonical key's score never goes stale.
func WithScoreTTL(ttl time.Duration) ScoreStoreOption {
	return func(s *ScoreStore) { s.ttl = ttl }
}

// NewScoreStore builds a ScoreStore over a connected client.
func NewScoreStore(client *Client, log logging.Logger, opts ...ScoreStoreOption) *ScoreStore {
	s := &ScoreStore{
		client: client,
		logger: log.Named("scorestore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ScoreStore) scoreKey(key string) string {
	return s.client.prefix() + "score:" + key
}

// Load fetches the persisted score for a canonical key.  A missing key is not
// an error; the caller falls through to the oracle.
func (s *ScoreStore) Load(ctx context.Context, key string) (candidate.Score, bool, error) {
	data, err := s.client.Get(ctx, s.scoreKey(key)).Bytes()
	if err == redis.Nil {
		return candidate.Score{}, false, nil
	}
	if err != nil {
		return candidate.Score{}, false, errors.Wrap(err, errors.ErrCodeCacheUnavailable,
			"failed to load score from redis")
	}

	var score candidate.Score
	if err := json.Unmarshal(data, &score); err != nil {
		// A corrupt entry is treated as a miss so the run can re-score
		// rather than abort; the entry is overwritten on the next Save.
		s.logger.Warn("discarding corrupt persisted score",
			logging.String("key", shortKey(key)),
			logging.Err(err))
		return candidate.Score{}, false, nil
	}
	return score, true, nil
}

// Save persists a score under its canonical key.
func (s *ScoreStore) Save(ctx context.Context, key string, score candidate.Score) error {
	data, err := json.Marshal(score)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode score")
	}
	if err := s.client.Set(ctx, s.scoreKey(key), data, s.ttl).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheUnavailable, "failed to persist score to redis")
	}
	return nil
}

func shortKey(key string) string {
	if len(key) <= 12 {
		return key
	}
	return key[:12]
}

// ─────────────────────────────────────────────────────────────────────────────
// Checkpoint store
// ─────────────────────────────────────────────────────────────────────────────

// CheckpointStore persists encoded run snapshots so an interrupted run can be
// resumed from its last completed generation.
type CheckpointStore struct {
	client *Client
	logger logging.Logger
	ttl    time.Duration
}

// CheckpointStoreOption configures a CheckpointStore.
type CheckpointStoreOption func(*CheckpointStore)

// WithCheckpointTTL bounds checkpoint retention.
func WithCheckpointTTL(ttl time.Duration) CheckpointStoreOption {
	return func(s *CheckpointStore) { s.ttl = ttl }
}

// NewCheckpointStore builds a CheckpointStore over a connected client.
func NewCheckpointStore(client *Client, log logging.Logger, opts ...CheckpointStoreOption) *CheckpointStore {
	s := &CheckpointStore{
		client: client,
		logger: log.Named("checkpoints"),
		ttl:    7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CheckpointStore) checkpointKey(runID string) string {
	return s.client.prefix() + "run:" + runID + ":snapshot"
}

// Save stores the encoded snapshot for a run, replacing any previous one.
// Snapshots are only taken between generations, so the latest always wins.
func (s *CheckpointStore) Save(ctx context.Context, runID string, snapshot []byte) error {
	if err := s.client.Set(ctx, s.checkpointKey(runID), snapshot, s.ttl).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheUnavailable, "failed to persist run checkpoint").
			WithDetail("run_id=" + runID)
	}
	s.logger.Debug("checkpoint saved",
		logging.String("run_id", runID),
		logging.Int("bytes", len(snapshot)))
	return nil
}

// Load fetches the latest snapshot for a run.
func (s *CheckpointStore) Load(ctx context.Context, runID string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.checkpointKey(runID)).Bytes()
	if err == redis.Nil {
		return nil, errors.New(errors.ErrCodeRunNotFound, "no checkpoint for run").
			WithDetail("run_id=" + runID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheUnavailable, "failed to load run checkpoint")
	}
	return data, nil
}

// Delete removes a run's checkpoint, typically after the run reached a
// terminal state and its summary was persisted elsewhere.
func (s *CheckpointStore) Delete(ctx context.Context, runID string) error {
	return s.client.Del(ctx, s.checkpointKey(runID)).Err()
}
