package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/errors"
	"github.com/helixforge/helixforge/pkg/types/design"
)

const candidateIndexSuffix = "candidates"

// ArchiveDoc is the archived form of one evaluated candidate.
type ArchiveDoc struct {
	RunID       string             `json:"run_id"`
	Key         string             `json:"key"`
	Sequence    string             `json:"sequence"`
	Generation  int                `json:"generation"`
	ParentKey   string             `json:"parent_key,omitempty"`
	Status      design.ScoreStatus `json:"status"`
	Fitness     *float64           `json:"fitness,omitempty"`
	EvaluatedAt time.Time          `json:"evaluated_at"`
}

// candidateIndexMapping is the archive index schema.  Sequences are indexed
// as keywords; the archive answers exact and prefix lookups, not full-text
// queries.
const candidateIndexMapping = `{
	"settings": {
		"number_of_shards": 1,
		"number_of_replicas": 1
	},
	"mappings": {
		"properties": {
			"run_id":       {"type": "keyword"},
			"key":          {"type": "keyword"},
			"sequence":     {"type": "keyword"},
			"generation":   {"type": "integer"},
			"parent_key":   {"type": "keyword"},
			"status":       {"type": "keyword"},
			"fitness":      {"type": "double"},
			"evaluated_at": {"type": "date"}
		}
	}
}`

// Indexer writes evaluated candidates into the archive index.
type Indexer struct {
	client *Client
	logger logging.Logger
}

func NewIndexer(client *Client, log logging.Logger) *Indexer {
	return &Indexer{client: client, logger: log.Named("archive_indexer")}
}

// IndexName returns the fully-prefixed archive index name.
func (i *Indexer) IndexName() string {
	return i.client.cfg.IndexPrefix + candidateIndexSuffix
}

// EnsureIndex creates the archive index if it does not exist.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	name := i.IndexName()
	api := i.client.API()

	resp, err := api.Indices.Exists([]string{name}, api.Indices.Exists.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to check archive index")
	}
	resp.Body.Close()
	if resp.StatusCode == 200 {
		return nil
	}

	createResp, err := api.Indices.Create(name,
		api.Indices.Create.WithBody(strings.NewReader(candidateIndexMapping)),
		api.Indices.Create.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to create archive index")
	}
	defer createResp.Body.Close()
	if createResp.IsError() {
		return errors.New(errors.ErrCodeExternalService,
			"archive index creation returned "+createResp.Status())
	}

	i.logger.Info("archive index created", logging.String("index", name))
	return nil
}

// IndexMembers bulk-indexes evaluated members.  Documents are keyed by
// run and canonical key, so re-indexing the same generation is idempotent.
func (i *Indexer) IndexMembers(ctx context.Context, runID string, members []candidate.Member) error {
	if len(members) == 0 {
		return nil
	}

	name := i.IndexName()
	batchSize := i.client.cfg.BulkBatchSize

	for start := 0; start < len(members); start += batchSize {
		end := start + batchSize
		if end > len(members) {
			end = len(members)
		}
		if err := i.bulkIndex(ctx, name, runID, members[start:end]); err != nil {
			return err
		}
	}

	i.logger.Debug("archived members",
		logging.String("run_id", runID),
		logging.Int("members", len(members)))
	return nil
}

func (i *Indexer) bulkIndex(ctx context.Context, index, runID string, members []candidate.Member) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, m := range members {
		doc := ArchiveDoc{
			RunID:       runID,
			Key:         m.Candidate.Key,
			Sequence:    m.Candidate.Sequence,
			Generation:  m.Candidate.Lineage.Generation,
			ParentKey:   m.Candidate.Lineage.ParentKey,
			Status:      m.Score.Status,
			EvaluatedAt: m.Score.EvaluatedAt,
		}
		if m.Score.Usable() {
			fitness := m.Score.Fitness
			doc.Fitness = &fitness
		}

		action := map[string]any{"index": map[string]any{
			"_index": index,
			"_id":    runID + ":" + m.Candidate.Key,
		}}
		if err := enc.Encode(action); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode bulk action")
		}
		if err := enc.Encode(doc); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode archive doc")
		}
	}

	api := i.client.API()
	resp, err := api.Bulk(&buf, api.Bulk.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "bulk index request failed")
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return errors.New(errors.ErrCodeExternalService, "bulk index returned "+resp.Status())
	}

	var result struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  any `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode bulk response")
	}
	if result.Errors {
		var failed int
		for _, item := range result.Items {
			for _, op := range item {
				if op.Status >= 300 {
					failed++
				}
			}
		}
		return errors.New(errors.ErrCodeExternalService,
			fmt.Sprintf("bulk index rejected %d of %d documents", failed, len(members)))
	}
	return nil
}

// DeleteIndex removes the archive index entirely.
func (i *Indexer) DeleteIndex(ctx context.Context) error {
	api := i.client.API()
	resp, err := api.Indices.Delete([]string{i.IndexName()},
		api.Indices.Delete.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to delete archive index")
	}
	defer resp.Body.Close()
	if resp.IsError() && resp.StatusCode != 404 {
		return errors.New(errors.ErrCodeExternalService,
			"archive index deletion returned "+resp.Status())
	}
	return nil
}
