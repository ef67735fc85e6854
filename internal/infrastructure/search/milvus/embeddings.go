package milvus

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/helixforge/helixforge/internal/config"
	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/errors"
)

// defaultNoveltyThreshold is the cosine similarity above which a sampled
// sequence is considered a near-duplicate of an already-evaluated design.
const defaultNoveltyThreshold = 0.98

// kmerSize is the window used for composition embedding.
const kmerSize = 3

// Neighbor is one hit from a similarity query.
type Neighbor struct {
	Key        string  `json:"key"`
	Sequence   string  `json:"sequence"`
	Similarity float32 `json:"similarity"`
}

// EmbeddingStore indexes evaluated designs and screens proposals for
// novelty.  It satisfies the proposal strategies' novelty-filter contract.
type EmbeddingStore struct {
	client    *Client
	cfg       *config.MilvusConfig
	logger    logging.Logger
	threshold float32
}

// StoreOption customizes an EmbeddingStore.
type StoreOption func(*EmbeddingStore)

// WithNoveltyThreshold overrides the similarity cutoff.
func WithNoveltyThreshold(t float32) StoreOption {
	return func(s *EmbeddingStore) {
		if t > 0 && t <= 1 {
			s.threshold = t
		}
	}
}

func NewEmbeddingStore(client *Client, log logging.Logger, opts ...StoreOption) *EmbeddingStore {
	s := &EmbeddingStore{
		client:    client,
		cfg:       client.cfg,
		logger:    log.Named("embeddings"),
		threshold: defaultNoveltyThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *EmbeddingStore) collection() string {
	return s.cfg.CollectionPrefix + embeddingCollectionSuffix
}

// Embed maps a sequence to a fixed-dimension composition vector by hashing
// overlapping k-mers into buckets and L2-normalizing the counts.  The
// embedding is deterministic, so equal sequences always land on the same
// point and cosine similarity reflects shared local composition.
func Embed(sequence string, dim int) []float32 {
	vec := make([]float32, dim)
	if len(sequence) == 0 || dim <= 0 {
		return vec
	}

	if len(sequence) < kmerSize {
		h := fnv.New32a()
		h.Write([]byte(sequence))
		vec[int(h.Sum32())%dim] = 1
		return vec
	}

	for i := 0; i+kmerSize <= len(sequence); i++ {
		h := fnv.New32a()
		h.Write([]byte(sequence[i : i+kmerSize]))
		vec[int(h.Sum32())%dim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

// Add indexes evaluated members so later proposals are screened against
// them.  Upsert by key keeps re-evaluations idempotent.
func (s *EmbeddingStore) Add(ctx context.Context, runID string, members []candidate.Member) error {
	if len(members) == 0 {
		return nil
	}

	keys := make([]string, len(members))
	runIDs := make([]string, len(members))
	sequences := make([]string, len(members))
	generations := make([]int64, len(members))
	vectors := make([][]float32, len(members))
	for i, m := range members {
		keys[i] = m.Candidate.Key
		runIDs[i] = runID
		sequences[i] = m.Candidate.Sequence
		generations[i] = int64(m.Candidate.Lineage.Generation)
		vectors[i] = Embed(m.Candidate.Sequence, s.cfg.EmbeddingDim)
	}

	_, err := s.client.Milvus().Upsert(ctx, s.collection(), "",
		entity.NewColumnVarChar("key", keys),
		entity.NewColumnVarChar("run_id", runIDs),
		entity.NewColumnVarChar("sequence", sequences),
		entity.NewColumnInt64("generation", generations),
		entity.NewColumnFloatVector("embedding", s.cfg.EmbeddingDim, vectors),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to index embeddings")
	}

	s.logger.Debug("indexed embeddings",
		logging.String("run_id", runID),
		logging.Int("members", len(members)))
	return nil
}

// FilterNovel returns the subset of sequences whose nearest indexed
// neighbor is below the similarity threshold.  An empty index admits
// everything.
func (s *EmbeddingStore) FilterNovel(ctx context.Context, sequences []string) ([]string, error) {
	if len(sequences) == 0 {
		return nil, nil
	}

	vectors := make([]entity.Vector, len(sequences))
	for i, seq := range sequences {
		vectors[i] = entity.FloatVector(Embed(seq, s.cfg.EmbeddingDim))
	}

	sp, err := s.searchParam()
	if err != nil {
		return nil, err
	}

	results, err := s.client.Milvus().Search(ctx, s.collection(), nil, "", nil,
		vectors, "embedding", entity.COSINE, 1, sp)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "novelty search failed")
	}

	novel := make([]string, 0, len(sequences))
	for i, seq := range sequences {
		if i >= len(results) || results[i].ResultCount == 0 || results[i].Scores[0] < s.threshold {
			novel = append(novel, seq)
		}
	}

	if dropped := len(sequences) - len(novel); dropped > 0 {
		s.logger.Debug("novelty filter dropped near-duplicates", logging.Int("dropped", dropped))
	}
	return novel, nil
}

// Nearest returns the indexed designs most similar to the given sequence.
func (s *EmbeddingStore) Nearest(ctx context.Context, sequence string, topK int) ([]Neighbor, error) {
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}

	sp, err := s.searchParam()
	if err != nil {
		return nil, err
	}

	vector := entity.FloatVector(Embed(sequence, s.cfg.EmbeddingDim))
	results, err := s.client.Milvus().Search(ctx, s.collection(), nil, "",
		[]string{"sequence"}, []entity.Vector{vector}, "embedding", entity.COSINE, topK, sp)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "similarity search failed")
	}
	if len(results) == 0 {
		return nil, nil
	}

	res := results[0]
	neighbors := make([]Neighbor, 0, res.ResultCount)
	seqCol, _ := res.Fields.GetColumn("sequence").(*entity.ColumnVarChar)
	for i := 0; i < res.ResultCount; i++ {
		key, err := res.IDs.GetAsString(i)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeExternalService, "malformed similarity hit")
		}
		n := Neighbor{Key: key, Similarity: res.Scores[i]}
		if seqCol != nil {
			if seq, err := seqCol.ValueByIdx(i); err == nil {
				n.Sequence = seq
			}
		}
		neighbors = append(neighbors, n)
	}
	return neighbors, nil
}

func (s *EmbeddingStore) searchParam() (entity.SearchParam, error) {
	switch s.cfg.IndexType {
	case "hnsw":
		return entity.NewIndexHNSWSearchParam(64)
	case "ivf_flat":
		return entity.NewIndexIvfFlatSearchParam(16)
	default:
		return nil, errors.New(errors.ErrCodeValidation, "unsupported milvus index type")
	}
}
