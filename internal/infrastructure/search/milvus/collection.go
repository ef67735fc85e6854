package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/helixforge/helixforge/internal/config"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/errors"
)

const embeddingCollectionSuffix = "embeddings"

// maxSequenceLength bounds stored sequences; designs are far shorter in
// practice but the schema must pick a limit.
const maxSequenceLength = 4096

// CollectionManager owns the embedding collection's schema, index, and
// load state.
type CollectionManager struct {
	client *Client
	cfg    *config.MilvusConfig
	logger logging.Logger
}

func NewCollectionManager(client *Client, log logging.Logger) *CollectionManager {
	return &CollectionManager{
		client: client,
		cfg:    client.cfg,
		logger: log.Named("milvus_collections"),
	}
}

// CollectionName returns the fully-prefixed embedding collection name.
func (m *CollectionManager) CollectionName() string {
	return m.cfg.CollectionPrefix + embeddingCollectionSuffix
}

func (m *CollectionManager) schema() *entity.Schema {
	return &entity.Schema{
		CollectionName: m.CollectionName(),
		Description:    "candidate sequence embeddings",
		Fields: []*entity.Field{
			{Name: "key", DataType: entity.FieldTypeVarChar, PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "64"}},
			{Name: "run_id", DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"}},
			{Name: "sequence", DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": fmt.Sprintf("%d", maxSequenceLength)}},
			{Name: "generation", DataType: entity.FieldTypeInt64},
			{Name: "embedding", DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", m.cfg.EmbeddingDim)}},
		},
	}
}

func (m *CollectionManager) index() (entity.Index, error) {
	switch m.cfg.IndexType {
	case "hnsw":
		return entity.NewIndexHNSW(entity.COSINE, 16, 200)
	case "ivf_flat":
		return entity.NewIndexIvfFlat(entity.COSINE, 1024)
	default:
		return nil, errors.New(errors.ErrCodeValidation,
			fmt.Sprintf("unsupported milvus index type %q", m.cfg.IndexType))
	}
}

// HasCollection reports whether the embedding collection exists.
func (m *CollectionManager) HasCollection(ctx context.Context) (bool, error) {
	has, err := m.client.Milvus().HasCollection(ctx, m.CollectionName())
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeExternalService, "failed to check collection existence")
	}
	return has, nil
}

// EnsureCollection creates the embedding collection, its vector index, and
// loads it into memory.  Safe to call on every startup.
func (m *CollectionManager) EnsureCollection(ctx context.Context) error {
	name := m.CollectionName()

	exists, err := m.HasCollection(ctx)
	if err != nil {
		return err
	}
	if !exists {
		if err := m.client.Milvus().CreateCollection(ctx, m.schema(), 2); err != nil {
			return errors.Wrap(err, errors.ErrCodeExternalService, "failed to create embedding collection")
		}
		idx, err := m.index()
		if err != nil {
			return err
		}
		if err := m.client.Milvus().CreateIndex(ctx, name, "embedding", idx, false); err != nil {
			return errors.Wrap(err, errors.ErrCodeExternalService, "failed to create embedding index")
		}
		m.logger.Info("embedding collection created",
			logging.String("collection", name),
			logging.String("index_type", m.cfg.IndexType))
	}

	loadCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := m.client.Milvus().LoadCollection(loadCtx, name, false); err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to load embedding collection")
	}
	return nil
}

// DropCollection removes the embedding collection and all stored vectors.
func (m *CollectionManager) DropCollection(ctx context.Context) error {
	if err := m.client.Milvus().DropCollection(ctx, m.CollectionName()); err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to drop embedding collection")
	}
	m.logger.Warn("embedding collection dropped", logging.String("collection", m.CollectionName()))
	return nil
}
