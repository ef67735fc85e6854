package milvus

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
)

func TestEmbed_Deterministic(t *testing.T) {
	a := Embed("MKVLAAGITSILLISGGAHA", 64)
	b := Embed("MKVLAAGITSILLISGGAHA", 64)
	assert.Equal(t, a, b)
}

func TestEmbed_UnitNorm(t *testing.T) {
	vec := Embed("MKVLAAGITSILLISGGAHA", 64)
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestEmbed_DistinguishesSequences(t *testing.T) {
	a := Embed("MKVLAAGITSILLISGGAHA", 64)
	b := Embed("MKVLAAGITSILLISGGAHG", 64)
	assert.NotEqual(t, a, b)
}

func TestEmbed_ShortSequence(t *testing.T) {
	vec := Embed("MK", 16)
	var nonZero int
	for _, v := range vec {
		if v != 0 {
			nonZero++
		}
	}
	assert.Equal(t, 1, nonZero)
}

func TestEmbed_Empty(t *testing.T) {
	vec := Embed("", 8)
	require.Len(t, vec, 8)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func hit(key string, score float32) client.SearchResult {
	return client.SearchResult{
		ResultCount: 1,
		Scores:      []float32{score},
		IDs:         entity.NewColumnVarChar("key", []string{key}),
	}
}

func TestFilterNovel(t *testing.T) {
	fake := &fakeMilvus{searchFn: func(vectors []entity.Vector, topK int) ([]client.SearchResult, error) {
		require.Len(t, vectors, 3)
		assert.Equal(t, 1, topK)
		return []client.SearchResult{
			hit("k1", 0.999),      // near-duplicate of an indexed design
			hit("k2", 0.41),       // distant neighbor
			{ResultCount: 0},      // nothing indexed nearby
		}, nil
	}}
	c := newTestClient(t, fake)
	store := NewEmbeddingStore(c, logging.NewNopLogger())

	novel, err := store.FilterNovel(context.Background(),
		[]string{"MKVLAAGITSILLISGGAHA", "MKVLAAGITSILLISGGAHG", "MKVLAAGITSILLISGGAHC"})
	require.NoError(t, err)
	assert.Equal(t, []string{"MKVLAAGITSILLISGGAHG", "MKVLAAGITSILLISGGAHC"}, novel)
}

func TestFilterNovel_CustomThreshold(t *testing.T) {
	fake := &fakeMilvus{searchFn: func(vectors []entity.Vector, _ int) ([]client.SearchResult, error) {
		return []client.SearchResult{hit("k1", 0.6)}, nil
	}}
	c := newTestClient(t, fake)
	store := NewEmbeddingStore(c, logging.NewNopLogger(), WithNoveltyThreshold(0.5))

	novel, err := store.FilterNovel(context.Background(), []string{"MKVLAAGITSILLISGGAHA"})
	require.NoError(t, err)
	assert.Empty(t, novel)
}

func TestFilterNovel_Empty(t *testing.T) {
	c := newTestClient(t, &fakeMilvus{})
	store := NewEmbeddingStore(c, logging.NewNopLogger())

	novel, err := store.FilterNovel(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, novel)
}

func TestAdd(t *testing.T) {
	fake := &fakeMilvus{}
	c := newTestClient(t, fake)
	store := NewEmbeddingStore(c, logging.NewNopLogger())

	m := candidate.Member{
		Candidate: candidate.MustNew("MKVLAAGITSILLISGGAHA", candidate.Lineage{Generation: 2, ID: "a"}),
		Score:     candidate.Success(-9.0, nil, time.Second),
	}
	require.NoError(t, store.Add(context.Background(), "run-1", []candidate.Member{m}))

	require.Len(t, fake.upsertCols, 5)
	keyCol, ok := fake.upsertCols[0].(*entity.ColumnVarChar)
	require.True(t, ok)
	key, err := keyCol.ValueByIdx(0)
	require.NoError(t, err)
	assert.Equal(t, m.Candidate.Key, key)

	vecCol, ok := fake.upsertCols[4].(*entity.ColumnFloatVector)
	require.True(t, ok)
	var norm float64
	for _, v := range vecCol.Data()[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestAdd_Empty(t *testing.T) {
	fake := &fakeMilvus{}
	c := newTestClient(t, fake)
	store := NewEmbeddingStore(c, logging.NewNopLogger())

	require.NoError(t, store.Add(context.Background(), "run-1", nil))
	assert.Nil(t, fake.upsertCols)
}
