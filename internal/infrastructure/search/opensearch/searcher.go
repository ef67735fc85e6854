package opensearch

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/errors"
	"github.com/helixforge/helixforge/pkg/types/design"
)

// ArchiveQuery filters the candidate archive.  Zero-valued fields are
// ignored; fitness bounds use pointers so zero is a usable bound.
type ArchiveQuery struct {
	RunID      string
	Status     design.ScoreStatus
	Generation *int
	MinFitness *float64
	MaxFitness *float64
	Size       int
	From       int
	SortAsc    bool
}

// ArchiveResult is one page of archive hits.
type ArchiveResult struct {
	Total int64
	Docs  []ArchiveDoc
}

// Searcher answers queries against the candidate archive.
type Searcher struct {
	client *Client
	logger logging.Logger
}

func NewSearcher(client *Client, log logging.Logger) *Searcher {
	return &Searcher{client: client, logger: log.Named("archive_searcher")}
}

func (s *Searcher) indexName() string {
	return s.client.cfg.IndexPrefix + candidateIndexSuffix
}

func buildQueryDSL(q ArchiveQuery) map[string]any {
	var filters []map[string]any
	if q.RunID != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"run_id": q.RunID}})
	}
	if q.Status != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"status": string(q.Status)}})
	}
	if q.Generation != nil {
		filters = append(filters, map[string]any{"term": map[string]any{"generation": *q.Generation}})
	}
	if q.MinFitness != nil || q.MaxFitness != nil {
		bounds := map[string]any{}
		if q.MinFitness != nil {
			bounds["gte"] = *q.MinFitness
		}
		if q.MaxFitness != nil {
			bounds["lte"] = *q.MaxFitness
		}
		filters = append(filters, map[string]any{"range": map[string]any{"fitness": bounds}})
	}

	query := map[string]any{"match_all": map[string]any{}}
	if len(filters) > 0 {
		query = map[string]any{"bool": map[string]any{"filter": filters}}
	}

	size := q.Size
	if size <= 0 {
		size = 20
	}
	order := "desc"
	if q.SortAsc {
		order = "asc"
	}

	return map[string]any{
		"query": query,
		"size":  size,
		"from":  q.From,
		"sort": []map[string]any{
			{"fitness": map[string]any{"order": order, "missing": "_last"}},
			{"key": map[string]any{"order": "asc"}},
		},
	}
}

// Search runs the query and returns one page of archived candidates.
func (s *Searcher) Search(ctx context.Context, q ArchiveQuery) (*ArchiveResult, error) {
	body, err := json.Marshal(buildQueryDSL(q))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode archive query")
	}

	api := s.client.API()
	resp, err := api.Search(
		api.Search.WithContext(ctx),
		api.Search.WithIndex(s.indexName()),
		api.Search.WithBody(bytes.NewReader(body)))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "archive search failed")
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return nil, errors.New(errors.ErrCodeExternalService, "archive search returned "+resp.Status())
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source ArchiveDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode archive response")
	}

	result := &ArchiveResult{Total: parsed.Hits.Total.Value}
	for _, h := range parsed.Hits.Hits {
		result.Docs = append(result.Docs, h.Source)
	}
	return result, nil
}

// Count returns how many archived candidates match the query.
func (s *Searcher) Count(ctx context.Context, q ArchiveQuery) (int64, error) {
	dsl := buildQueryDSL(q)
	delete(dsl, "size")
	delete(dsl, "from")
	delete(dsl, "sort")

	body, err := json.Marshal(dsl)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode count query")
	}

	api := s.client.API()
	resp, err := api.Count(
		api.Count.WithContext(ctx),
		api.Count.WithIndex(s.indexName()),
		api.Count.WithBody(bytes.NewReader(body)))
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeExternalService, "archive count failed")
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return 0, errors.New(errors.ErrCodeExternalService, "archive count returned "+resp.Status())
	}

	var parsed struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode count response")
	}
	return parsed.Count, nil
}
