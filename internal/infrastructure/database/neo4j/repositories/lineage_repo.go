package repositories

import (
	"context"
	"fmt"

	neo4jdriver "github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/internal/infrastructure/database/neo4j"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/errors"
)

// LineageNode is one candidate in an ancestry or descendant traversal.
// Depth is the number of DERIVED_FROM hops from the query's starting key.
type LineageNode struct {
	Key        string `json:"key"`
	Sequence   string `json:"sequence"`
	Generation int    `json:"generation"`
	Depth      int    `json:"depth"`
}

// LineageRepository records candidate derivation edges in the graph and
// answers ancestry queries.  Candidate nodes are merged by canonical key,
// so re-recording a candidate from a later run is a no-op on the node.
type LineageRepository struct {
	exec   neo4j.Executor
	logger logging.Logger
}

func NewLineageRepository(exec neo4j.Executor, log logging.Logger) *LineageRepository {
	return &LineageRepository{
		exec:   exec,
		logger: log.Named("lineage_repo"),
	}
}

// EnsureRun merges the run node so membership edges have a target.
func (r *LineageRepository) EnsureRun(ctx context.Context, runID string) error {
	_, err := r.exec.ExecuteWrite(ctx, func(tx neo4j.Transaction) (any, error) {
		return tx.Run(ctx, `MERGE (r:Run {id: $run_id})`, map[string]any{"run_id": runID})
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to ensure run node")
	}
	return nil
}

// RecordMembers upserts candidate nodes, their EVALUATED_IN membership in the
// run, and DERIVED_FROM edges to their parents.  Root candidates (no parent
// key) get no derivation edge.
func (r *LineageRepository) RecordMembers(ctx context.Context, runID string, members []candidate.Member) error {
	if len(members) == 0 {
		return nil
	}

	rows := make([]map[string]any, 0, len(members))
	for _, m := range members {
		row := map[string]any{
			"key":        m.Candidate.Key,
			"sequence":   m.Candidate.Sequence,
			"generation": m.Candidate.Lineage.Generation,
			"parent_key": nil,
		}
		if m.Candidate.Lineage.ParentKey != "" {
			row["parent_key"] = m.Candidate.Lineage.ParentKey
		}
		rows = append(rows, row)
	}

	query := `
		MATCH (r:Run {id: $run_id})
		UNWIND $rows AS row
		MERGE (c:Candidate {key: row.key})
		ON CREATE SET c.sequence = row.sequence, c.generation = row.generation
		MERGE (c)-[:EVALUATED_IN {generation: row.generation}]->(r)
		FOREACH (pk IN CASE WHEN row.parent_key IS NULL THEN [] ELSE [row.parent_key] END |
			MERGE (p:Candidate {key: pk})
			MERGE (c)-[:DERIVED_FROM]->(p)
		)`

	_, err := r.exec.ExecuteWrite(ctx, func(tx neo4j.Transaction) (any, error) {
		return tx.Run(ctx, query, map[string]any{"run_id": runID, "rows": rows})
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to record lineage batch")
	}

	r.logger.Debug("recorded lineage batch",
		logging.String("run_id", runID),
		logging.Int("members", len(members)))
	return nil
}

// Ancestry walks DERIVED_FROM edges from the given candidate back toward its
// roots, up to maxDepth hops.  The starting candidate is not included.
func (r *LineageRepository) Ancestry(ctx context.Context, key string, maxDepth int) ([]LineageNode, error) {
	if maxDepth <= 0 {
		maxDepth = 10
	}

	// Variable-length path bounds cannot be parameterized in cypher.
	query := fmt.Sprintf(`
		MATCH path = (c:Candidate {key: $key})-[:DERIVED_FROM*1..%d]->(a:Candidate)
		WITH a, min(length(path)) AS depth
		RETURN a.key AS key, a.sequence AS sequence, a.generation AS generation, depth
		ORDER BY depth, key`, maxDepth)

	return r.queryNodes(ctx, query, map[string]any{"key": key}, "failed to query ancestry")
}

// Descendants walks DERIVED_FROM edges in reverse: everything derived from
// the given candidate, up to maxDepth hops.
func (r *LineageRepository) Descendants(ctx context.Context, key string, maxDepth int) ([]LineageNode, error) {
	if maxDepth <= 0 {
		maxDepth = 10
	}

	query := fmt.Sprintf(`
		MATCH path = (d:Candidate)-[:DERIVED_FROM*1..%d]->(c:Candidate {key: $key})
		WITH d, min(length(path)) AS depth
		RETURN d.key AS key, d.sequence AS sequence, d.generation AS generation, depth
		ORDER BY depth, key`, maxDepth)

	return r.queryNodes(ctx, query, map[string]any{"key": key}, "failed to query descendants")
}

func (r *LineageRepository) queryNodes(ctx context.Context, query string, params map[string]any, failMsg string) ([]LineageNode, error) {
	result, err := r.exec.ExecuteRead(ctx, func(tx neo4j.Transaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return neo4j.CollectRecords(ctx, res, mapLineageNode)
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, failMsg)
	}
	nodes, ok := result.([]LineageNode)
	if !ok {
		return nil, errors.New(errors.ErrCodeInternal, "unexpected lineage result type")
	}
	return nodes, nil
}

func mapLineageNode(record *neo4jdriver.Record) (LineageNode, error) {
	var node LineageNode

	key, ok := record.Get("key")
	if !ok {
		return node, errors.New(errors.ErrCodeDatabaseError, "lineage record missing key")
	}
	node.Key, _ = key.(string)

	if seq, ok := record.Get("sequence"); ok {
		node.Sequence, _ = seq.(string)
	}
	if gen, ok := record.Get("generation"); ok {
		if g, ok := gen.(int64); ok {
			node.Generation = int(g)
		}
	}
	if depth, ok := record.Get("depth"); ok {
		if d, ok := depth.(int64); ok {
			node.Depth = int(d)
		}
	}
	return node, nil
}
