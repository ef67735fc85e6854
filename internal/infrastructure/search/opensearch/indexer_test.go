package opensearch

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
)

func testMembers(t *testing.T) []candidate.Member {
	t.Helper()
	c1 := candidate.MustNew("MKVLAAGITSILLISGGAHA", candidate.Lineage{Generation: 1, ID: "a"})
	c2 := candidate.MustNew("MKVLAAGITSILLISGGAHG", candidate.Lineage{Generation: 1, ID: "b", ParentKey: c1.Key})
	return []candidate.Member{
		{Candidate: c1, Score: candidate.Success(-8.5, nil, time.Second)},
		{Candidate: c2, Score: candidate.Failed(nil, time.Second)},
	}
}

func TestEnsureIndex_CreatesWhenMissing(t *testing.T) {
	var created bool
	server := newArchiveServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead && r.URL.Path == "/":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && strings.Contains(r.URL.Path, "helixforge-candidates"):
			body, _ := io.ReadAll(r.Body)
			assert.Contains(t, string(body), `"sequence"`)
			created = true
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	idx := NewIndexer(newArchiveClient(t, server), logging.NewNopLogger())
	require.NoError(t, idx.EnsureIndex(context.Background()))
	assert.True(t, created)
}

func TestEnsureIndex_SkipsExisting(t *testing.T) {
	server := newArchiveServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			t.Error("existing index must not be recreated")
		}
		w.WriteHeader(http.StatusOK)
	})

	idx := NewIndexer(newArchiveClient(t, server), logging.NewNopLogger())
	require.NoError(t, idx.EnsureIndex(context.Background()))
}

func TestIndexMembers(t *testing.T) {
	members := testMembers(t)
	var bulkBody string
	server := newArchiveServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/_bulk") {
			body, _ := io.ReadAll(r.Body)
			bulkBody = string(body)
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"errors":false,"items":[]}`)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	idx := NewIndexer(newArchiveClient(t, server), logging.NewNopLogger())
	require.NoError(t, idx.IndexMembers(context.Background(), "run-1", members))

	scanner := bufio.NewScanner(strings.NewReader(bulkBody))
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 4, "action and source line per member")

	var action struct {
		Index struct {
			ID string `json:"_id"`
		} `json:"index"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &action))
	assert.Equal(t, "run-1:"+members[0].Candidate.Key, action.Index.ID)

	var doc ArchiveDoc
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &doc))
	assert.Equal(t, "run-1", doc.RunID)
	require.NotNil(t, doc.Fitness)
	assert.Equal(t, -8.5, *doc.Fitness)

	var failedDoc ArchiveDoc
	require.NoError(t, json.Unmarshal([]byte(lines[3]), &failedDoc))
	assert.Nil(t, failedDoc.Fitness, "unusable scores archive without fitness")
}

func TestIndexMembers_PartialRejection(t *testing.T) {
	server := newArchiveServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/_bulk") {
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"errors":true,"items":[{"index":{"status":200}},{"index":{"status":429,"error":{"type":"too_many_requests"}}}]}`)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	idx := NewIndexer(newArchiveClient(t, server), logging.NewNopLogger())
	err := idx.IndexMembers(context.Background(), "run-1", testMembers(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected 1 of 2")
}

func TestIndexMembers_Empty(t *testing.T) {
	server := newArchiveServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/_bulk") {
			t.Error("empty batch must not hit the cluster")
		}
		w.WriteHeader(http.StatusOK)
	})

	idx := NewIndexer(newArchiveClient(t, server), logging.NewNopLogger())
	require.NoError(t, idx.IndexMembers(context.Background(), "run-1", nil))
}

func TestDeleteIndex_MissingIsFine(t *testing.T) {
	server := newArchiveServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	idx := NewIndexer(newArchiveClient(t, server), logging.NewNopLogger())
	assert.NoError(t, idx.DeleteIndex(context.Background()))
}
