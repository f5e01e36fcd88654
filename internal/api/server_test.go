package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mstanton/curator/internal/archive"
	"github.com/mstanton/curator/internal/collection"
	"github.com/mstanton/curator/internal/persist"
	"github.com/mstanton/curator/internal/runner"
	"github.com/mstanton/curator/internal/store"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type fakeIDGen struct{ n int }

func (g *fakeIDGen) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

type proberFunc func(ctx context.Context, url string) collection.Reachability

func (f proberFunc) Probe(ctx context.Context, url string) collection.Reachability {
	return f(ctx, url)
}

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	backend, err := persist.New(persist.Config{Dir: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = backend.Close(ctx)
	})

	clk := fakeClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	st, err := store.New(backend, clk, zap.NewNop())
	require.NoError(t, err)

	idGen := &fakeIDGen{}
	arch := archive.New(st, backend.Dir, clk, idGen, zap.NewNop())
	reachable := proberFunc(func(context.Context, string) collection.Reachability {
		return collection.Reachability{Accessible: true, StatusCode: 200}
	})
	runners := Runners{
		Reachability: runner.NewReachability(st, reachable, nil, clk, zap.NewNop(),
			runner.WithClaimDelay(0)),
	}

	srv := NewServer(
		context.Background(), st, backend, arch, runners, idGen,
		prometheus.NewRegistry(), 10*time.Second, zap.NewNop(),
	)
	return srv, st
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_CreateAndGetItem(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/v1/items", map[string]any{
		"kind":     "bookmark",
		"bookmark": map[string]string{"title": "Go Blog", "url": "https://go.dev/blog"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created collection.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "id-1", created.ID)
	require.Equal(t, collection.CategoryNoneID, created.CategoryID)

	rec = do(t, srv, http.MethodGet, "/v1/items/id-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_CreateItem_DuplicateURLConflicts(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	body := map[string]any{
		"kind":     "bookmark",
		"bookmark": map[string]string{"title": "A", "url": "https://a.com"},
	}
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/v1/items", body).Code)

	dup := map[string]any{
		"kind":     "bookmark",
		"bookmark": map[string]string{"title": "A again", "url": "https://a.com/"},
	}
	rec := do(t, srv, http.MethodPost, "/v1/items", dup)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_GetItem_NotFound(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/v1/items/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_DeleteItem(t *testing.T) {
	t.Parallel()
	srv, st := newTestServer(t)

	require.NoError(t, st.AddItem(collection.Item{
		ID:         "bm-1",
		Kind:       collection.KindBookmark,
		CategoryID: collection.CategoryNoneID,
		Bookmark:   &collection.Bookmark{Title: "A", URL: "https://a.com"},
	}))

	rec := do(t, srv, http.MethodDelete, "/v1/items/bm-1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, st.FetchAllItems())
}

func TestServer_CategoryLifecycle(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/v1/categories", map[string]string{"name": "Dev"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var cat collection.Category
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cat))

	rec = do(t, srv, http.MethodPost, "/v1/categories", map[string]string{"name": "dev"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv, http.MethodDelete, "/v1/categories/"+collection.CategoryAllID, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, srv, http.MethodDelete, "/v1/categories/"+cat.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServer_Preferences(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/v1/preferences/theme", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodPut, "/v1/preferences/theme", map[string]string{"value": "dark"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/v1/preferences/theme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "dark")
}

func TestServer_RunLifecycle(t *testing.T) {
	t.Parallel()
	srv, st := newTestServer(t)

	// Empty store: nothing eligible, start reports conflict.
	rec := do(t, srv, http.MethodPost, "/v1/runs/reachability/start", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	for i := 0; i < 3; i++ {
		require.NoError(t, st.AddItem(collection.Item{
			ID:         fmt.Sprintf("bm-%d", i),
			Kind:       collection.KindBookmark,
			CategoryID: collection.CategoryNoneID,
			Bookmark:   &collection.Bookmark{Title: "B", URL: fmt.Sprintf("https://site-%d.test", i)},
		}))
	}

	rec = do(t, srv, http.MethodPost, "/v1/runs/reachability/start", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		status := do(t, srv, http.MethodGet, "/v1/runs/reachability/status", nil)
		var resp struct {
			Progress struct {
				Running   bool `json:"running"`
				Completed int  `json:"completed"`
				Total     int  `json:"total"`
			} `json:"progress"`
		}
		if err := json.Unmarshal(status.Body.Bytes(), &resp); err != nil {
			return false
		}
		return !resp.Progress.Running && resp.Progress.Completed == 3
	}, 5*time.Second, 20*time.Millisecond)
}

func TestServer_UnknownRunKind(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/v1/runs/defrag/start", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ArchiveExportImport(t *testing.T) {
	t.Parallel()
	srv, st := newTestServer(t)

	require.NoError(t, st.AddItem(collection.Item{
		ID:         "bm-1",
		Kind:       collection.KindBookmark,
		CategoryID: collection.CategoryNoneID,
		Bookmark:   &collection.Bookmark{Title: "A", URL: "https://a.com"},
	}))

	dest := t.TempDir()
	rec := do(t, srv, http.MethodPost, "/v1/archive/export", map[string]string{"dest": dest})
	require.Equal(t, http.StatusCreated, rec.Code)

	var exported struct {
		Dir string `json:"dir"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exported))
	require.NotEmpty(t, exported.Dir)

	// Importing the export back into the same store is a pure no-op merge.
	rec = do(t, srv, http.MethodPost, "/v1/archive/import", map[string]string{"dir": exported.Dir})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"items_added":0`)
	require.Len(t, st.FetchAllItems(), 1)
}

func TestServer_RelocateStorage(t *testing.T) {
	t.Parallel()
	srv, st := newTestServer(t)

	require.NoError(t, st.AddItem(collection.Item{
		ID:         "bm-1",
		Kind:       collection.KindBookmark,
		CategoryID: collection.CategoryNoneID,
		Bookmark:   &collection.Bookmark{Title: "A", URL: "https://a.com"},
	}))

	newDir := t.TempDir()
	rec := do(t, srv, http.MethodPut, "/v1/storage/location", map[string]string{"dir": newDir})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), newDir)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
