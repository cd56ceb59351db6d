package blog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/meridian/internal/rbac"
)

const testPluginID = "550e8400-e29b-41d4-a716-446655440001"

type memoryRepo struct {
	mu     sync.Mutex
	nextID int64
	posts  []Post
}

func (m *memoryRepo) List(ctx context.Context, tenantID int64) ([]Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Post
	for _, p := range m.posts {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryRepo) Create(ctx context.Context, post Post) (Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	post.ID = m.nextID
	post.CreatedAt = time.Now()
	m.posts = append(m.posts, post)
	return post, nil
}

func (m *memoryRepo) Stats(ctx context.Context, tenantID int64) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s Stats
	for _, p := range m.posts {
		if p.TenantID == tenantID {
			s.TotalPosts++
			created := p.CreatedAt
			if s.LastPosted == nil || created.After(*s.LastPosted) {
				s.LastPosted = &created
			}
		}
	}
	return s, nil
}

func newBundleRouter(t *testing.T) (chi.Router, *memoryRepo) {
	t.Helper()
	repo := &memoryRepo{}
	bundle := NewBundle(testPluginID, nil, repo)

	routes, err := bundle.Routes()
	require.NoError(t, err)

	r := chi.NewRouter()
	for _, def := range routes {
		r.Method(def.Method, def.Pattern, def.Handler)
	}
	return r, repo
}

func asAuthor(req *http.Request, tenantID int64) *http.Request {
	principal := rbac.NewPrincipal(7, tenantID, 3, false, nil)
	return req.WithContext(rbac.ContextWithPrincipal(req.Context(), principal))
}

func TestCreateAndListPosts(t *testing.T) {
	r, _ := newBundleRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(`{"title": "Hello", "body": "First post"}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, asAuthor(req, 1))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, asAuthor(httptest.NewRequest(http.MethodGet, "/posts", nil), 1))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Posts []Post `json:"posts"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Posts, 1)
	require.Equal(t, "Hello", body.Posts[0].Title)
	require.Equal(t, int64(7), body.Posts[0].AuthorID)
}

func TestPostsAreTenantScoped(t *testing.T) {
	r, _ := newBundleRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(`{"title": "Tenant one only"}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, asAuthor(req, 1))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, asAuthor(httptest.NewRequest(http.MethodGet, "/posts", nil), 2))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Posts []Post `json:"posts"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Empty(t, body.Posts)
}

func TestCreatePostRequiresTitle(t *testing.T) {
	r, _ := newBundleRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(`{"body": "no title"}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, asAuthor(req, 1))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStatsEndpoint(t *testing.T) {
	r, _ := newBundleRouter(t)

	for _, title := range []string{"one", "two"} {
		req := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(`{"title": "`+title+`"}`))
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, asAuthor(req, 1))
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, asAuthor(httptest.NewRequest(http.MethodGet, "/stats", nil), 1))
	require.Equal(t, http.StatusOK, rr.Code)

	var stats Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	require.Equal(t, int64(2), stats.TotalPosts)
	require.NotNil(t, stats.LastPosted)
}

func TestMenuEntriesCarryGateInputs(t *testing.T) {
	bundle := NewBundle(testPluginID, nil, &memoryRepo{})
	entries, err := bundle.Menu()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "/plugins/"+testPluginID+"/posts", entries[0].Path)
	require.Equal(t, FeatureStats, entries[1].Feature)
}
