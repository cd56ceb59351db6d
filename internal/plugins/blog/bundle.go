package blog

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/meridianhq/meridian/internal/entitlement"
	"github.com/meridianhq/meridian/internal/loader"
	"github.com/meridianhq/meridian/internal/platform/httpx"
	"github.com/meridianhq/meridian/internal/rbac"
)

// FeatureStats is the premium posting-activity feature key.
const FeatureStats entitlement.FeatureKey = "blog.stats"

// Bundle contributes the blog plugin's routes and menu entries. The plugin
// id comes from deployment config so it matches the registry's catalog.
type Bundle struct {
	pluginID string
	logger   *slog.Logger
	repo     Repository
}

// NewBundle builds the blog bundle.
func NewBundle(pluginID string, logger *slog.Logger, repo Repository) *Bundle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bundle{pluginID: pluginID, logger: logger, repo: repo}
}

// PluginID returns the configured plugin id.
func (b *Bundle) PluginID() string {
	return b.pluginID
}

// Routes contributes the blog's route definitions.
func (b *Bundle) Routes() ([]loader.RouteDef, error) {
	return []loader.RouteDef{
		{Method: http.MethodGet, Pattern: "/posts", Resource: "blog", Action: "read", Handler: b.listPosts},
		{Method: http.MethodPost, Pattern: "/posts", Resource: "blog", Action: "write", Handler: b.createPost},
		{Method: http.MethodGet, Pattern: "/stats", Resource: "blog", Action: "read", Feature: FeatureStats, Handler: b.stats},
	}, nil
}

// Menu contributes the blog's navigation entries.
func (b *Bundle) Menu() ([]loader.MenuEntry, error) {
	base := "/plugins/" + b.pluginID
	return []loader.MenuEntry{
		{PluginID: b.pluginID, Title: "Blog", Path: base + "/posts", Icon: "pencil", Order: 10, Resource: "blog", Action: "read"},
		{PluginID: b.pluginID, Title: "Blog Stats", Path: base + "/stats", Icon: "chart", Order: 11, Resource: "blog", Action: "read", Feature: FeatureStats},
	}, nil
}

func (b *Bundle) listPosts(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFromContext(r.Context())
	posts, err := b.repo.List(r.Context(), principal.TenantID)
	if err != nil {
		b.logger.Error("list posts", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if posts == nil {
		posts = []Post{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"posts": posts})
}

type createPostRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (b *Bundle) createPost(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFromContext(r.Context())

	var req createPostRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || strings.TrimSpace(req.Title) == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "title is required")
		return
	}
	post, err := b.repo.Create(r.Context(), Post{
		TenantID: principal.TenantID,
		AuthorID: principal.UserID,
		Title:    strings.TrimSpace(req.Title),
		Body:     req.Body,
	})
	if err != nil {
		b.logger.Error("create post", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusCreated, post)
}

func (b *Bundle) stats(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFromContext(r.Context())
	stats, err := b.repo.Stats(r.Context(), principal.TenantID)
	if err != nil {
		b.logger.Error("load stats", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}
