package jobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/meridian/internal/registry"
)

const blogID = "550e8400-e29b-41d4-a716-446655440001"

type countingReloader struct {
	calls int
}

func (c *countingReloader) Reload(ctx context.Context) error {
	c.calls++
	return nil
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"plugins": [{"id": "` + blogID + `", "name": "Blog", "version": "1.0.0"}],
			"states": [{"id": "` + blogID + `", "status": "enabled"}]
		}`))
	}))
	t.Cleanup(srv.Close)
	client := registry.NewClient(registry.ClientConfig{BaseURL: srv.URL, Timeout: 2 * time.Second})
	return registry.New(client, registry.Options{InitTimeout: 2 * time.Second})
}

func TestRegistryRefreshJob(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Initialize(context.Background()))
	reloader := &countingReloader{}
	job := NewRegistryRefreshJob(reg, reloader, nil)

	task, err := NewRegistryRefreshTask(RegistryRefreshPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, reloader.calls)
}

func TestRegistryRefreshJobSinglePlugin(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Initialize(context.Background()))
	job := NewRegistryRefreshJob(reg, nil, nil)

	task, err := NewRegistryRefreshTask(RegistryRefreshPayload{PluginID: blogID})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
}

func TestRegistryRefreshJobMalformedPayload(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Initialize(context.Background()))
	job := NewRegistryRefreshJob(reg, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskRegistryRefresh, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestRegistryRefreshJobBeforeInitialize(t *testing.T) {
	reg := newTestRegistry(t)
	job := NewRegistryRefreshJob(reg, nil, nil)

	task, err := NewRegistryRefreshTask(RegistryRefreshPayload{})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
}
