package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridianhq/meridian/internal/registry"
)

// RegistryRefreshJob periodically re-fetches the plugin catalog so plugin
// enable and disable decisions made upstream reach this deployment without a
// restart.
type RegistryRefreshJob struct {
	Registry *registry.Registry
	Reloader registry.Reloader
	Logger   *slog.Logger
	clock    func() time.Time
}

// NewRegistryRefreshJob wires dependencies for the refresh handler.
func NewRegistryRefreshJob(reg *registry.Registry, reloader registry.Reloader, logger *slog.Logger) *RegistryRefreshJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegistryRefreshJob{
		Registry: reg,
		Reloader: reloader,
		Logger:   logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes registry refresh tasks.
func (j *RegistryRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Registry == nil {
		return errors.New("registry refresh: handler not configured")
	}
	var payload RegistryRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	started := j.clock()
	if err := j.Registry.Refresh(ctx, payload.PluginID); err != nil {
		if errors.Is(err, registry.ErrNotReady) {
			j.Logger.Warn("registry refresh skipped, not initialized")
			return asynq.SkipRetry
		}
		return err
	}
	if j.Reloader != nil {
		if err := j.Reloader.Reload(ctx); err != nil {
			return err
		}
	}
	j.Logger.Info("registry refreshed",
		slog.String("plugin_id", payload.PluginID),
		slog.Duration("took", j.clock().Sub(started)))
	return nil
}
