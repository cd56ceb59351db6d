// Package jobs defines the background task types and the Asynq worker that
// processes them.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRegistryRefresh re-fetches the plugin catalog and re-merges
	// contributions.
	TaskRegistryRefresh = "registry:refresh"
	// TaskMarketplaceSync re-primes the marketplace catalog cache.
	TaskMarketplaceSync = "marketplace:sync"
)

// RegistryRefreshPayload scopes a refresh to one plugin, or all when empty.
type RegistryRefreshPayload struct {
	PluginID string `json:"plugin_id,omitempty"`
}

// NewRegistryRefreshTask constructs an Asynq task.
func NewRegistryRefreshTask(payload RegistryRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRegistryRefresh, data), nil
}

// MarketplaceSyncPayload carries no options yet; kept as a struct so fields
// can be added without changing the task type.
type MarketplaceSyncPayload struct{}

// NewMarketplaceSyncTask constructs an Asynq task.
func NewMarketplaceSyncTask() (*asynq.Task, error) {
	data, err := json.Marshal(MarketplaceSyncPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMarketplaceSync, data), nil
}
