// registry.go stores the reporting configuration applications register for
// themselves (user-tier agents).

package reporting

import (
	"slices"
	"sync"
)

// AppAgents is an application's own reporting configuration.
// Slack is currently the only supported user agent.
type AppAgents struct {
	// SlackWebhook receives the app owner's copy of reports.
	SlackWebhook string `koanf:"slack_webhook"`
}

// Registry maps application ids to their AppAgents.
// Writes happen at app registration; dispatch only reads.
type Registry struct {
	mu   sync.RWMutex
	apps map[string]AppAgents
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{apps: make(map[string]AppAgents)}
}

// Register stores or overwrites the configuration for appID.
func (r *Registry) Register(appID string, cfg AppAgents) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.apps == nil {
		r.apps = make(map[string]AppAgents)
	}
	r.apps[appID] = cfg
}

// Lookup returns the configuration for appID.
func (r *Registry) Lookup(appID string) (AppAgents, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.apps[appID]
	return cfg, ok
}

// Apps returns the registered application ids in sorted order.
func (r *Registry) Apps() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.apps))
	for id := range r.apps {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
