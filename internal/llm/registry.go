package llm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ephemerchat/ephemer/internal/logging"
)

// ProviderError is returned when a provider call fails. The underlying
// cause is kept for logging but must not be exposed to API clients.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP-like status code from the backend, if any
	Cause    error
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// UnsupportedModelError is returned when no registered provider serves the
// requested model identifier.
type UnsupportedModelError struct {
	Model string
}

func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("unsupported model %q", e.Model)
}

// ModelInfo describes a catalog entry exposed on the models endpoint.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Provider    string `json:"provider"`
	Recommended bool   `json:"recommended"`
}

// Registry maps model identifiers to provider clients. Dispatch is by
// exact model ID; unknown IDs fail with *UnsupportedModelError instead of
// falling through to a default provider.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client    // model ID → client
	catalog map[string]ModelInfo // model ID → catalog entry
	log     *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		catalog: make(map[string]ModelInfo),
		log:     log.Sub("llm.registry"),
	}
}

// Register adds a client for each of the given catalog entries.
func (r *Registry) Register(client Client, models ...ModelInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range models {
		r.clients[m.ID] = client
		r.catalog[m.ID] = m
		r.log.Info().Str("provider", client.Name()).Str("model", m.ID).Msg("registered model")
	}
}

// Resolve returns the client serving the given model ID.
func (r *Registry) Resolve(model string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[model]
	if !ok {
		return nil, &UnsupportedModelError{Model: model}
	}
	return c, nil
}

// Supports reports whether the model ID is in the catalog.
func (r *Registry) Supports(model string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[model]
	return ok
}

// Models returns the catalog sorted by model ID, recommended entries first.
func (r *Registry) Models() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ModelInfo, 0, len(r.catalog))
	for _, m := range r.catalog {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Recommended != out[j].Recommended {
			return out[i].Recommended
		}
		return out[i].ID < out[j].ID
	})
	return out
}
