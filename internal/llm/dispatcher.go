package llm

import (
	"fmt"
	"sync"

	"github.com/set-night/chatrelay/internal/domain"
)

// Dispatcher picks the adapter for a request. Provider types without
// credentials are never registered.
type Dispatcher struct {
	mu        sync.RWMutex
	providers map[domain.ProviderType]Provider
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{providers: make(map[domain.ProviderType]Provider)}
}

func (d *Dispatcher) Register(t domain.ProviderType, p Provider) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.providers[t] = p
}

// Select applies the attachment override and returns the adapter to use.
// Requests with images always go to OpenAI.
func (d *Dispatcher) Select(req *domain.ChatRequest) (Provider, error) {
	if req.HasAttachments() {
		req.Provider = domain.ProviderOpenAI
	}
	if !req.Provider.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidProvider, req.Provider)
	}

	d.mu.RLock()
	p, ok := d.providers[req.Provider]
	d.mu.RUnlock()
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderUnavailable, req.Provider)
	}
	return p, nil
}

// Available lists the configured provider types in a stable order.
func (d *Dispatcher) Available() []domain.ProviderType {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]domain.ProviderType, 0, len(d.providers))
	for _, t := range domain.Providers {
		if _, ok := d.providers[t]; ok {
			out = append(out, t)
		}
	}
	return out
}
