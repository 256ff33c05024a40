package adapters

import (
	"fmt"
	"sync"

	"github.com/brettbedarf/webmirror"
	"github.com/brettbedarf/webmirror/config"
)

// Registry maps remote type keys to their providers
type Registry struct {
	mu        sync.RWMutex
	providers map[string]webmirror.RemoteProvider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]webmirror.RemoteProvider)}
}

// Register ties a provider to a remote type key and should be called for
// each remote type during app init. The first registration of a key wins.
func (r *Registry) Register(remoteType string, provider webmirror.RemoteProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[remoteType]; exists {
		return
	}
	r.providers[remoteType] = provider
}

// GetProvider returns the provider registered for remoteType
func (r *Registry) GetProvider(remoteType string) (webmirror.RemoteProvider, error) {
	r.mu.RLock()
	p, ok := r.providers[remoteType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no remote provider for %q", remoteType)
	}
	return p, nil
}

// NewRemote builds the remote store described by cfg
func (r *Registry) NewRemote(cfg *config.Config) (webmirror.RemoteStore, error) {
	p, err := r.GetProvider(cfg.RemoteType)
	if err != nil {
		return nil, err
	}
	return p.NewRemote(OptionsFromConfig(cfg))
}

// OptionsFromConfig extracts the remote settings of cfg
func OptionsFromConfig(cfg *config.Config) webmirror.RemoteOptions {
	return webmirror.RemoteOptions{
		URL:              cfg.RemoteURL,
		Headers:          cfg.RemoteHeaders,
		RetryMaxAttempts: cfg.RetryMaxAttempts,
		RetryInitialWait: cfg.RetryInitialWaitDuration(),
	}
}
