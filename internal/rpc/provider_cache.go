package rpc

import (
	"context"
	"sort"
	"sync"

	"github.com/goran-ethernal/ChainDispatch/internal/logger"
	"github.com/goran-ethernal/ChainDispatch/pkg/config"
	pkgrpc "github.com/goran-ethernal/ChainDispatch/pkg/rpc"
)

// DialFunc connects to a network.
type DialFunc func(ctx context.Context, network config.NetworkConfig) (pkgrpc.EthClient, error)

// ProviderCache holds one provider per network name. Every contract binding on a network
// shares the cached provider.
type ProviderCache struct {
	mu        sync.Mutex
	providers map[string]pkgrpc.EthClient
	dial      DialFunc
	log       *logger.Logger
}

// NewProviderCache creates a cache that dials networks with NewClient.
func NewProviderCache(log *logger.Logger) *ProviderCache {
	return NewProviderCacheWithDialer(log, func(ctx context.Context, network config.NetworkConfig) (pkgrpc.EthClient, error) {
		return NewClient(ctx, network, log)
	})
}

// NewProviderCacheWithDialer creates a cache that dials networks with dial.
func NewProviderCacheWithDialer(log *logger.Logger, dial DialFunc) *ProviderCache {
	return &ProviderCache{
		providers: make(map[string]pkgrpc.EthClient),
		dial:      dial,
		log:       log,
	}
}

// Get returns the provider cached for network.
func (p *ProviderCache) Get(network string) (pkgrpc.EthClient, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	provider, ok := p.providers[network]
	return provider, ok
}

// Add caches provider for network, closing any provider it replaces.
func (p *ProviderCache) Add(network string, provider pkgrpc.EthClient) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.providers[network]; ok && old != provider {
		old.Close()
	}
	p.providers[network] = provider
	ProvidersOpenSet(len(p.providers))
}

// GetOrDial returns the cached provider for network, dialing it on first use.
func (p *ProviderCache) GetOrDial(ctx context.Context, network config.NetworkConfig) (pkgrpc.EthClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if provider, ok := p.providers[network.Name]; ok {
		return provider, nil
	}

	provider, err := p.dial(ctx, network)
	if err != nil {
		return nil, err
	}

	p.log.Infow("connected to network", "network", network.Name)
	p.providers[network.Name] = provider
	ProvidersOpenSet(len(p.providers))

	return provider, nil
}

// Networks returns the cached network names in sorted order.
func (p *ProviderCache) Networks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.providers))
	for name := range p.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every cached provider and empties the cache.
func (p *ProviderCache) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for name, provider := range p.providers {
		provider.Close()
		delete(p.providers, name)
	}
	ProvidersOpenSet(0)
}
