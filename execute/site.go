package execute

import (
	"fmt"
	"sort"

	"github.com/nimbusworks/dfm/api"
	"github.com/nimbusworks/dfm/cache"
	"github.com/nimbusworks/dfm/config"
	"github.com/nimbusworks/dfm/execute/adapter"
)

// Site is the immutable registry built from the site configuration at
// startup: provider instances and the two-level (provider, api_class) →
// (adapter factory, adapter config) dispatch table.
type Site struct {
	cfg       *config.SiteConfig
	providers map[string]*adapter.Provider
}

// NewSite validates the site configuration against the adapter and api
// registries and builds the dispatch table. Errors here are fatal config
// errors.
func NewSite(cfg *config.SiteConfig) (*Site, error) {
	site := &Site{
		cfg:       cfg,
		providers: make(map[string]*adapter.Provider, len(cfg.Providers)),
	}

	for name, providerCfg := range cfg.Providers {
		blob, err := cache.NewBlobStore(providerCfg.CacheConf)
		if err != nil {
			return nil, fmt.Errorf("site: provider %q: %w", name, err)
		}
		site.providers[name] = &adapter.Provider{
			Name:        name,
			Description: providerCfg.Description,
			Blob:        blob,
		}

		for apiClass, binding := range providerCfg.Interface {
			if _, ok := api.Lookup(apiClass); !ok {
				return nil, fmt.Errorf("site: provider %q binds unknown api_class %q", name, apiClass)
			}
			if _, ok := adapter.Lookup(binding.Adapter); !ok {
				return nil, fmt.Errorf("site: provider %q binds api_class %q to unknown adapter %q",
					name, apiClass, binding.Adapter)
			}
		}
	}
	return site, nil
}

// Config returns the underlying site configuration.
func (s *Site) Config() *config.SiteConfig {
	return s.cfg
}

// Name returns the site name.
func (s *Site) Name() string {
	return s.cfg.Site
}

// Provider returns a provider instance by name.
func (s *Site) Provider(name string) (*adapter.Provider, bool) {
	p, ok := s.providers[name]
	return p, ok
}

// Offers reports whether the provider binds the api_class at this site.
func (s *Site) Offers(provider, apiClass string) bool {
	providerCfg, ok := s.cfg.Providers[provider]
	if !ok {
		return false
	}
	_, ok = providerCfg.Interface[apiClass]
	return ok
}

// Resolve maps (provider, api_class) to the adapter factory, its static
// config, and the provider instance.
func (s *Site) Resolve(provider, apiClass string) (adapter.Factory, map[string]any, *adapter.Provider, error) {
	providerCfg, ok := s.cfg.Providers[provider]
	if !ok {
		return nil, nil, nil, fmt.Errorf("site: provider %q not configured", provider)
	}
	binding, ok := providerCfg.Interface[apiClass]
	if !ok {
		return nil, nil, nil, fmt.Errorf("site: provider %q does not offer %q", provider, apiClass)
	}
	factory, ok := adapter.Lookup(binding.Adapter)
	if !ok {
		return nil, nil, nil, fmt.Errorf("site: adapter %q not registered", binding.Adapter)
	}
	return factory, binding.Config, s.providers[provider], nil
}

// ProviderDiscovery describes one provider for the discovery endpoint.
type ProviderDiscovery struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	APIs        []string `json:"apis"`
}

// Discover enumerates providers and their offered api_classes, excluding
// internal classes.
func (s *Site) Discover() []ProviderDiscovery {
	result := make([]ProviderDiscovery, 0, len(s.cfg.Providers))
	for name, providerCfg := range s.cfg.Providers {
		apis := make([]string, 0, len(providerCfg.Interface))
		for apiClass := range providerCfg.Interface {
			if spec, ok := api.Lookup(apiClass); ok && spec.Internal {
				continue
			}
			apis = append(apis, apiClass)
		}
		sort.Strings(apis)
		result = append(result, ProviderDiscovery{
			Name:        name,
			Description: providerCfg.Description,
			APIs:        apis,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}
