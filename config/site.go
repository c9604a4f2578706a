package config

import (
	"fmt"
	"os"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// SiteConfig describes a whole execution site: its name and the provider
// table binding api_classes to adapter implementations. Loaded once at
// Executor start and immutable afterwards.
type SiteConfig struct {
	// Site is the name of this site, reported in status responses.
	Site string
	// Contact is an optional operator contact string.
	Contact string
	// HeartbeatInterval is the interval between heartbeat responses while a
	// request has live nodes.
	HeartbeatInterval time.Duration
	// RequestTTL bounds how long a request record lives in the broker after
	// creation.
	RequestTTL time.Duration
	// Providers maps provider name to its configuration.
	Providers map[string]ProviderConfig
}

// ProviderConfig configures one provider namespace.
type ProviderConfig struct {
	// Description is shown by the discovery endpoint.
	Description string
	// CacheConf is where this provider's adapters materialize large outputs.
	CacheConf *BlobConf
	// Interface maps api_class to the adapter implementing it.
	Interface map[string]AdapterBinding
}

// BlobConf describes a blob filesystem location for materialized artifacts.
type BlobConf struct {
	// Protocol selects the blob backend: "file" or "memory".
	Protocol string
	// BaseURL is the root path or bucket URL.
	BaseURL string
	// Options carries backend-specific settings.
	Options map[string]string
}

// AdapterBinding binds an api_class to a registered adapter implementation
// plus its static configuration.
type AdapterBinding struct {
	// Adapter is the registered adapter implementation name.
	Adapter string
	// Config carries adapter-specific static fields.
	Config map[string]any
}

// LoadSiteConfig reads and strictly parses the site YAML at path. The file
// is decoded with a plain YAML decoder: api_class keys contain dots and
// are case-sensitive, so they must survive verbatim.
func LoadSiteConfig(path string) (*SiteConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("site config %s: %w", path, err)
	}
	var settings map[string]any
	if err := yaml.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("site config %s: %w", path, err)
	}
	return ParseSiteConfig(settings)
}

// ParseSiteConfig builds a SiteConfig from a raw settings map, rejecting
// unknown keys at every level.
func ParseSiteConfig(raw map[string]any) (*SiteConfig, error) {
	cfg := &SiteConfig{
		HeartbeatInterval: 5 * time.Second,
		RequestTTL:        24 * time.Hour,
		Providers:         make(map[string]ProviderConfig),
	}

	for key, val := range raw {
		switch key {
		case "site":
			cfg.Site = asString(val)
		case "contact":
			cfg.Contact = asString(val)
		case "heartbeat_interval":
			d, err := asDuration(val)
			if err != nil {
				return nil, fmt.Errorf("site config: heartbeat_interval: %w", err)
			}
			cfg.HeartbeatInterval = d
		case "request_ttl":
			d, err := asDuration(val)
			if err != nil {
				return nil, fmt.Errorf("site config: request_ttl: %w", err)
			}
			cfg.RequestTTL = d
		case "providers":
			providers, ok := val.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("site config: providers must be a mapping")
			}
			for name, rawProvider := range providers {
				provider, err := parseProvider(name, rawProvider)
				if err != nil {
					return nil, err
				}
				cfg.Providers[name] = provider
			}
		default:
			return nil, fmt.Errorf("site config: unknown key %q", key)
		}
	}

	if cfg.Site == "" {
		return nil, fmt.Errorf("site config: site is required")
	}
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("site config: at least one provider is required")
	}
	return cfg, nil
}

func parseProvider(name string, raw any) (ProviderConfig, error) {
	var provider ProviderConfig
	fields, ok := raw.(map[string]any)
	if !ok {
		return provider, fmt.Errorf("site config: provider %q must be a mapping", name)
	}

	provider.Interface = make(map[string]AdapterBinding)
	for key, val := range fields {
		switch key {
		case "description":
			provider.Description = asString(val)
		case "cache_fsspec_conf":
			blob, err := parseBlobConf(name, val)
			if err != nil {
				return provider, err
			}
			provider.CacheConf = blob
		case "interface":
			iface, ok := val.(map[string]any)
			if !ok {
				return provider, fmt.Errorf("site config: provider %q interface must be a mapping", name)
			}
			for apiClass, rawBinding := range iface {
				binding, err := parseBinding(name, apiClass, rawBinding)
				if err != nil {
					return provider, err
				}
				provider.Interface[apiClass] = binding
			}
		default:
			return provider, fmt.Errorf("site config: provider %q: unknown key %q", name, key)
		}
	}

	if len(provider.Interface) == 0 {
		return provider, fmt.Errorf("site config: provider %q declares no interface", name)
	}
	return provider, nil
}

// parseBinding accepts either a bare adapter name or a mapping with an
// "adapter" key plus adapter-specific config fields.
func parseBinding(provider, apiClass string, raw any) (AdapterBinding, error) {
	switch val := raw.(type) {
	case string:
		return AdapterBinding{Adapter: val}, nil
	case map[string]any:
		adapterName, ok := val["adapter"].(string)
		if !ok || adapterName == "" {
			return AdapterBinding{}, fmt.Errorf(
				"site config: provider %q interface %q needs an adapter name", provider, apiClass)
		}
		adapterCfg := make(map[string]any, len(val)-1)
		for k, v := range val {
			if k != "adapter" {
				adapterCfg[k] = v
			}
		}
		return AdapterBinding{Adapter: adapterName, Config: adapterCfg}, nil
	default:
		return AdapterBinding{}, fmt.Errorf(
			"site config: provider %q interface %q must be a string or mapping", provider, apiClass)
	}
}

func parseBlobConf(provider string, raw any) (*BlobConf, error) {
	fields, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("site config: provider %q cache_fsspec_conf must be a mapping", provider)
	}
	blob := &BlobConf{Options: make(map[string]string)}
	for key, val := range fields {
		switch key {
		case "protocol":
			blob.Protocol = asString(val)
		case "base_url":
			blob.BaseURL = asString(val)
		case "storage_options":
			opts, ok := val.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("site config: provider %q storage_options must be a mapping", provider)
			}
			for k, v := range opts {
				blob.Options[k] = asString(v)
			}
		default:
			return nil, fmt.Errorf("site config: provider %q cache_fsspec_conf: unknown key %q", provider, key)
		}
	}
	if blob.Protocol == "" {
		return nil, fmt.Errorf("site config: provider %q cache_fsspec_conf needs a protocol", provider)
	}
	return blob, nil
}

func asString(val any) string {
	if s, ok := val.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", val)
}

func asDuration(val any) (time.Duration, error) {
	switch v := val.(type) {
	case string:
		return time.ParseDuration(v)
	case int:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("cannot parse %v (%T) as duration", val, val)
	}
}
