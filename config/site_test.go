package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validSiteSettings() map[string]any {
	return map[string]any{
		"site":               "local",
		"heartbeat_interval": "5s",
		"providers": map[string]any{
			"dfm": map[string]any{
				"description": "built-in functions",
				"interface": map[string]any{
					"dfm.api.dfm.Constant": "constant",
					"dfm.api.dfm.GreetMe": map[string]any{
						"adapter":  "greetme",
						"greeting": "Hello",
					},
				},
			},
		},
	}
}

func TestParseSiteConfig(t *testing.T) {
	cfg, err := ParseSiteConfig(validSiteSettings())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Site != "local" {
		t.Errorf("expected site local, got %q", cfg.Site)
	}
	if cfg.HeartbeatInterval != 5*time.Second {
		t.Errorf("unexpected heartbeat interval %v", cfg.HeartbeatInterval)
	}
	if cfg.RequestTTL != 24*time.Hour {
		t.Errorf("expected default request_ttl, got %v", cfg.RequestTTL)
	}

	provider, ok := cfg.Providers["dfm"]
	if !ok {
		t.Fatal("expected dfm provider")
	}
	binding := provider.Interface["dfm.api.dfm.GreetMe"]
	if binding.Adapter != "greetme" {
		t.Errorf("unexpected adapter %q", binding.Adapter)
	}
	if binding.Config["greeting"] != "Hello" {
		t.Errorf("unexpected adapter config %v", binding.Config)
	}
	if cfg.Providers["dfm"].Interface["dfm.api.dfm.Constant"].Adapter != "constant" {
		t.Error("string bindings must resolve to the adapter name")
	}
}

func TestParseSiteConfigUnknownKey(t *testing.T) {
	settings := validSiteSettings()
	settings["heartbeet_interval"] = "5s"
	if _, err := ParseSiteConfig(settings); err == nil {
		t.Error("expected error for unknown top-level key")
	}

	settings = validSiteSettings()
	settings["providers"].(map[string]any)["dfm"].(map[string]any)["colour"] = "blue"
	if _, err := ParseSiteConfig(settings); err == nil {
		t.Error("expected error for unknown provider key")
	}
}

func TestParseSiteConfigMissingSite(t *testing.T) {
	settings := validSiteSettings()
	delete(settings, "site")
	if _, err := ParseSiteConfig(settings); err == nil {
		t.Error("expected error for missing site name")
	}
}

func TestParseSiteConfigEmptyInterface(t *testing.T) {
	settings := validSiteSettings()
	settings["providers"].(map[string]any)["dfm"].(map[string]any)["interface"] = map[string]any{}
	if _, err := ParseSiteConfig(settings); err == nil {
		t.Error("expected error for provider with no interface")
	}
}

func TestLoadSiteConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "site.yml")
	yaml := `site: local
heartbeat_interval: 2s
providers:
  dfm:
    description: built-ins
    cache_fsspec_conf:
      protocol: file
      base_url: /tmp/dfm-cache
    interface:
      dfm.api.dfm.Constant: constant
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadSiteConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HeartbeatInterval != 2*time.Second {
		t.Errorf("unexpected interval %v", cfg.HeartbeatInterval)
	}
	blob := cfg.Providers["dfm"].CacheConf
	if blob == nil || blob.Protocol != "file" || blob.BaseURL != "/tmp/dfm-cache" {
		t.Errorf("unexpected blob conf %+v", blob)
	}
}
