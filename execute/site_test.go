package execute_test

import (
	"testing"

	"github.com/nimbusworks/dfm/config"
	"github.com/nimbusworks/dfm/execute"
)

func siteSettings() map[string]any {
	return map[string]any{
		"site": "local",
		"providers": map[string]any{
			"dfm": map[string]any{
				"description": "built-ins",
				"interface": map[string]any{
					"dfm.api.dfm.Constant": "constant",
					"dfm.api.dfm.GreetMe": map[string]any{
						"adapter":  "greetme",
						"greeting": "Ahoy",
					},
				},
			},
		},
	}
}

func buildSite(t *testing.T, settings map[string]any) (*execute.Site, error) {
	t.Helper()
	siteCfg, err := config.ParseSiteConfig(settings)
	if err != nil {
		t.Fatal(err)
	}
	return execute.NewSite(siteCfg)
}

func TestNewSiteResolvesBindings(t *testing.T) {
	site, err := buildSite(t, siteSettings())
	if err != nil {
		t.Fatal(err)
	}

	factory, cfg, provider, err := site.Resolve("dfm", "dfm.api.dfm.GreetMe")
	if err != nil {
		t.Fatal(err)
	}
	if factory == nil {
		t.Error("expected a factory")
	}
	if cfg["greeting"] != "Ahoy" {
		t.Errorf("unexpected adapter config %v", cfg)
	}
	if provider.Name != "dfm" {
		t.Errorf("unexpected provider %q", provider.Name)
	}

	if _, _, _, err := site.Resolve("dfm", "dfm.api.dfm.Zip2"); err == nil {
		t.Error("expected error for unbound api_class")
	}
	if _, _, _, err := site.Resolve("esri", "dfm.api.dfm.GreetMe"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewSiteRejectsUnknownAdapter(t *testing.T) {
	settings := siteSettings()
	iface := settings["providers"].(map[string]any)["dfm"].(map[string]any)["interface"].(map[string]any)
	iface["dfm.api.dfm.Zip2"] = "zipper-3000"

	if _, err := buildSite(t, settings); err == nil {
		t.Error("expected error for unregistered adapter name")
	}
}

func TestNewSiteRejectsUnknownAPIClass(t *testing.T) {
	settings := siteSettings()
	iface := settings["providers"].(map[string]any)["dfm"].(map[string]any)["interface"].(map[string]any)
	iface["dfm.api.dfm.Nonsense"] = "constant"

	if _, err := buildSite(t, settings); err == nil {
		t.Error("expected error for unknown api_class")
	}
}

func TestDiscoverHidesInternalClasses(t *testing.T) {
	settings := siteSettings()
	iface := settings["providers"].(map[string]any)["dfm"].(map[string]any)["interface"].(map[string]any)
	iface["dfm.api.dfm.PushResponse"] = "pushresponse"

	site, err := buildSite(t, settings)
	if err != nil {
		t.Fatal(err)
	}

	discovery := site.Discover()
	if len(discovery) != 1 {
		t.Fatalf("expected one provider, got %d", len(discovery))
	}
	for _, apiClass := range discovery[0].APIs {
		if apiClass == "dfm.api.dfm.PushResponse" {
			t.Error("internal classes must not be discoverable")
		}
	}
	if len(discovery[0].APIs) != 2 {
		t.Errorf("unexpected apis %v", discovery[0].APIs)
	}
}
