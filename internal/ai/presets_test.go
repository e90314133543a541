package ai

import "testing"

func TestPresetCatalogGemini(t *testing.T) {
	m, ok := PresetCatalog("gemini")
	if !ok || len(m) == 0 {
		t.Fatalf("expected gemini preset to be available")
	}
	mi, exists := m["gemini-2.0-flash"]
	if !exists {
		t.Fatalf("expected gemini-2.0-flash in gemini preset")
	}
	if mi.Provider != "gemini" {
		t.Fatalf("provider not set: %+v", mi)
	}
	if _, ok := PresetCatalog("ollama"); ok {
		t.Fatalf("local providers are not supported")
	}
}

func TestRecommendModel(t *testing.T) {
	if name, ok := RecommendModel("", "balanced"); !ok || name != "gemini-2.0-flash" {
		t.Fatalf("unexpected default recommendation: %s", name)
	}
	if name, ok := RecommendModel("openrouter", "cheap"); !ok || name != "deepseek/deepseek-r1:free" {
		t.Fatalf("unexpected recommendation for openrouter/cheap: %s", name)
	}
	if name, ok := RecommendModel("openai", "balanced"); !ok || name != "gpt-4o" {
		t.Fatalf("unexpected recommendation for openai/balanced: %s", name)
	}
	if _, ok := RecommendModel("gemini", "unknown"); ok {
		t.Fatalf("expected unknown tier to be false")
	}
}

func TestCatalogMergeAndEstimate(t *testing.T) {
	saved := Catalog()
	t.Cleanup(func() { ApplyCatalog(saved, false) })

	ApplyCatalog(map[string]ModelInfo{"custom": {Name: "custom", InputPerK: 1, OutputPerK: 2}}, true)
	if _, ok := LookupModel("gemini-2.0-flash"); !ok {
		t.Fatalf("merge dropped built-in entries")
	}
	cost, ok := EstimateCostUSD("custom", 1000, 500)
	if !ok || cost != 2 {
		t.Fatalf("unexpected cost %v ok=%v", cost, ok)
	}

	ApplyCatalog(map[string]ModelInfo{"only": {Name: "only"}}, false)
	if _, ok := LookupModel("gemini-2.0-flash"); ok {
		t.Fatalf("replace kept old entries")
	}
}
