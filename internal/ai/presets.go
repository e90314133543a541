package ai

var presets = map[string][]ModelInfo{
	ProviderGemini: {
		{Name: "gemini-2.0-flash", ContextTokens: 1048576, InputPerK: 0.0001, OutputPerK: 0.0004},
		{Name: "gemini-2.0-flash-lite", ContextTokens: 1048576, InputPerK: 0.000075, OutputPerK: 0.0003},
		{Name: "gemini-1.5-pro", ContextTokens: 2097152, InputPerK: 0.00125, OutputPerK: 0.005},
	},
	ProviderOpenAI: {
		{Name: "gpt-4o-mini", ContextTokens: 128000, InputPerK: 0.00015, OutputPerK: 0.0006},
		{Name: "gpt-4o", ContextTokens: 128000, InputPerK: 0.0025, OutputPerK: 0.01},
		{Name: "gpt-4.1-mini", ContextTokens: 1047576, InputPerK: 0.0004, OutputPerK: 0.0016},
	},
	ProviderOpenRouter: {
		{Name: "google/gemini-2.0-flash-001", ContextTokens: 1048576, InputPerK: 0.0001, OutputPerK: 0.0004},
		{Name: "openai/gpt-4o-mini", ContextTokens: 128000, InputPerK: 0.00015, OutputPerK: 0.0006},
		{Name: "anthropic/claude-3.5-sonnet", ContextTokens: 200000, InputPerK: 0.003, OutputPerK: 0.015},
		{Name: "deepseek/deepseek-r1:free", ContextTokens: 128000},
	},
}

// PresetCatalog returns the built-in catalog for a provider.
func PresetCatalog(provider string) (map[string]ModelInfo, bool) {
	list, ok := presets[provider]
	if !ok {
		return nil, false
	}
	out := make(map[string]ModelInfo, len(list))
	for _, m := range list {
		m.Provider = provider
		out[m.Name] = m
	}
	return out, true
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderOpenRouter:
		return "google/gemini-2.0-flash-001"
	}
	return "gemini-2.0-flash"
}

// RecommendModel returns a model for a tier: cheap, balanced or
// high-context. An empty provider means gemini.
func RecommendModel(provider, tier string) (string, bool) {
	if provider == "" {
		provider = ProviderGemini
	}
	table := map[string]map[string]string{
		ProviderGemini: {
			"cheap":        "gemini-2.0-flash-lite",
			"balanced":     "gemini-2.0-flash",
			"high-context": "gemini-1.5-pro",
		},
		ProviderOpenAI: {
			"cheap":        "gpt-4o-mini",
			"balanced":     "gpt-4o",
			"high-context": "gpt-4.1-mini",
		},
		ProviderOpenRouter: {
			"cheap":        "deepseek/deepseek-r1:free",
			"balanced":     "google/gemini-2.0-flash-001",
			"high-context": "anthropic/claude-3.5-sonnet",
		},
	}
	name, ok := table[provider][tier]
	return name, ok
}
