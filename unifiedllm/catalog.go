package unifiedllm

// ModelInfo describes a known model in the catalog.
type ModelInfo struct {
	ID             string   `json:"id"`
	Provider       string   `json:"provider"`
	DisplayName    string   `json:"display_name"`
	ContextWindow  int      `json:"context_window"`
	SupportsVision bool     `json:"supports_vision"`
	Fast           bool     `json:"fast"`
	Aliases        []string `json:"aliases,omitempty"`
}

// Models is the built-in model catalog. Within a provider, entries are
// ordered best first.
var Models = []ModelInfo{
	// OpenAI
	{ID: "gpt-4.1", Provider: "openai", DisplayName: "GPT-4.1", ContextWindow: 1047576, SupportsVision: true},
	{ID: "gpt-4o", Provider: "openai", DisplayName: "GPT-4o", ContextWindow: 128000, SupportsVision: true},
	{ID: "gpt-4.1-mini", Provider: "openai", DisplayName: "GPT-4.1 Mini", ContextWindow: 1047576, SupportsVision: true, Fast: true},
	{ID: "gpt-4o-mini", Provider: "openai", DisplayName: "GPT-4o Mini", ContextWindow: 128000, SupportsVision: true, Fast: true, Aliases: []string{"mini"}},

	// Anthropic
	{ID: "claude-sonnet-4-5", Provider: "anthropic", DisplayName: "Claude Sonnet 4.5", ContextWindow: 200000, SupportsVision: true, Aliases: []string{"sonnet"}},
	{ID: "claude-3-5-haiku-latest", Provider: "anthropic", DisplayName: "Claude 3.5 Haiku", ContextWindow: 200000, Fast: true, Aliases: []string{"haiku"}},

	// Ollama
	{ID: "llama3.1", Provider: "ollama", DisplayName: "Llama 3.1", ContextWindow: 131072},
	{ID: "llava", Provider: "ollama", DisplayName: "LLaVA", ContextWindow: 4096, SupportsVision: true},
	{ID: "llama3.2", Provider: "ollama", DisplayName: "Llama 3.2", ContextWindow: 131072, Fast: true},
}

// GetModelInfo returns the catalog entry for a model, or nil if unknown.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == modelID {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == modelID {
				return &Models[i]
			}
		}
	}
	return nil
}

// ListModels returns all known models, optionally filtered by provider.
func ListModels(provider string) []ModelInfo {
	if provider == "" {
		result := make([]ModelInfo, len(Models))
		copy(result, Models)
		return result
	}
	var result []ModelInfo
	for _, m := range Models {
		if m.Provider == provider {
			result = append(result, m)
		}
	}
	return result
}

// GetLatestModel returns the first model for a provider, optionally filtered
// by capability ("vision" or "fast").
func GetLatestModel(provider string, capability string) *ModelInfo {
	for i := range Models {
		if Models[i].Provider != provider {
			continue
		}
		switch capability {
		case "":
			return &Models[i]
		case "vision":
			if Models[i].SupportsVision {
				return &Models[i]
			}
		case "fast":
			if Models[i].Fast {
				return &Models[i]
			}
		}
	}
	return nil
}

// ContextWindow returns the context window of a known model, or fallback.
func ContextWindow(modelID string, fallback int) int {
	if info := GetModelInfo(modelID); info != nil && info.ContextWindow > 0 {
		return info.ContextWindow
	}
	return fallback
}
