package unifiedllm

import "testing"

func TestGetModelInfo(t *testing.T) {
	info := GetModelInfo("gpt-4o-mini")
	if info == nil {
		t.Fatal("expected to find gpt-4o-mini")
	}
	if info.Provider != "openai" {
		t.Errorf("expected provider %q, got %q", "openai", info.Provider)
	}
	if !info.Fast {
		t.Error("expected gpt-4o-mini to be marked fast")
	}

	info = GetModelInfo("haiku")
	if info == nil || info.ID != "claude-3-5-haiku-latest" {
		t.Fatalf("expected alias lookup to find haiku, got %v", info)
	}

	if info := GetModelInfo("nonexistent-model"); info != nil {
		t.Errorf("expected nil for unknown model, got %v", info)
	}
}

func TestListModels(t *testing.T) {
	all := ListModels("")
	if len(all) != len(Models) {
		t.Errorf("expected %d models, got %d", len(Models), len(all))
	}

	for _, m := range ListModels("anthropic") {
		if m.Provider != "anthropic" {
			t.Errorf("expected provider anthropic, got %q", m.Provider)
		}
	}

	if got := ListModels("nobody"); len(got) != 0 {
		t.Errorf("expected no models for unknown provider, got %d", len(got))
	}
}

func TestGetLatestModel(t *testing.T) {
	if m := GetLatestModel("openai", ""); m == nil || m.ID != "gpt-4.1" {
		t.Errorf("expected gpt-4.1 as latest openai model, got %v", m)
	}
	if m := GetLatestModel("openai", "fast"); m == nil || m.ID != "gpt-4.1-mini" {
		t.Errorf("expected gpt-4.1-mini as fast openai model, got %v", m)
	}
	if m := GetLatestModel("ollama", "vision"); m == nil || m.ID != "llava" {
		t.Errorf("expected llava as ollama vision model, got %v", m)
	}
	if m := GetLatestModel("anthropic", "unknown-capability"); m != nil {
		t.Errorf("expected nil for unknown capability, got %v", m)
	}
}

func TestContextWindow(t *testing.T) {
	if got := ContextWindow("gpt-4o", 0); got != 128000 {
		t.Errorf("expected 128000, got %d", got)
	}
	if got := ContextWindow("unknown", 8192); got != 8192 {
		t.Errorf("expected fallback 8192, got %d", got)
	}
}
