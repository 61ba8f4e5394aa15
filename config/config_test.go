package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MergesOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	doc := `{
		"gemini_api": [{"key": "g1", "rpm": 10}],
		"max_rpm": 40,
		"llm_generation_params": {"temperature": 0.5, "timeout": {"official_api": 90}}
	}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.MaxRPM != 40 {
		t.Fatalf("max_rpm = %d, want 40", f.MaxRPM)
	}
	if f.MinCondensationRatio != 30 {
		t.Fatalf("min_condensation_ratio default lost, got %d", f.MinCondensationRatio)
	}
	creds := f.GeminiConfigs()
	if len(creds) != 1 || creds[0].Key != "g1" || creds[0].RPM != 10 {
		t.Fatalf("gemini configs = %+v", creds)
	}

	params := f.GenerationParams()
	if params.Temperature != 0.5 {
		t.Fatalf("temperature = %v, want 0.5", params.Temperature)
	}
	if params.TimeoutOfficial.Seconds() != 90 {
		t.Fatalf("timeout official = %v, want 90s", params.TimeoutOfficial)
	}
	// Untouched fields keep the documented defaults.
	if params.TopK != 40 {
		t.Fatalf("top_k = %v, want default 40", params.TopK)
	}
}

func TestApplyOverrides_DualKeyPreservesOtherFamily(t *testing.T) {
	f := File{
		GeminiAPI: []CredentialJSON{{Key: "from-config"}},
		OpenAIAPI: []CredentialJSON{{Key: "also-from-config"}},
	}
	out := f.ApplyOverrides(Overrides{GeminiKey: "override"})

	if len(out.GeminiAPI) != 1 || out.GeminiAPI[0].Key != "override" {
		t.Fatalf("gemini override not applied: %+v", out.GeminiAPI)
	}
	if len(out.OpenAIAPI) != 1 || out.OpenAIAPI[0].Key != "also-from-config" {
		t.Fatalf("openai pool should be untouched: %+v", out.OpenAIAPI)
	}
}

func TestDiscover_FindsWorkingDirectoryFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "novelcondenser.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	restore := chdir(t, dir)
	defer restore()

	found, ok := Discover("novelcondenser.json")
	if !ok {
		t.Fatal("expected to discover the config file in the working directory")
	}
	if filepath.Base(found) != "novelcondenser.json" {
		t.Fatalf("found = %s", found)
	}
}

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	return func() { os.Chdir(wd) }
}

func TestWriteTemplate_RefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "novelcondenser.json")

	if err := WriteTemplate(path); err != nil {
		t.Fatalf("WriteTemplate: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read written template: %v", err)
	}
	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("template is not valid JSON: %v", err)
	}

	if err := WriteTemplate(path); err == nil {
		t.Fatal("expected WriteTemplate to refuse an existing path")
	}
}
