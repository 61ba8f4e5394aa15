// Package config handles discovery and parsing of the JSON
// configuration file, and the merge of CLI flag overrides onto the
// loaded values.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bookeating/novelcondenser-go/credential"
	"github.com/bookeating/novelcondenser-go/provider"
)

// CredentialJSON is the on-disk shape of one entry in gemini_api/openai_api.
type CredentialJSON struct {
	Key      string `json:"key"`
	Redirect string `json:"redirect_url,omitempty"`
	Model    string `json:"model,omitempty"`
	RPM      int    `json:"rpm,omitempty"`
}

// GenerationParamsJSON mirrors the on-disk llm_generation_params object.
type GenerationParamsJSON struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	MaxRetries  *int     `json:"max_retries,omitempty"`
	RetryDelay  *float64 `json:"retry_delay,omitempty"`
	Timeout     *struct {
		Official   *float64 `json:"official_api,omitempty"`
		ThirdParty *float64 `json:"third_party_api,omitempty"`
	} `json:"timeout,omitempty"`
}

// File is the top-level JSON document.
type File struct {
	GeminiAPI               []CredentialJSON     `json:"gemini_api,omitempty"`
	OpenAIAPI               []CredentialJSON     `json:"openai_api,omitempty"`
	MaxRPM                  int                  `json:"max_rpm,omitempty"`
	MinCondensationRatio    int                  `json:"min_condensation_ratio,omitempty"`
	MaxCondensationRatio    int                  `json:"max_condensation_ratio,omitempty"`
	TargetCondensationRatio int                  `json:"target_condensation_ratio,omitempty"`
	LLMGenerationParams     GenerationParamsJSON `json:"llm_generation_params,omitempty"`
	PromptTemplates         map[string]string    `json:"prompt_templates,omitempty"`
	CustomerPrompt          string               `json:"customer_prompt,omitempty"`
}

// Defaults returns the fallback values used when no config file is found.
func Defaults() File {
	return File{
		MaxRPM:                  20,
		MinCondensationRatio:    30,
		MaxCondensationRatio:    50,
		TargetCondensationRatio: 40,
	}
}

// DiscoveryPaths returns the ordered list of candidate config file
// paths: executable directory, project root (two levels up from the
// executable, mirroring a typical cmd/<name> layout), the working
// directory, then a conventional hard-coded fallback.
func DiscoveryPaths(filename string) []string {
	var paths []string

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths, filepath.Join(exeDir, filename))
		paths = append(paths, filepath.Join(exeDir, "..", "..", filename))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, filename))
	}
	paths = append(paths, filepath.Join(string(filepath.Separator), "etc", "novelcondenser", filename))

	return paths
}

// Discover walks DiscoveryPaths and returns the first one that exists.
func Discover(filename string) (string, bool) {
	for _, p := range DiscoveryPaths(filename) {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}

// Load reads and parses path, starting from Defaults() so unset keys
// keep their documented fallback.
func Load(path string) (File, error) {
	f := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if f.MaxRPM <= 0 {
		f.MaxRPM = 20
	}
	return f, nil
}

// GeminiConfigs converts the parsed gemini_api array into credential.Config values.
func (f File) GeminiConfigs() []credential.Config { return toCredentialConfigs(f.GeminiAPI) }

// OpenAIConfigs converts the parsed openai_api array into credential.Config values.
func (f File) OpenAIConfigs() []credential.Config { return toCredentialConfigs(f.OpenAIAPI) }

func toCredentialConfigs(in []CredentialJSON) []credential.Config {
	out := make([]credential.Config, 0, len(in))
	for _, c := range in {
		out = append(out, credential.Config{Key: c.Key, BaseURL: c.Redirect, Model: c.Model, RPM: c.RPM})
	}
	return out
}

// GenerationParams merges llm_generation_params onto the package's
// defaults.
func (f File) GenerationParams() provider.GenerationParams {
	p := provider.DefaultGenerationParams()
	g := f.LLMGenerationParams
	if g.Temperature != nil {
		p.Temperature = *g.Temperature
	}
	if g.TopP != nil {
		p.TopP = *g.TopP
	}
	if g.TopK != nil {
		p.TopK = *g.TopK
	}
	if g.MaxTokens != nil {
		p.MaxTokens = *g.MaxTokens
	}
	if g.MaxRetries != nil {
		p.MaxRetries = *g.MaxRetries
	}
	if g.RetryDelay != nil {
		p.RetryDelay = time.Duration(*g.RetryDelay * float64(time.Second))
	}
	if g.Timeout != nil {
		if g.Timeout.Official != nil {
			p.TimeoutOfficial = time.Duration(*g.Timeout.Official * float64(time.Second))
		}
		if g.Timeout.ThirdParty != nil {
			p.TimeoutThirdParty = time.Duration(*g.Timeout.ThirdParty * float64(time.Second))
		}
	}
	return p
}

// Overrides carries the CLI flag values that can override the loaded file.
type Overrides struct {
	GeminiKey string
	OpenAIKey string
}

// ApplyOverrides replaces only the family named by a non-empty override
// with a single-credential pool; the other family's pool, loaded from
// the file, is left untouched.
func (f File) ApplyOverrides(o Overrides) File {
	if o.GeminiKey != "" {
		f.GeminiAPI = []CredentialJSON{{Key: o.GeminiKey}}
	}
	if o.OpenAIKey != "" {
		f.OpenAIAPI = []CredentialJSON{{Key: o.OpenAIKey}}
	}
	return f
}

// Template is the skeleton written by --create-config.
func Template() File {
	return File{
		GeminiAPI:               []CredentialJSON{{Key: ""}},
		OpenAIAPI:               []CredentialJSON{},
		MaxRPM:                  20,
		MinCondensationRatio:    30,
		MaxCondensationRatio:    50,
		TargetCondensationRatio: 40,
		PromptTemplates:         map[string]string{},
	}
}

// WriteTemplate writes Template() as indented JSON to path, failing if
// a file already exists there.
func WriteTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s already exists, refusing to overwrite", path)
	}
	raw, err := json.MarshalIndent(Template(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
