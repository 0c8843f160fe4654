package longdoc

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate keeps LoadConfig away from any real config file or environment.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "")
	return dir
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	if cfg.QA.ContextSize != 2048 || cfg.QA.MaxGenerated != 600 {
		t.Errorf("qa = %+v, want 2048/600", cfg.QA)
	}
	if cfg.Summary.ContextSize != 1845 || cfg.Summary.MaxGenerated != 300 {
		t.Errorf("summary = %+v, want 1845/300", cfg.Summary)
	}
	if cfg.Concurrency != 1 {
		t.Errorf("concurrency = %d, want 1", cfg.Concurrency)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	isolate(t)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := DefaultConfig()
	if cfg.Chat != want.Chat {
		t.Errorf("chat = %+v, want %+v", cfg.Chat, want.Chat)
	}
	if cfg.SummaryFinalize != want.SummaryFinalize {
		t.Errorf("summary_finalize = %+v, want %+v", cfg.SummaryFinalize, want.SummaryFinalize)
	}
	if cfg.GenerationTimeout != want.GenerationTimeout {
		t.Errorf("generation_timeout = %v, want %v", cfg.GenerationTimeout, want.GenerationTimeout)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	path := filepath.Join(dir, "cfg.yaml")
	body := `
chat:
  provider: openai
  model: gpt-4o-mini
qa:
  context_size: 4096
  max_generated: 800
concurrency: 4
generation_timeout: 45s
disable_store: true
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Chat.Provider != "openai" || cfg.Chat.Model != "gpt-4o-mini" {
		t.Errorf("chat = %+v", cfg.Chat)
	}
	if cfg.Chat.APIKey != "sk-test" {
		t.Errorf("api key = %q, want OPENAI_API_KEY fallback", cfg.Chat.APIKey)
	}
	if cfg.QA.ContextSize != 4096 || cfg.QA.MaxGenerated != 800 {
		t.Errorf("qa = %+v, want 4096/800", cfg.QA)
	}
	if cfg.QAFinalize.ContextSize != 2048 {
		t.Errorf("qa_finalize.context_size = %d, want default 2048", cfg.QAFinalize.ContextSize)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("concurrency = %d, want 4", cfg.Concurrency)
	}
	if cfg.GenerationTimeout != 45*time.Second {
		t.Errorf("generation_timeout = %v, want 45s", cfg.GenerationTimeout)
	}
	if !cfg.DisableStore {
		t.Error("disable_store not applied")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("LONGDOC_CHAT_MODEL", "llama-3")
	t.Setenv("LONGDOC_CHAT_BASE_URL", "http://gpu:9000/v1")
	t.Setenv("LONGDOC_QA_CONTEXT_SIZE", "3000")
	t.Setenv("LONGDOC_TIMEOUT_RETRIES", "5")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Chat.Model != "llama-3" {
		t.Errorf("chat.model = %q, want %q", cfg.Chat.Model, "llama-3")
	}
	if cfg.Chat.BaseURL != "http://gpu:9000/v1" {
		t.Errorf("chat.base_url = %q", cfg.Chat.BaseURL)
	}
	if cfg.QA.ContextSize != 3000 {
		t.Errorf("qa.context_size = %d, want 3000", cfg.QA.ContextSize)
	}
	if cfg.TimeoutRetries != 5 {
		t.Errorf("timeout_retries = %d, want 5", cfg.TimeoutRetries)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	dir := isolate(t)
	if _, err := LoadConfig(filepath.Join(dir, "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	isolate(t)
	t.Setenv("LONGDOC_SUMMARY_MAX_GENERATED", "5000")

	_, err := LoadConfig("")
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("error = %v, want ErrInvalidConfig", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero context", func(c *Config) { c.QA.ContextSize = 0 }},
		{"zero generation", func(c *Config) { c.QAFinalize.MaxGenerated = 0 }},
		{"generation fills context", func(c *Config) { c.Summary.MaxGenerated = c.Summary.ContextSize }},
		{"negative concurrency", func(c *Config) { c.Concurrency = -1 }},
		{"negative retries", func(c *Config) { c.TimeoutRetries = -1 }},
		{"negative depth", func(c *Config) { c.MaxDepth = -1 }},
		{"unknown tokenizer", func(c *Config) { c.Tokenizer.Mode = "tiktoken" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestResolverConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Concurrency = 3
	cfg.MaxDepth = 7
	cfg.Chat.Temperature = 0.2

	rc := cfg.resolverConfig()
	if rc.Concurrency != 3 || rc.MaxDepth != 7 || rc.Temperature != 0.2 {
		t.Errorf("resolverConfig() = %+v", rc)
	}
	if rc.QA != cfg.QA || rc.SummaryFinalize != cfg.SummaryFinalize {
		t.Error("phase sizes not carried over")
	}
}

func TestResolveDBPath(t *testing.T) {
	cfg := Config{DBPath: "/data/jobs.db"}
	if got := cfg.resolveDBPath(); got != "/data/jobs.db" {
		t.Errorf("resolveDBPath() = %q, want explicit path", got)
	}

	cfg = Config{DBName: "test", StorageDir: "local"}
	if got := cfg.resolveDBPath(); got != "test.db" {
		t.Errorf("resolveDBPath() = %q, want %q", got, "test.db")
	}

	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg = Config{}
	if got, want := cfg.resolveDBPath(), filepath.Join(home, ".longdoc", "longdoc.db"); got != want {
		t.Errorf("resolveDBPath() = %q, want %q", got, want)
	}
}
