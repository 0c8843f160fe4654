package longdoc

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bbiangul/longdoc/llm"
	"github.com/bbiangul/longdoc/resolver"
	"github.com/bbiangul/longdoc/store"
)

// Config holds all configuration for the longdoc engine.
type Config struct {
	// DBPath is the full path to the SQLite job log.
	// If empty, defaults to ~/.longdoc/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path" mapstructure:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	DBName string `json:"db_name" yaml:"db_name" mapstructure:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set: "home" (default) or "local".
	StorageDir string `json:"storage_dir" yaml:"storage_dir" mapstructure:"storage_dir"`

	// DisableStore turns off the job log and the result cache.
	DisableStore bool `json:"disable_store" yaml:"disable_store" mapstructure:"disable_store"`

	// Cache serves repeated requests from the job log. A cached result is
	// reused only for the same kind, prompt, content, model and settings
	// fingerprint.
	Cache bool `json:"cache" yaml:"cache" mapstructure:"cache"`

	Chat      LLMConfig       `json:"chat" yaml:"chat" mapstructure:"chat"`
	Tokenizer TokenizerConfig `json:"tokenizer" yaml:"tokenizer" mapstructure:"tokenizer"`

	// Phase sizes, in tokens.
	QA              resolver.Phase `json:"qa" yaml:"qa" mapstructure:"qa"`
	QAFinalize      resolver.Phase `json:"qa_finalize" yaml:"qa_finalize" mapstructure:"qa_finalize"`
	Summary         resolver.Phase `json:"summary" yaml:"summary" mapstructure:"summary"`
	SummaryFinalize resolver.Phase `json:"summary_finalize" yaml:"summary_finalize" mapstructure:"summary_finalize"`

	Concurrency       int           `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`
	GenerationTimeout time.Duration `json:"generation_timeout" yaml:"generation_timeout" mapstructure:"generation_timeout"`
	TimeoutRetries    int           `json:"timeout_retries" yaml:"timeout_retries" mapstructure:"timeout_retries"`
	MaxDepth          int           `json:"max_depth" yaml:"max_depth" mapstructure:"max_depth"` // 0 derives the cap from input size

	// Reported by the server status endpoint.
	Environment string `json:"environment" yaml:"environment" mapstructure:"environment"`
	ProjectName string `json:"project_name" yaml:"project_name" mapstructure:"project_name"`
}

// LLMConfig configures the chat model endpoint.
type LLMConfig struct {
	Provider    string        `json:"provider" yaml:"provider" mapstructure:"provider"` // ollama, lmstudio, openrouter, openai, groq, xai, gemini, custom
	Model       string        `json:"model" yaml:"model" mapstructure:"model"`
	BaseURL     string        `json:"base_url" yaml:"base_url" mapstructure:"base_url"`
	APIKey      string        `json:"api_key" yaml:"api_key" mapstructure:"api_key"`
	Temperature float64       `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	MaxRetries  int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// TokenizerConfig selects how tokens are counted.
type TokenizerConfig struct {
	Mode    string `json:"mode" yaml:"mode" mapstructure:"mode"`             // estimate or remote
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"` // remote only; defaults to the chat base URL
}

// DefaultConfig returns a Config for a local llama.cpp-compatible server
// with the reference phase sizes.
func DefaultConfig() Config {
	rc := resolver.DefaultConfig()
	return Config{
		DBName:     "longdoc",
		StorageDir: "home",
		Cache:      true,
		Chat: LLMConfig{
			Provider: "custom",
			Model:    "local",
			BaseURL:  "http://localhost:8080",
			Timeout:  rc.Timeout,
		},
		Tokenizer:         TokenizerConfig{Mode: "estimate"},
		QA:                rc.QA,
		QAFinalize:        rc.QAFinalize,
		Summary:           rc.Summary,
		SummaryFinalize:   rc.SummaryFinalize,
		Concurrency:       rc.Concurrency,
		GenerationTimeout: rc.Timeout,
		TimeoutRetries:    rc.TimeoutRetries,
		Environment:       "development",
		ProjectName:       "longdoc",
	}
}

// LoadConfig builds a Config from defaults, an optional YAML or JSON file
// and LONGDOC_* environment variables, in increasing precedence.
// Nested keys use underscores: LONGDOC_CHAT_BASE_URL sets chat.base_url.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("LONGDOC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("longdoc")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.longdoc")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Fallback: well-known provider env vars for API keys.
	if cfg.Chat.APIKey == "" {
		switch cfg.Chat.Provider {
		case "openai":
			cfg.Chat.APIKey = os.Getenv("OPENAI_API_KEY")
		case "groq":
			cfg.Chat.APIKey = os.Getenv("GROQ_API_KEY")
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every leaf key so environment overrides apply
// even when no config file mentions them.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("db_name", d.DBName)
	v.SetDefault("storage_dir", d.StorageDir)
	v.SetDefault("disable_store", d.DisableStore)
	v.SetDefault("cache", d.Cache)

	v.SetDefault("chat.provider", d.Chat.Provider)
	v.SetDefault("chat.model", d.Chat.Model)
	v.SetDefault("chat.base_url", d.Chat.BaseURL)
	v.SetDefault("chat.api_key", d.Chat.APIKey)
	v.SetDefault("chat.temperature", d.Chat.Temperature)
	v.SetDefault("chat.timeout", d.Chat.Timeout)
	v.SetDefault("chat.max_retries", d.Chat.MaxRetries)

	v.SetDefault("tokenizer.mode", d.Tokenizer.Mode)
	v.SetDefault("tokenizer.base_url", d.Tokenizer.BaseURL)

	phases := map[string]resolver.Phase{
		"qa":               d.QA,
		"qa_finalize":      d.QAFinalize,
		"summary":          d.Summary,
		"summary_finalize": d.SummaryFinalize,
	}
	for name, p := range phases {
		v.SetDefault(name+".context_size", p.ContextSize)
		v.SetDefault(name+".max_generated", p.MaxGenerated)
	}

	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("generation_timeout", d.GenerationTimeout)
	v.SetDefault("timeout_retries", d.TimeoutRetries)
	v.SetDefault("max_depth", d.MaxDepth)
	v.SetDefault("environment", d.Environment)
	v.SetDefault("project_name", d.ProjectName)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	phases := []struct {
		name string
		p    resolver.Phase
	}{
		{"qa", c.QA},
		{"qa_finalize", c.QAFinalize},
		{"summary", c.Summary},
		{"summary_finalize", c.SummaryFinalize},
	}
	for _, ph := range phases {
		if ph.p.ContextSize <= 0 {
			return fmt.Errorf("%w: %s.context_size must be positive, got %d", ErrInvalidConfig, ph.name, ph.p.ContextSize)
		}
		if ph.p.MaxGenerated <= 0 {
			return fmt.Errorf("%w: %s.max_generated must be positive, got %d", ErrInvalidConfig, ph.name, ph.p.MaxGenerated)
		}
		if ph.p.MaxGenerated >= ph.p.ContextSize {
			return fmt.Errorf("%w: %s.max_generated %d leaves no room in context %d",
				ErrInvalidConfig, ph.name, ph.p.MaxGenerated, ph.p.ContextSize)
		}
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("%w: concurrency must not be negative", ErrInvalidConfig)
	}
	if c.TimeoutRetries < 0 {
		return fmt.Errorf("%w: timeout_retries must not be negative", ErrInvalidConfig)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("%w: max_depth must not be negative", ErrInvalidConfig)
	}
	switch c.Tokenizer.Mode {
	case "", "estimate", "remote":
	default:
		return fmt.Errorf("%w: unknown tokenizer mode %q", ErrInvalidConfig, c.Tokenizer.Mode)
	}
	return nil
}

// resolverConfig maps engine settings onto the resolver.
func (c Config) resolverConfig() resolver.Config {
	rc := resolver.DefaultConfig()
	rc.QA = c.QA
	rc.QAFinalize = c.QAFinalize
	rc.Summary = c.Summary
	rc.SummaryFinalize = c.SummaryFinalize
	rc.Concurrency = c.Concurrency
	rc.Timeout = c.GenerationTimeout
	rc.TimeoutRetries = c.TimeoutRetries
	rc.MaxDepth = c.MaxDepth
	rc.Temperature = c.Chat.Temperature
	return rc
}

// settingsFingerprint hashes the settings that shape a generated result.
func (c Config) settingsFingerprint() string {
	data, _ := json.Marshal(struct {
		Provider        string         `json:"provider"`
		BaseURL         string         `json:"base_url"`
		Temperature     float64        `json:"temperature"`
		Tokenizer       string         `json:"tokenizer"`
		QA              resolver.Phase `json:"qa"`
		QAFinalize      resolver.Phase `json:"qa_finalize"`
		Summary         resolver.Phase `json:"summary"`
		SummaryFinalize resolver.Phase `json:"summary_finalize"`
	}{
		Provider:        c.Chat.Provider,
		BaseURL:         c.Chat.BaseURL,
		Temperature:     c.Chat.Temperature,
		Tokenizer:       c.Tokenizer.Mode,
		QA:              c.QA,
		QAFinalize:      c.QAFinalize,
		Summary:         c.Summary,
		SummaryFinalize: c.SummaryFinalize,
	})
	return store.ContentHash(string(data))[:16]
}

func (c LLMConfig) providerConfig() llm.Config {
	return llm.Config{
		Provider:    c.Provider,
		Model:       c.Model,
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey,
		Temperature: c.Temperature,
		Timeout:     c.Timeout,
		MaxRetries:  c.MaxRetries,
	}
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "longdoc"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db"
		}
		return filepath.Join(home, ".longdoc", name+".db")
	}
}
