package llm

import "context"

// hostedDefault holds the connection defaults of a known
// OpenAI-compatible service.
type hostedDefault struct {
	baseURL    string
	model      string
	pathPrefix string
}

// hostedDefaults lists the OpenAI-compatible services NewProvider knows by
// name. Gemini serves its compatibility layer without the /v1 prefix.
var hostedDefaults = map[string]hostedDefault{
	"ollama":     {baseURL: "http://localhost:11434", pathPrefix: "/v1"},
	"lmstudio":   {baseURL: "http://localhost:1234", pathPrefix: "/v1"},
	"openrouter": {baseURL: "https://openrouter.ai/api", pathPrefix: "/v1"},
	"groq":       {baseURL: "https://api.groq.com/openai", model: "llama-3.3-70b-versatile", pathPrefix: "/v1"},
	"xai":        {baseURL: "https://api.x.ai", pathPrefix: "/v1"},
	"gemini":     {baseURL: "https://generativelanguage.googleapis.com/v1beta/openai", pathPrefix: ""},
}

// hostedProvider talks to a named OpenAI-compatible service.
type hostedProvider struct {
	name string
	base openAICompatClient
}

func newHosted(name string, cfg Config) *hostedProvider {
	d := hostedDefaults[name]
	if cfg.BaseURL == "" {
		cfg.BaseURL = d.baseURL
	}
	if cfg.Model == "" {
		cfg.Model = d.model
	}
	return &hostedProvider{name: name, base: newOpenAICompatClientPrefix(cfg, d.pathPrefix)}
}

// Name returns the service identifier, e.g. "ollama".
func (p *hostedProvider) Name() string { return p.name }

func (p *hostedProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.base.chat(ctx, req)
}
