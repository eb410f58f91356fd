package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultName             = "patternlab"
	defaultAddr             = "127.0.0.1:8080"
	defaultLogFormat        = "text"
	defaultLogLevel         = "info"
	defaultModel            = "gpt-4o-mini"
	defaultEmbeddingModel   = "text-embedding-ada-002"
	defaultMaxSteps         = 8
	defaultMaxToolTurns     = 10
	defaultCallTimeout      = 60 * time.Second
	defaultMaxContextTokens = 120000
	defaultTemperature      = 0.7
	defaultWeatherURL       = "https://api.openweathermap.org/data/2.5/weather"
	defaultWeatherTimeout   = 10 * time.Second
	defaultSearchBackend    = "static"
	defaultSearchResults    = 3
	defaultRAGStore         = "sqlite"
	defaultSQLitePath       = "patternlab.db"
	defaultTopK             = 3
	defaultChunkSize        = 1000
	defaultChunkOverlap     = 0
)

type Config struct {
	App       AppConfig                 `yaml:"app"`
	Gateways  map[string]GatewayConfig  `yaml:"gateways"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Agent     AgentConfig               `yaml:"agent"`
	Tools     ToolsConfig               `yaml:"tools"`
	RAG       RAGConfig                 `yaml:"rag"`
}

type AppConfig struct {
	Name       string `yaml:"name"`
	Addr       string `yaml:"addr"`
	LogFormat  string `yaml:"log_format"`
	LogLevel   string `yaml:"log_level"`
	LLMLogPath string `yaml:"llm_log_path"`
}

type GatewayConfig struct {
	Token   string `yaml:"token"`
	Enabled bool   `yaml:"enabled"`
}

type ProviderConfig struct {
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model,omitempty"`
	BaseURL        string `yaml:"base_url,omitempty"`
	Enabled        bool   `yaml:"enabled"`
}

// AgentConfig bounds the planner, executor and tool loop.
type AgentConfig struct {
	MaxSteps         int           `yaml:"max_steps"`
	MaxToolTurns     int           `yaml:"max_tool_turns"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
	MaxContextTokens int           `yaml:"max_context_tokens"`
	Temperature      float64       `yaml:"temperature"`
	ParallelTools    bool          `yaml:"parallel_tools"`
	PromptsDir       string        `yaml:"prompts_dir"`
}

type ToolsConfig struct {
	Weather WeatherConfig `yaml:"weather"`
	Search  SearchConfig  `yaml:"search"`
	Policy  PolicyConfig  `yaml:"policy"`
}

type WeatherConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type SearchConfig struct {
	Backend    string `yaml:"backend"` // static, duckduckgo
	MaxResults int    `yaml:"max_results"`
}

type PolicyConfig struct {
	DeniedTools        []string `yaml:"denied_tools"`
	DeniedArgumentKeys []string `yaml:"denied_argument_keys"`
	DeniedArguments    []string `yaml:"denied_arguments"`
}

type RAGConfig struct {
	Store        string         `yaml:"store"` // none, sqlite, pinecone
	SQLitePath   string         `yaml:"sqlite_path"`
	Pinecone     PineconeConfig `yaml:"pinecone"`
	TopK         int            `yaml:"top_k"`
	ChunkSize    int            `yaml:"chunk_size"`
	ChunkOverlap int            `yaml:"chunk_overlap"`
}

type PineconeConfig struct {
	Host      string `yaml:"host"`
	APIKey    string `yaml:"api_key"`
	Namespace string `yaml:"namespace"`
}

// Load reads a YAML (or JSON) config file, applies environment overrides and
// fills defaults. An empty path yields the defaults plus the environment.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if c.Providers == nil {
			c.Providers = make(map[string]ProviderConfig)
		}
		p, ok := c.Providers["openai"]
		if !ok {
			p.Enabled = len(c.Providers) == 0
		}
		p.APIKey = key
		c.Providers["openai"] = p
	}
	if key := os.Getenv("OPENWEATHER_API_KEY"); key != "" {
		c.Tools.Weather.APIKey = key
	}
	if key := os.Getenv("PINECONE_API_KEY"); key != "" {
		c.RAG.Pinecone.APIKey = key
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		if c.Gateways == nil {
			c.Gateways = make(map[string]GatewayConfig)
		}
		tg := c.Gateways["telegram"]
		tg.Token = token
		c.Gateways["telegram"] = tg
	}
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = defaultName
	}
	if c.App.Addr == "" {
		c.App.Addr = defaultAddr
	}
	if c.App.LogFormat == "" {
		c.App.LogFormat = defaultLogFormat
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = defaultLogLevel
	}
	for name, p := range c.Providers {
		if p.Model == "" {
			p.Model = defaultModel
		}
		if p.EmbeddingModel == "" {
			p.EmbeddingModel = defaultEmbeddingModel
		}
		c.Providers[name] = p
	}

	a := &c.Agent
	if a.MaxSteps <= 0 {
		a.MaxSteps = defaultMaxSteps
	}
	if a.MaxToolTurns <= 0 {
		a.MaxToolTurns = defaultMaxToolTurns
	}
	if a.CallTimeout <= 0 {
		a.CallTimeout = defaultCallTimeout
	}
	if a.MaxContextTokens <= 0 {
		a.MaxContextTokens = defaultMaxContextTokens
	}
	if a.Temperature <= 0 {
		a.Temperature = defaultTemperature
	}

	t := &c.Tools
	if t.Weather.BaseURL == "" {
		t.Weather.BaseURL = defaultWeatherURL
	}
	if t.Weather.Timeout <= 0 {
		t.Weather.Timeout = defaultWeatherTimeout
	}
	if t.Search.Backend == "" {
		t.Search.Backend = defaultSearchBackend
	}
	if t.Search.MaxResults <= 0 {
		t.Search.MaxResults = defaultSearchResults
	}

	r := &c.RAG
	if r.Store == "" {
		r.Store = defaultRAGStore
	}
	if r.SQLitePath == "" {
		r.SQLitePath = defaultSQLitePath
	}
	if r.TopK <= 0 {
		r.TopK = defaultTopK
	}
	if r.ChunkSize <= 0 {
		r.ChunkSize = defaultChunkSize
	}
	if r.ChunkOverlap < 0 {
		r.ChunkOverlap = defaultChunkOverlap
	}
}

// GetDefaultProvider returns the first enabled provider
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for _, name := range []string{"openai", "openrouter"} {
		if p, ok := c.Providers[name]; ok && p.Enabled {
			return name, p
		}
	}
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	tg, ok := c.Gateways["telegram"]
	if ok && tg.Enabled && tg.Token != "" {
		return tg, true
	}
	return GatewayConfig{}, false
}
