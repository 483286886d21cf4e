package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server          ServerConfig              `json:"server"`
	Database        DatabaseConfig            `json:"database"`
	Retrieval       RetrievalConfig           `json:"retrieval"`
	Embeddings      EmbeddingsConfig          `json:"embeddings"`
	Providers       map[string]ProviderConfig `json:"providers"`
	DefaultProvider string                    `json:"default_provider"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// Heartbeat is the keepalive cadence on long-lived chat streams.
	Heartbeat time.Duration `json:"heartbeat"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslmode"`
	// Pool knobs; zero values take the database package defaults.
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// RetrievalConfig tunes the hybrid merge and the RAG window. The boost and
// window defaults match the original ranking policy; they are tunable, not
// sacred.
type RetrievalConfig struct {
	SemanticBoost float64 `json:"semantic_boost"`
	DefaultLimit  int     `json:"default_limit"`
	MaxLimit      int     `json:"max_limit"`
	MaxWindowCues int     `json:"max_window_cues"`
	MaxSources    int     `json:"max_sources"`
}

// EmbeddingsConfig selects the embedding backend. Type "disabled" (or a
// missing API key for openai) degrades semantic search instead of failing
// startup.
type EmbeddingsConfig struct {
	Type       string `json:"type"` // "openai", "ollama", "disabled"
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	BaseURL    string `json:"base_url,omitempty"`
	APIKey     string `json:"api_key,omitempty"`
}

type ProviderConfig struct {
	Type         string   `json:"type"`
	Name         string   `json:"name"`
	BaseURL      string   `json:"base_url,omitempty"`
	APIKey       string   `json:"api_key,omitempty"`
	Models       []string `json:"models"`
	DefaultModel string   `json:"default_model"`
	// Timeout bounds one generation call. Local providers can be slow, so
	// the effective default is on the order of minutes.
	Timeout time.Duration `json:"timeout,omitempty"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	homeDir, err := os.UserHomeDir()
	if err == nil {
		viper.AddConfigPath(filepath.Join(homeDir, ".vidscope"))
	}

	viper.SetDefault("server.port", 3000)
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.heartbeat", 750*time.Millisecond)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "vidscope")
	viper.SetDefault("database.database", "vidscope")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("retrieval.semantic_boost", 1.2)
	viper.SetDefault("retrieval.default_limit", 20)
	viper.SetDefault("retrieval.max_limit", 100)
	viper.SetDefault("retrieval.max_window_cues", 60)
	viper.SetDefault("retrieval.max_sources", 80)
	viper.SetDefault("embeddings.type", "ollama")
	viper.SetDefault("embeddings.model", "nomic-embed-text")
	viper.SetDefault("embeddings.dimensions", 768)
	viper.SetDefault("default_provider", "ollama")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			cfg := createDefaultConfig()
			loadEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loadEnvOverrides(&cfg)

	return &cfg, nil
}

func createDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "localhost",
			Port:      3000,
			Heartbeat: 750 * time.Millisecond,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "vidscope",
			Password: "",
			Database: "vidscope",
			SSLMode:  "disable",
		},
		Retrieval: RetrievalConfig{
			SemanticBoost: 1.2,
			DefaultLimit:  20,
			MaxLimit:      100,
			MaxWindowCues: 60,
			MaxSources:    80,
		},
		Embeddings: EmbeddingsConfig{
			Type:       "ollama",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			BaseURL:    "http://localhost:11434",
		},
		Providers: map[string]ProviderConfig{
			"openai": {
				Type:         "openai",
				Name:         "OpenAI",
				Models:       []string{"gpt-4o", "gpt-4o-mini"},
				DefaultModel: "gpt-4o-mini",
			},
			"anthropic": {
				Type:         "anthropic",
				Name:         "Anthropic",
				Models:       []string{"claude-3-5-sonnet-20241022", "claude-3-5-haiku-20241022"},
				DefaultModel: "claude-3-5-sonnet-20241022",
			},
			"ollama": {
				Type:         "openai-compatible",
				Name:         "Ollama",
				BaseURL:      "http://localhost:11434",
				Models:       []string{}, // Discovered dynamically
				DefaultModel: "llama3.1",
			},
			"mock": {
				Type:         "mock",
				Name:         "Mock",
				Models:       []string{"mock"},
				DefaultModel: "mock",
			},
		},
		DefaultProvider: "ollama",
	}
}

func loadEnvOverrides(cfg *Config) {
	if port := os.Getenv("VIDSCOPE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if host := os.Getenv("VIDSCOPE_HOST"); host != "" {
		cfg.Server.Host = host
	}

	if dbHost := os.Getenv("POSTGRES_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("POSTGRES_PORT"); dbPort != "" {
		if port, err := strconv.Atoi(dbPort); err == nil {
			cfg.Database.Port = port
		}
	}
	if dbUser := os.Getenv("POSTGRES_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPass := os.Getenv("POSTGRES_PASSWORD"); dbPass != "" {
		cfg.Database.Password = dbPass
	}
	if dbName := os.Getenv("POSTGRES_DB"); dbName != "" {
		cfg.Database.Database = dbName
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if cfg.Embeddings.Type == "openai" && cfg.Embeddings.APIKey == "" {
			cfg.Embeddings.APIKey = key
		}
		if p, ok := cfg.Providers["openai"]; ok && p.APIKey == "" {
			p.APIKey = key
			cfg.Providers["openai"] = p
		}
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		if p, ok := cfg.Providers["anthropic"]; ok && p.APIKey == "" {
			p.APIKey = key
			cfg.Providers["anthropic"] = p
		}
	}
	if base := os.Getenv("OLLAMA_BASE_URL"); base != "" {
		if cfg.Embeddings.Type == "ollama" {
			cfg.Embeddings.BaseURL = base
		}
		if p, ok := cfg.Providers["ollama"]; ok {
			p.BaseURL = base
			cfg.Providers["ollama"] = p
		}
	}
}
