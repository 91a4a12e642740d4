package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Engine      EngineConfig      `mapstructure:"engine" json:"engine"`
	Embeddings  EmbeddingsConfig  `mapstructure:"embeddings" json:"embeddings"`
	Catalog     CatalogConfig     `mapstructure:"catalog" json:"catalog"`
	Preferences PreferencesConfig `mapstructure:"preferences" json:"preferences"`
	Reminders   RemindersConfig   `mapstructure:"reminders" json:"reminders"`
	LLM         LLMConfig         `mapstructure:"llm" json:"llm"`
	Server      ServerConfig      `mapstructure:"server" json:"server"`
	StorageDir  string            `mapstructure:"storage_dir" json:"storage_dir"`
}

type EngineConfig struct {
	SimilarityThreshold float32 `mapstructure:"similarity_threshold" json:"similarity_threshold"`
	CulturalBoost       float32 `mapstructure:"cultural_boost" json:"cultural_boost"`
	LearningRate        float32 `mapstructure:"learning_rate" json:"learning_rate"`
	DefaultK            int     `mapstructure:"default_k" json:"default_k"`
	OverFetch           int     `mapstructure:"over_fetch" json:"over_fetch"`
	BuildConcurrency    int     `mapstructure:"build_concurrency" json:"build_concurrency"`
}

// EmbeddingsConfig selects the embedding backend. Provider "hash" needs no
// network and no model files; "static" loads a msgpack token table.
type EmbeddingsConfig struct {
	Provider   string `mapstructure:"provider" json:"provider"`
	Model      string `mapstructure:"model" json:"model"`
	URL        string `mapstructure:"url" json:"url"`
	APIKey     string `mapstructure:"api_key" json:"api_key,omitempty"`
	Dim        int    `mapstructure:"dim" json:"dim"`
	StaticPath string `mapstructure:"static_path" json:"static_path"`
	Persist    bool   `mapstructure:"persist" json:"persist"`
}

type CatalogConfig struct {
	Path         string `mapstructure:"path" json:"path"`
	TaxonomyPath string `mapstructure:"taxonomy_path" json:"taxonomy_path"`
}

type PreferencesConfig struct {
	Backend string `mapstructure:"backend" json:"backend"`
}

type RemindersConfig struct {
	Enabled   bool          `mapstructure:"enabled" json:"enabled"`
	Threshold time.Duration `mapstructure:"threshold" json:"threshold"`
	Schedule  string        `mapstructure:"schedule" json:"schedule"`
}

type LLMConfig struct {
	BaseURL       string        `mapstructure:"base_url" json:"base_url"`
	APIKey        string        `mapstructure:"api_key" json:"api_key,omitempty"`
	Model         string        `mapstructure:"model" json:"model"`
	Timeout       time.Duration `mapstructure:"timeout" json:"timeout"`
	Explanations  bool          `mapstructure:"explanations" json:"explanations"`
	MoodDetection bool          `mapstructure:"mood_detection" json:"mood_detection"`
}

type ServerConfig struct {
	Addr          string `mapstructure:"addr" json:"addr"`
	Key           string `mapstructure:"key" json:"key,omitempty"`
	AdminUser     string `mapstructure:"admin_user" json:"admin_user"`
	AdminPass     string `mapstructure:"admin_pass" json:"admin_pass,omitempty"`
	EffectiveHost string `mapstructure:"-" json:"effectiveHost"`
	Port          int    `mapstructure:"-" json:"port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.similarity_threshold", 0.3)
	v.SetDefault("engine.cultural_boost", 0.1)
	v.SetDefault("engine.learning_rate", 0.1)
	v.SetDefault("engine.default_k", 3)
	v.SetDefault("engine.over_fetch", 2)
	v.SetDefault("engine.build_concurrency", 4)
	v.SetDefault("embeddings.provider", "hash")
	v.SetDefault("embeddings.dim", 384)
	v.SetDefault("embeddings.persist", true)
	v.SetDefault("preferences.backend", "sqlite")
	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.threshold", "3h")
	v.SetDefault("reminders.schedule", "0 */5 * * * *")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.admin_user", "admin")
}

// Default returns a config built from defaults only, rooted at storageDir.
func Default(storageDir string) *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	cfg.StorageDir = storageDir
	_ = cfg.resolveServer()
	return &cfg
}

func Load(override string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	appDir := filepath.Join(home, ".moodmeal")
	if _, err := os.Stat(appDir); os.IsNotExist(err) {
		_ = os.MkdirAll(appDir, 0755)
	}

	if envDir := os.Getenv("MOODMEAL_STORAGE_DIR"); envDir != "" {
		appDir = envDir
		_ = os.MkdirAll(appDir, 0755)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("MOODMEAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if override != "" {
		v.SetConfigFile(override)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(appDir)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if override != "" || !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.resolveServer(); err != nil {
		return nil, err
	}

	if cfg.StorageDir == "" {
		cfg.StorageDir = appDir
	}
	if strings.HasPrefix(cfg.StorageDir, "~/") {
		cfg.StorageDir = filepath.Join(home, cfg.StorageDir[2:])
	}

	cfg.Embeddings.APIKey = resolveKey(cfg.Embeddings.APIKey, "OPENAI_API_KEY")
	cfg.LLM.APIKey = resolveKey(cfg.LLM.APIKey, "OPENAI_API_KEY")

	return &cfg, nil
}

func (c *Config) resolveServer() error {
	host, portStr, err := net.SplitHostPort(c.Server.Addr)
	if err != nil {
		return fmt.Errorf("invalid server.addr %q: %w", c.Server.Addr, err)
	}
	c.Server.EffectiveHost = host
	if c.Server.EffectiveHost == "" {
		c.Server.EffectiveHost = "0.0.0.0"
	}
	p, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port %q in server.addr %q: %w", portStr, c.Server.Addr, err)
	}
	c.Server.Port = p
	return nil
}

// resolveKey expands a "$VAR" placeholder from the environment and falls
// back to fallbackEnv when the key is empty.
func resolveKey(key, fallbackEnv string) string {
	if strings.HasPrefix(key, "$") {
		return os.Getenv(strings.TrimPrefix(key, "$"))
	}
	if key == "" && fallbackEnv != "" {
		return os.Getenv(fallbackEnv)
	}
	return key
}

// Redacted returns a copy safe to expose over the admin API.
func (c *Config) Redacted() Config {
	out := *c
	if out.Embeddings.APIKey != "" {
		out.Embeddings.APIKey = "***"
	}
	if out.LLM.APIKey != "" {
		out.LLM.APIKey = "***"
	}
	out.Server.Key = ""
	out.Server.AdminPass = ""
	return out
}
