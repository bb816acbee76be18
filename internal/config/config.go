package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv   = "AUTOBLOGGER_CONFIG"
	llmAPIKeyEnv    = "LLM_API_KEY"
	llmModelEnv     = "LLM_MODEL"
	imagesAPIKeyEnv = "IMAGES_API_KEY"
	cmsUsernameEnv  = "CMS_USERNAME"
	cmsPasswordEnv  = "CMS_PASSWORD"
	storagePathEnv  = "AUTOBLOGGER_DB"
	rulesDirEnv     = "AUTOBLOGGER_RULES"
	listenAddrEnv   = "AUTOBLOGGER_ADDR"
	loggingLevelEnv = "AUTOBLOGGER_LOG_LEVEL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Rules    RulesConfig    `yaml:"rules"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Extract  ExtractConfig  `yaml:"extract"`
	LLM      LLMConfig      `yaml:"llm"`
	Images   ImagesConfig   `yaml:"images"`
	CMS      CMSConfig      `yaml:"cms"`
	SEO      SEOConfig      `yaml:"seo"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// StorageConfig locates the SQLite job database.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// RulesConfig locates the directory of JSON rule tables.
type RulesConfig struct {
	Dir string `yaml:"dir"`
}

// PipelineConfig tunes the orchestration engine.
type PipelineConfig struct {
	Workers     int `yaml:"workers"`
	QueueSize   int `yaml:"queueSize"`
	MaxAttempts int `yaml:"maxAttempts"`
	BaseDelayMs int `yaml:"baseDelayMs"`
	MaxDelaySec int `yaml:"maxDelaySec"`
}

// BaseDelay returns the initial retry backoff.
func (p PipelineConfig) BaseDelay() time.Duration {
	return time.Duration(p.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the backoff ceiling.
func (p PipelineConfig) MaxDelay() time.Duration {
	return time.Duration(p.MaxDelaySec) * time.Second
}

// ExtractConfig tunes source fetching and content extraction.
type ExtractConfig struct {
	TimeoutSec int `yaml:"timeoutSec"`
	MinContent int `yaml:"minContent"`
	Sessions   int `yaml:"sessions"`
}

// Timeout returns the per-fetch deadline.
func (e ExtractConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSec) * time.Second
}

// LLMConfig defines how to contact the chat-completion API.
type LLMConfig struct {
	Endpoint   string `yaml:"endpoint"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"apiKey"`
	MinLength  int    `yaml:"minLength"`
	TimeoutSec int    `yaml:"timeoutSec"`
}

// Timeout returns the per-call deadline.
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSec) * time.Second
}

// ImagesConfig defines the stock-image provider connection.
type ImagesConfig struct {
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"apiKey"`
	PerPage    int    `yaml:"perPage"`
	TimeoutSec int    `yaml:"timeoutSec"`
}

// Timeout returns the per-call deadline.
func (i ImagesConfig) Timeout() time.Duration {
	return time.Duration(i.TimeoutSec) * time.Second
}

// CMSConfig wires the publishing target.
type CMSConfig struct {
	BaseURL    string `yaml:"baseUrl"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	TimeoutSec int    `yaml:"timeoutSec"`
}

// Timeout returns the per-call deadline.
func (c CMSConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// SEOConfig tunes the enrichment pass.
type SEOConfig struct {
	TopTags              int     `yaml:"topTags"`
	TitleWeight          float64 `yaml:"titleWeight"`
	LeadWeight           float64 `yaml:"leadWeight"`
	MaxLinks             int     `yaml:"maxLinks"`
	MetaDescriptionLimit int     `yaml:"metaDescriptionLimit"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv(imagesAPIKeyEnv); v != "" {
		c.Images.APIKey = v
	}
	if v := os.Getenv(cmsUsernameEnv); v != "" {
		c.CMS.Username = v
	}
	if v := os.Getenv(cmsPasswordEnv); v != "" {
		c.CMS.Password = v
	}
	if v := os.Getenv(storagePathEnv); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv(rulesDirEnv); v != "" {
		c.Rules.Dir = v
	}
	if v := os.Getenv(listenAddrEnv); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(loggingLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}

	if override.Storage.Path != "" {
		base.Storage.Path = override.Storage.Path
	}

	if override.Rules.Dir != "" {
		base.Rules.Dir = override.Rules.Dir
	}

	if override.Pipeline.Workers > 0 {
		base.Pipeline.Workers = override.Pipeline.Workers
	}
	if override.Pipeline.QueueSize > 0 {
		base.Pipeline.QueueSize = override.Pipeline.QueueSize
	}
	if override.Pipeline.MaxAttempts > 0 {
		base.Pipeline.MaxAttempts = override.Pipeline.MaxAttempts
	}
	if override.Pipeline.BaseDelayMs > 0 {
		base.Pipeline.BaseDelayMs = override.Pipeline.BaseDelayMs
	}
	if override.Pipeline.MaxDelaySec > 0 {
		base.Pipeline.MaxDelaySec = override.Pipeline.MaxDelaySec
	}

	if override.Extract.TimeoutSec > 0 {
		base.Extract.TimeoutSec = override.Extract.TimeoutSec
	}
	if override.Extract.MinContent > 0 {
		base.Extract.MinContent = override.Extract.MinContent
	}
	if override.Extract.Sessions > 0 {
		base.Extract.Sessions = override.Extract.Sessions
	}

	if override.LLM.Endpoint != "" {
		base.LLM.Endpoint = override.LLM.Endpoint
	}
	if override.LLM.Model != "" {
		base.LLM.Model = override.LLM.Model
	}
	if override.LLM.APIKey != "" {
		base.LLM.APIKey = override.LLM.APIKey
	}
	if override.LLM.MinLength > 0 {
		base.LLM.MinLength = override.LLM.MinLength
	}
	if override.LLM.TimeoutSec > 0 {
		base.LLM.TimeoutSec = override.LLM.TimeoutSec
	}

	if override.Images.Endpoint != "" {
		base.Images.Endpoint = override.Images.Endpoint
	}
	if override.Images.APIKey != "" {
		base.Images.APIKey = override.Images.APIKey
	}
	if override.Images.PerPage > 0 {
		base.Images.PerPage = override.Images.PerPage
	}
	if override.Images.TimeoutSec > 0 {
		base.Images.TimeoutSec = override.Images.TimeoutSec
	}

	if override.CMS.BaseURL != "" {
		base.CMS.BaseURL = override.CMS.BaseURL
	}
	if override.CMS.Username != "" {
		base.CMS.Username = override.CMS.Username
	}
	if override.CMS.Password != "" {
		base.CMS.Password = override.CMS.Password
	}
	if override.CMS.TimeoutSec > 0 {
		base.CMS.TimeoutSec = override.CMS.TimeoutSec
	}

	if override.SEO.TopTags > 0 {
		base.SEO.TopTags = override.SEO.TopTags
	}
	if override.SEO.TitleWeight > 0 {
		base.SEO.TitleWeight = override.SEO.TitleWeight
	}
	if override.SEO.LeadWeight > 0 {
		base.SEO.LeadWeight = override.SEO.LeadWeight
	}
	if override.SEO.MaxLinks > 0 {
		base.SEO.MaxLinks = override.SEO.MaxLinks
	}
	if override.SEO.MetaDescriptionLimit > 0 {
		base.SEO.MetaDescriptionLimit = override.SEO.MetaDescriptionLimit
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Server:  ServerConfig{Addr: ":8080"},
		Storage: StorageConfig{Path: "autoblogger.db"},
		Rules:   RulesConfig{Dir: "rules"},
		Pipeline: PipelineConfig{
			Workers:     2,
			QueueSize:   64,
			MaxAttempts: 3,
			BaseDelayMs: 500,
			MaxDelaySec: 30,
		},
		Extract: ExtractConfig{
			TimeoutSec: 30,
			MinContent: 300,
			Sessions:   4,
		},
		LLM: LLMConfig{
			Endpoint:   "https://api.openai.com/v1/chat/completions",
			Model:      "gpt-4o-mini",
			APIKey:     "",
			MinLength:  300,
			TimeoutSec: 60,
		},
		Images: ImagesConfig{
			Endpoint:   "https://api.stockphotos.example.org",
			APIKey:     "",
			PerPage:    10,
			TimeoutSec: 30,
		},
		CMS: CMSConfig{
			BaseURL:    "http://localhost:8081",
			Username:   "",
			Password:   "",
			TimeoutSec: 30,
		},
		SEO: SEOConfig{
			TopTags:              5,
			TitleWeight:          3.0,
			LeadWeight:           2.0,
			MaxLinks:             5,
			MetaDescriptionLimit: 155,
		},
	}
}
