// Package config loads and holds runtime configuration for the gateway.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// UpstreamConfig points at the proprietary streaming backend.
type UpstreamConfig struct {
	BaseURL          string `yaml:"base_url" json:"base_url"`
	ModelsURL        string `yaml:"models_url" json:"models_url"`
	UserAgent        string `yaml:"user_agent" json:"user_agent"`
	DialTimeoutSec   int    `yaml:"dial_timeout_sec" json:"dial_timeout_sec"`
	RequestTimeoutSec int   `yaml:"request_timeout_sec" json:"request_timeout_sec"`
}

// OAuthConfig holds the Google OAuth2 client used to refresh pooled credentials.
type OAuthConfig struct {
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"client_secret"`
	TokenURL     string `yaml:"token_url" json:"token_url"`
}

// GenerationDefaults seed generationConfig fields absent from an inbound request.
type GenerationDefaults struct {
	Temperature float64 `yaml:"temperature" json:"temperature"`
	TopP        float64 `yaml:"top_p" json:"top_p"`
	TopK        int     `yaml:"top_k" json:"top_k"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
}

// SecurityConfig holds gateway auth and limits.
type SecurityConfig struct {
	APIKey         string `yaml:"api_key" json:"api_key"`
	AdminPassword  string `yaml:"admin_password" json:"admin_password"`
	MaxRequestSize int64  `yaml:"max_request_size" json:"max_request_size"`
	Debug          bool   `yaml:"debug" json:"debug"`
	LogFile        string `yaml:"log_file" json:"log_file"`
}

// FileConfig is the on-disk shape of the config file, which Load decodes
// as YAML or JSON.
type FileConfig struct {
	Server            ServerConfig        `yaml:"server" json:"server"`
	Upstream          UpstreamConfig      `yaml:"upstream" json:"upstream"`
	OAuth             OAuthConfig         `yaml:"oauth" json:"oauth"`
	Generation        GenerationDefaults  `yaml:"generation" json:"generation"`
	Security          SecurityConfig      `yaml:"security" json:"security"`
	SystemInstruction string              `yaml:"system_instruction" json:"system_instruction"`
	CredentialsDir    string              `yaml:"credentials_dir" json:"credentials_dir"`
	DataDir           string              `yaml:"data_dir" json:"data_dir"`
}

// Config is the runtime-resolved configuration: FileConfig plus environment
// overrides, exposed through the same field names the rest of the gateway
// expects.
type Config struct {
	FileConfig
}

func defaults() FileConfig {
	return FileConfig{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Upstream: UpstreamConfig{
			BaseURL:           "https://cloudcode-pa.googleapis.com",
			ModelsURL:         "https://cloudcode-pa.googleapis.com/v1internal:listModels",
			UserAgent:         "gcli2api-go/1.0",
			DialTimeoutSec:    10,
			RequestTimeoutSec: 120,
		},
		OAuth: OAuthConfig{
			TokenURL: "https://oauth2.googleapis.com/token",
		},
		Generation: GenerationDefaults{
			Temperature: 1.0,
			TopP:        0.95,
			TopK:        64,
			MaxTokens:   8192,
		},
		Security: SecurityConfig{
			MaxRequestSize: 10 << 20,
		},
		CredentialsDir: "./data/credentials",
		DataDir:        "./data",
	}
}

// Load reads configPath (YAML or JSON, by extension) layered over defaults,
// then applies OAUTH_CLIENT_ID/OAUTH_CLIENT_SECRET environment overrides.
// A missing file is not an error: defaults plus environment are returned.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else {
			ext := strings.ToLower(filepath.Ext(configPath))
			switch ext {
			case ".json":
				if err := json.Unmarshal(data, &cfg); err != nil {
					return nil, fmt.Errorf("parse JSON config: %w", err)
				}
			default:
				if err := yaml.Unmarshal(data, &cfg); err != nil {
					return nil, fmt.Errorf("parse YAML config: %w", err)
				}
			}
		}
	}

	applyEnvOverrides(&cfg)

	log.WithFields(log.Fields{
		"path": configPath,
		"port": cfg.Server.Port,
	}).Info("configuration loaded")

	return &Config{FileConfig: cfg}, nil
}

func applyEnvOverrides(cfg *FileConfig) {
	if v := strings.TrimSpace(os.Getenv("OAUTH_CLIENT_ID")); v != "" {
		cfg.OAuth.ClientID = v
	}
	if v := strings.TrimSpace(os.Getenv("OAUTH_CLIENT_SECRET")); v != "" {
		cfg.OAuth.ClientSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_API_KEY")); v != "" {
		cfg.Security.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_PORT")); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_DEBUG")); v != "" {
		cfg.Security.Debug = v == "1" || strings.EqualFold(v, "true")
	}
}

// Addr returns the host:port the HTTP server should bind to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
