// Package config provides YAML-based configuration loading for vidscribe.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level vidscribe configuration, loaded from config.yaml.
type Config struct {
	WeChat      WeChatConfig      `yaml:"wechat"`
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Storage     StorageConfig     `yaml:"storage"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Session     SessionConfig     `yaml:"session"`
	LLM         LLMConfig         `yaml:"llm"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Alerts      AlertsConfig      `yaml:"alerts"`
}

// WeChatConfig holds Official Account credentials. Token is the webhook
// signature token configured in the WeChat console, not an access token.
type WeChatConfig struct {
	AppID     string `yaml:"app_id"`
	AppSecret string `yaml:"app_secret"`
	Token     string `yaml:"token"`
	APIBase   string `yaml:"api_base"` // override for tests
}

// ServerConfig holds webhook HTTP server settings.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"` // webhook mount path
}

// DatabaseConfig selects the storage backend. sqlite is the default and
// needs only a file path; mysql needs host/port/user/name.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "sqlite" or "mysql"
	Path     string `yaml:"path"`   // sqlite file path
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// StorageConfig holds filesystem locations for downloaded media and
// transcript artifacts.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// PipelineConfig tunes the background ingestion workers.
type PipelineConfig struct {
	Workers              int `yaml:"workers"`
	QueueSize            int `yaml:"queue_size"`
	DownloadTimeoutMin   int `yaml:"download_timeout_min"`
	TranscribeTimeoutMin int `yaml:"transcribe_timeout_min"`
}

// SessionConfig controls session expiry.
type SessionConfig struct {
	TTLHours  int    `yaml:"ttl_hours"`
	SweepCron string `yaml:"sweep_cron"` // 5-field cron expression
}

// LLMConfig holds the chat model used for transcript Q&A.
type LLMConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// TranscriberConfig holds the speech-to-text model. APIKey and BaseURL
// fall back to the LLM settings when empty.
type TranscriberConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// AlertsConfig selects the operator alert channel for pipeline failures.
type AlertsConfig struct {
	Platform string        `yaml:"platform"` // "slack", "discord", or empty to disable
	Slack    SlackConfig   `yaml:"slack"`
	Discord  DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack alert delivery settings.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// DiscordConfig holds Discord alert delivery settings.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.WeChat.APIBase == "" {
		c.WeChat.APIBase = "https://api.weixin.qq.com"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Path == "" {
		c.Server.Path = "/wechat"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "vidscribe.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Pipeline.Workers == 0 {
		c.Pipeline.Workers = 2
	}
	if c.Pipeline.QueueSize == 0 {
		c.Pipeline.QueueSize = 32
	}
	if c.Pipeline.DownloadTimeoutMin == 0 {
		c.Pipeline.DownloadTimeoutMin = 20
	}
	if c.Pipeline.TranscribeTimeoutMin == 0 {
		c.Pipeline.TranscribeTimeoutMin = 15
	}
	if c.Session.TTLHours == 0 {
		c.Session.TTLHours = 24
	}
	if c.Session.SweepCron == "" {
		c.Session.SweepCron = "*/30 * * * *"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "moonshot-v1-32k"
	}
	if c.LLM.TimeoutSec == 0 {
		c.LLM.TimeoutSec = 4
	}
	if c.Transcriber.APIKey == "" {
		c.Transcriber.APIKey = c.LLM.APIKey
	}
	if c.Transcriber.BaseURL == "" {
		c.Transcriber.BaseURL = c.LLM.BaseURL
	}
	if c.Transcriber.Model == "" {
		c.Transcriber.Model = "whisper-1"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.WeChat.AppID == "" {
		errs = append(errs, "wechat.app_id is required")
	}
	if c.WeChat.AppSecret == "" {
		errs = append(errs, "wechat.app_secret is required")
	}
	if c.WeChat.Token == "" {
		errs = append(errs, "wechat.token is required")
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, "llm.api_key is required")
	}
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (sqlite, mysql)", c.Database.Driver))
	}
	if c.Database.Driver == "mysql" {
		if c.Database.User == "" {
			errs = append(errs, "database.user is required for mysql")
		}
		if c.Database.Name == "" {
			errs = append(errs, "database.name is required for mysql")
		}
	}
	switch c.Alerts.Platform {
	case "", "slack", "discord":
	default:
		errs = append(errs, fmt.Sprintf("alerts.platform %q is not supported (slack, discord)", c.Alerts.Platform))
	}
	if c.Alerts.Platform == "slack" && (c.Alerts.Slack.BotToken == "" || c.Alerts.Slack.Channel == "") {
		errs = append(errs, "alerts.slack.bot_token and alerts.slack.channel are required for slack alerts")
	}
	if c.Alerts.Platform == "discord" && (c.Alerts.Discord.BotToken == "" || c.Alerts.Discord.ChannelID == "") {
		errs = append(errs, "alerts.discord.bot_token and alerts.discord.channel_id are required for discord alerts")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
