package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const minimalYAML = `
wechat:
  app_id: wx123
  app_secret: secret
  token: webhook-token
llm:
  api_key: sk-test
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.Path != "/wechat" {
		t.Errorf("server.path = %q, want /wechat", cfg.Server.Path)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("database.driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Database.Path != "vidscribe.db" {
		t.Errorf("database.path = %q, want vidscribe.db", cfg.Database.Path)
	}
	if cfg.Pipeline.Workers != 2 {
		t.Errorf("pipeline.workers = %d, want 2", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.QueueSize != 32 {
		t.Errorf("pipeline.queue_size = %d, want 32", cfg.Pipeline.QueueSize)
	}
	if cfg.Pipeline.DownloadTimeoutMin != 20 {
		t.Errorf("pipeline.download_timeout_min = %d, want 20", cfg.Pipeline.DownloadTimeoutMin)
	}
	if cfg.Session.TTLHours != 24 {
		t.Errorf("session.ttl_hours = %d, want 24", cfg.Session.TTLHours)
	}
	if cfg.Session.SweepCron != "*/30 * * * *" {
		t.Errorf("session.sweep_cron = %q", cfg.Session.SweepCron)
	}
	if cfg.LLM.Model != "moonshot-v1-32k" {
		t.Errorf("llm.model = %q, want moonshot-v1-32k", cfg.LLM.Model)
	}
	if cfg.LLM.TimeoutSec != 4 {
		t.Errorf("llm.timeout_sec = %d, want 4", cfg.LLM.TimeoutSec)
	}
	if cfg.Transcriber.Model != "whisper-1" {
		t.Errorf("transcriber.model = %q, want whisper-1", cfg.Transcriber.Model)
	}
	if cfg.WeChat.APIBase != "https://api.weixin.qq.com" {
		t.Errorf("wechat.api_base = %q", cfg.WeChat.APIBase)
	}
}

func TestParse_TranscriberFallsBackToLLM(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Transcriber.APIKey != "sk-test" {
		t.Errorf("transcriber.api_key = %q, want llm key", cfg.Transcriber.APIKey)
	}
}

func TestParse_TranscriberOverride(t *testing.T) {
	yaml := minimalYAML + `
transcriber:
  api_key: sk-whisper
  base_url: http://localhost:9000/v1
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Transcriber.APIKey != "sk-whisper" {
		t.Errorf("transcriber.api_key = %q, want sk-whisper", cfg.Transcriber.APIKey)
	}
	if cfg.Transcriber.BaseURL != "http://localhost:9000/v1" {
		t.Errorf("transcriber.base_url = %q", cfg.Transcriber.BaseURL)
	}
}

func TestParse_MissingRequired(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no app id",
			yaml: "wechat:\n  app_secret: s\n  token: t\nllm:\n  api_key: k\n",
			want: "wechat.app_id",
		},
		{
			name: "no app secret",
			yaml: "wechat:\n  app_id: a\n  token: t\nllm:\n  api_key: k\n",
			want: "wechat.app_secret",
		},
		{
			name: "no webhook token",
			yaml: "wechat:\n  app_id: a\n  app_secret: s\nllm:\n  api_key: k\n",
			want: "wechat.token",
		},
		{
			name: "no llm key",
			yaml: "wechat:\n  app_id: a\n  app_secret: s\n  token: t\n",
			want: "llm.api_key",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParse_BadDriver(t *testing.T) {
	yaml := minimalYAML + "database:\n  driver: postgres\n"
	_, err := Parse([]byte(yaml))
	if err == nil || !strings.Contains(err.Error(), "database.driver") {
		t.Fatalf("expected driver validation error, got %v", err)
	}
}

func TestParse_MySQLRequiredFields(t *testing.T) {
	yaml := minimalYAML + "database:\n  driver: mysql\n"
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("expected validation error for mysql without user/name")
	}
	if !strings.Contains(err.Error(), "database.user") || !strings.Contains(err.Error(), "database.name") {
		t.Errorf("error %q should mention database.user and database.name", err)
	}
}

func TestParse_MySQLValid(t *testing.T) {
	yaml := minimalYAML + `
database:
  driver: mysql
  user: vidscribe
  name: vidscribe
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Database.Host != "127.0.0.1" {
		t.Errorf("database.host = %q, want default 127.0.0.1", cfg.Database.Host)
	}
	if cfg.Database.Port != 3306 {
		t.Errorf("database.port = %d, want 3306", cfg.Database.Port)
	}
}

func TestParse_AlertsValidation(t *testing.T) {
	tests := []struct {
		name    string
		extra   string
		wantErr bool
	}{
		{name: "no platform", extra: "", wantErr: false},
		{name: "unknown platform", extra: "alerts:\n  platform: pager\n", wantErr: true},
		{name: "slack missing token", extra: "alerts:\n  platform: slack\n", wantErr: true},
		{
			name:    "slack complete",
			extra:   "alerts:\n  platform: slack\n  slack:\n    bot_token: xoxb-1\n    channel: C123\n",
			wantErr: false,
		},
		{name: "discord missing channel", extra: "alerts:\n  platform: discord\n  discord:\n    bot_token: tok\n", wantErr: true},
		{
			name:    "discord complete",
			extra:   "alerts:\n  platform: discord\n  discord:\n    bot_token: tok\n    channel_id: \"42\"\n",
			wantErr: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(minimalYAML + tt.extra))
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WeChat.AppID != "wx123" {
		t.Errorf("wechat.app_id = %q, want wx123", cfg.WeChat.AppID)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("wechat: [not a map"))
	if err == nil {
		t.Fatal("expected parse error")
	}
}
