// Package alert posts operator-facing notifications (pipeline failures,
// daemon lifecycle) to a configured chat channel. Alerts are
// best-effort: delivery errors are logged and dropped.
package alert

import (
	"context"
	"fmt"

	"github.com/mqzhao/vidscribe/internal/config"
)

// Alerter delivers one operator alert. Implementations log their own
// failures and never block the caller for long.
type Alerter interface {
	Alert(ctx context.Context, title, body string)
}

// Noop drops all alerts. Used when no alert platform is configured.
type Noop struct{}

// Alert does nothing.
func (Noop) Alert(ctx context.Context, title, body string) {}

// FromConfig builds the Alerter selected by the alerts config.
func FromConfig(cfg config.AlertsConfig) (Alerter, error) {
	switch cfg.Platform {
	case "":
		return Noop{}, nil
	case "slack":
		return NewSlack(cfg.Slack.BotToken, cfg.Slack.Channel)
	case "discord":
		return NewDiscord(cfg.Discord.BotToken, cfg.Discord.ChannelID)
	default:
		return nil, fmt.Errorf("alert: unsupported platform %q", cfg.Platform)
	}
}
