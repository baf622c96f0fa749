package alert

import (
	"context"
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
)

// discordSender abstracts the Discord REST call for testability.
type discordSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts alerts to a Discord channel. Plain REST sends only; no
// gateway connection is needed.
type Discord struct {
	sess      discordSender
	channelID string
}

// NewDiscord creates a Discord alerter.
func NewDiscord(botToken, channelID string) (*Discord, error) {
	if botToken == "" || channelID == "" {
		return nil, fmt.Errorf("alert: discord: bot token and channel id are required")
	}
	sess, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("alert: discord: create session: %w", err)
	}
	return &Discord{sess: sess, channelID: channelID}, nil
}

// Alert posts the alert as a bolded message. Failures are logged.
func (d *Discord) Alert(ctx context.Context, title, body string) {
	content := fmt.Sprintf("**%s**\n%s", title, body)
	if _, err := d.sess.ChannelMessageSend(d.channelID, content); err != nil {
		log.Printf("alert: discord send: %v", err)
	}
}
