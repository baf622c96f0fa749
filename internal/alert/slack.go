package alert

import (
	"context"
	"fmt"
	"log"

	slackapi "github.com/slack-go/slack"
)

// slackPoster abstracts the Slack API call for testability.
type slackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Slack posts alerts to a Slack channel via chat.postMessage.
type Slack struct {
	client  slackPoster
	channel string
}

// NewSlack creates a Slack alerter.
func NewSlack(botToken, channel string) (*Slack, error) {
	if botToken == "" || channel == "" {
		return nil, fmt.Errorf("alert: slack: bot token and channel are required")
	}
	return &Slack{
		client:  slackapi.New(botToken),
		channel: channel,
	}, nil
}

// Alert posts the alert as a colored attachment. Failures are logged.
func (s *Slack) Alert(ctx context.Context, title, body string) {
	attachment := slackapi.Attachment{
		Title: title,
		Text:  body,
		Color: "#d32f2f",
	}
	_, _, err := s.client.PostMessageContext(ctx, s.channel, slackapi.MsgOptionAttachments(attachment))
	if err != nil {
		log.Printf("alert: slack post: %v", err)
	}
}
