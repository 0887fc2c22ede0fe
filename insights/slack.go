package insights

import (
	"github.com/slack-go/slack"
)

// SlackAlerter posts error/fatal-severity alerts to an incoming webhook
// (optional; messages fire for
// error/fatal levels only"). A missing webhook URL is not a startup error --
// the pipeline must run with zero optional providers -- callers simply
// don't construct one.
type SlackAlerter struct {
	WebhookURL string
	Channel    string
}

func NewSlackAlerter(webhookURL, channel string) *SlackAlerter {
	return &SlackAlerter{WebhookURL: webhookURL, Channel: channel}
}

func (s *SlackAlerter) Alert(severity, message string) error {
	if severity != "error" && severity != "fatal" {
		return nil
	}
	msg := &slack.WebhookMessage{
		Channel: s.Channel,
		Text:    "[" + severity + "] " + message,
	}
	return slack.PostWebhook(s.WebhookURL, msg)
}
