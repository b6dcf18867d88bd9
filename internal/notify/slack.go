package notify

import (
	"fmt"
	"log"

	"github.com/slack-go/slack"
)

// SlackNotifier posts dispatch outcomes to a Slack channel. Construct with
// NewSlackNotifier; a nil *SlackNotifier must not be used (callers keep a
// nil interface instead when Slack is not configured).
type SlackNotifier struct {
	client  *slack.Client
	channel string
}

// NewSlackNotifier creates a notifier, or nil when token or channel is
// unset.
func NewSlackNotifier(botToken, channel string) *SlackNotifier {
	if botToken == "" || channel == "" {
		return nil
	}
	return &SlackNotifier{
		client:  slack.New(botToken),
		channel: channel,
	}
}

// DispatchSucceeded posts a success message for one remote execution.
func (n *SlackNotifier) DispatchSucceeded(alertName, workflow, executionID, requestID string) {
	text := fmt.Sprintf(":white_check_mark: *%s* dispatched to `%s`\nExecution: `%s`\nRequest: `%s`",
		alertName, workflow, executionID, requestID)
	n.post(text)
}

// DispatchFailed posts a failure message. The task will be redelivered by
// the queue, so this is informational only.
func (n *SlackNotifier) DispatchFailed(alertName, workflow, requestID string, err error) {
	text := fmt.Sprintf(":red_circle: Dispatch of *%s* to `%s` failed (request `%s`): %v",
		alertName, workflow, requestID, err)
	n.post(text)
}

func (n *SlackNotifier) post(text string) {
	_, _, err := n.client.PostMessage(n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("Failed to post dispatch notification to Slack: %v", err)
	}
}
