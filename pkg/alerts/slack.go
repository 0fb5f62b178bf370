package alerts

import (
	"context"
	"fmt"
	"os"

	goslack "github.com/slack-go/slack"

	"github.com/cruciblehq/crucible/pkg/config"
	"github.com/cruciblehq/crucible/pkg/models"
)

const maxSlackTextLength = 2900

var priorityEmoji = map[models.AlertPriority]string{
	models.PriorityLow:      ":information_source:",
	models.PriorityMedium:   ":warning:",
	models.PriorityHigh:     ":x:",
	models.PriorityCritical: ":rotating_light:",
	models.PriorityUrgent:   ":rotating_light:",
}

// SlackChannel posts notifications to Slack: through the Web API when a
// bot token is configured, through an incoming webhook otherwise.
type SlackChannel struct {
	api        *goslack.Client
	channelID  string
	webhookURL string
}

// NewSlackChannel builds the channel from configuration. The bot token is
// read from the environment variable named by cfg.TokenEnv.
func NewSlackChannel(cfg *config.SlackChannelConfig) *SlackChannel {
	c := &SlackChannel{channelID: cfg.Channel, webhookURL: cfg.WebhookURL}
	if cfg.TokenEnv != "" {
		if token := os.Getenv(cfg.TokenEnv); token != "" {
			c.api = goslack.New(token)
		}
	}
	return c
}

func (c *SlackChannel) Type() models.ChannelType { return models.ChannelSlack }

func (c *SlackChannel) ValidateConfig() error {
	if c.api == nil && c.webhookURL == "" {
		return fmt.Errorf("neither bot token nor webhook url configured")
	}
	if c.api != nil && c.channelID == "" {
		return fmt.Errorf("channel id required with a bot token")
	}
	return nil
}

func (c *SlackChannel) Send(ctx context.Context, n *models.Notification) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if c.api != nil {
		_, _, err := c.api.PostMessageContext(ctx, c.channelID, goslack.MsgOptionBlocks(buildAlertBlocks(n)...))
		if err != nil {
			return false, fmt.Errorf("slack post: %w", err)
		}
		return true, nil
	}
	msg := &goslack.WebhookMessage{
		Text: fmt.Sprintf("%s *%s*\n%s", emojiFor(n.Priority), n.Subject, truncateForSlack(n.Content)),
	}
	if err := goslack.PostWebhookContext(ctx, c.webhookURL, msg); err != nil {
		return false, fmt.Errorf("slack webhook: %w", err)
	}
	return true, nil
}

// buildAlertBlocks creates Block Kit blocks: a header line carrying the
// priority emoji and subject, then the rendered content.
func buildAlertBlocks(n *models.Notification) []goslack.Block {
	header := fmt.Sprintf("%s *%s*", emojiFor(n.Priority), n.Subject)
	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
	}
	if n.Content != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(n.Content), false, false),
			nil, nil,
		))
	}
	return blocks
}

func emojiFor(p models.AlertPriority) string {
	if emoji, ok := priorityEmoji[p]; ok {
		return emoji
	}
	return ":bell:"
}

func truncateForSlack(text string) string {
	if len(text) <= maxSlackTextLength {
		return text
	}
	return text[:maxSlackTextLength] + "\n_... truncated_"
}
