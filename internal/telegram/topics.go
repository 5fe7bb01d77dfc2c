package telegram

import (
	"context"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// CreateForumTopic opens a new topic in the configured chat and returns
// its thread id.
func (c *Client) CreateForumTopic(ctx context.Context, name string) (int, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	topic, err := c.bot.CreateForumTopic(ctx, &telego.CreateForumTopicParams{
		ChatID: tu.ID(c.chatID),
		Name:   TruncateTopicName(name),
	})
	if err != nil {
		return 0, classify(err)
	}
	return topic.MessageThreadID, nil
}

// EditForumTopic renames an existing topic.
func (c *Client) EditForumTopic(ctx context.Context, threadID int, name string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	err := c.bot.EditForumTopic(ctx, &telego.EditForumTopicParams{
		ChatID:          tu.ID(c.chatID),
		MessageThreadID: threadID,
		Name:            TruncateTopicName(name),
	})
	return classify(err)
}
