package telegram

import (
	"context"

	"github.com/mymmrac/telego"
)

// DefaultMenuCommands is the bot command menu shown by Telegram clients.
func DefaultMenuCommands() []telego.BotCommand {
	return []telego.BotCommand{
		{Command: "connect", Description: "Show the agent's web URL"},
		{Command: "version", Description: "Show bot version"},
		{Command: "model", Description: "Show or set the session model"},
		{Command: "interrupt", Description: "Stop running work"},
		{Command: "plan", Description: "Switch the agent to plan mode"},
		{Command: "build", Description: "Switch the agent to build mode"},
		{Command: "review", Description: "Review a commit, branch, or PR"},
		{Command: "rename", Description: "Rename this session"},
		{Command: "cap", Description: "Run a shell command and capture output"},
		{Command: "ps", Description: "List tracked shell processes"},
		{Command: "dev", Description: "List known devices"},
		{Command: "use", Description: "Make a device active"},
		{Command: "stop", Description: "Remove a standby device"},
		{Command: "restart", Description: "Restart the bot"},
		{Command: "upgrade", Description: "Upgrade and restart the bot"},
		{Command: "start", Description: "Start an instance in another directory"},
	}
}

// SetCommands publishes the command menu. Idempotent; safe to call on
// every startup.
func (c *Client) SetCommands(ctx context.Context, commands []telego.BotCommand) error {
	err := c.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: commands})
	return classify(err)
}
