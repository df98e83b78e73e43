package slackbot

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/primr/internal/config"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"
)

// CheckEnv fails with the names of every unset or empty environment variable in names.
// Repeated names are reported once.
func CheckEnv(names ...string) error {
	seen := make(map[string]bool, len(names))
	unique := names[:0:0]
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			unique = append(unique, n)
		}
	}
	if missing := config.MissingEnv(unique...); len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// apiPoster posts through the Slack Web API.
type apiPoster struct {
	api *slack.Client
}

func (p *apiPoster) Post(ctx context.Context, channel, threadTS, text string) error {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	_, _, err := p.api.PostMessageContext(ctx, channel, opts...)
	return err
}

// Client connects a Bot to Slack over Socket Mode.
type Client struct {
	api    *slack.Client
	socket *socketmode.Client
	bot    *Bot
	logger *zap.Logger
}

// Connect authenticates with botToken and prepares a Socket Mode connection using appToken.
// The bot's user ID comes from the auth test and is used to handle mentions.
func Connect(ctx context.Context, botToken, appToken string, answerer Answerer, ready func() bool, opts ...BotOption) (*Client, error) {
	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	auth, err := api.AuthTestContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("slack auth test: %w", err)
	}
	opts = append(opts, WithBotUserID(auth.UserID))
	bot := NewBot(answerer, ready, &apiPoster{api: api}, opts...)
	bot.logger.Info("connected to slack",
		zap.String("team", auth.Team),
		zap.String("bot_user_id", auth.UserID))
	return &Client{
		api:    api,
		socket: socketmode.New(api),
		bot:    bot,
		logger: bot.logger,
	}, nil
}

// Run processes events until ctx is cancelled or the connection fails.
func (c *Client) Run(ctx context.Context) error {
	go c.loop(ctx)
	return c.socket.RunContext(ctx)
}

func (c *Client) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.socket.Events:
			if !ok {
				return
			}
			c.dispatch(ctx, evt)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		c.logger.Info("connecting to slack socket mode")
	case socketmode.EventTypeConnectionError:
		c.logger.Warn("slack connection error, retrying")
	case socketmode.EventTypeConnected:
		c.logger.Info("slack socket mode connected")
	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			c.socket.Ack(*evt.Request)
		}
		if apiEvent.Type != slackevents.CallbackEvent {
			return
		}
		switch ev := apiEvent.InnerEvent.Data.(type) {
		case *slackevents.MessageEvent:
			go c.bot.guard("message", func() { c.bot.HandleMessage(ctx, ev) })
		case *slackevents.AppMentionEvent:
			go c.bot.guard("app_mention", func() { c.bot.HandleMention(ctx, ev) })
		}
	case socketmode.EventTypeSlashCommand:
		cmd, ok := evt.Data.(slack.SlashCommand)
		if !ok {
			return
		}
		ack, followUp := c.bot.HandleSlashCommand(cmd)
		if evt.Request != nil {
			c.socket.Ack(*evt.Request, map[string]any{"text": ack})
		}
		if followUp != nil {
			go c.bot.guard("slash_command", func() { followUp(ctx) })
		}
	}
}
