// Package slackbot answers questions asked in Slack direct messages, mentions and slash commands.
package slackbot

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/hyperjump/primr/internal/models"
	"github.com/hyperjump/primr/pkg/utils"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"go.uber.org/zap"
)

// Messages sent by the bot outside of answers.
const (
	GreetingMessage  = "👋 Hi! I'm Primr Assistant. Ask me anything about our company documents!"
	SearchingMessage = "🔍 Searching our knowledge base..."
	ReadyMessage     = "🟢 Bot is running and ready to answer questions!"
	NotReadyMessage  = "🟡 Bot is running but the knowledge base is not loaded yet. Ask an admin to run ingestion."
	ErrorMessage     = "😅 I'm having some technical difficulties. Please try again in a moment!"
)

// Answerer answers one question.
type Answerer interface {
	AnswerDetailed(ctx context.Context, question string, k int) models.Answer
}

// Poster sends a message to a channel, in a thread when threadTS is set.
type Poster interface {
	Post(ctx context.Context, channel, threadTS, text string) error
}

// Bot turns Slack events into answers. It holds no Slack connection; see Client.
type Bot struct {
	answerer      Answerer
	ready         func() bool
	poster        Poster
	botUserID     string
	askCommand    string
	statusCommand string
	logger        *zap.Logger
}

// BotOption configures a Bot.
type BotOption func(*Bot)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) BotOption {
	return func(b *Bot) { b.logger = l }
}

// WithCommands sets the slash command names.
func WithCommands(ask, status string) BotOption {
	return func(b *Bot) {
		if ask != "" {
			b.askCommand = ask
		}
		if status != "" {
			b.statusCommand = status
		}
	}
}

// WithBotUserID sets the bot's own user ID, used to recognize and strip mentions.
func WithBotUserID(id string) BotOption {
	return func(b *Bot) { b.botUserID = id }
}

// NewBot creates a bot. ready reports whether the knowledge base is loaded.
func NewBot(answerer Answerer, ready func() bool, poster Poster, opts ...BotOption) *Bot {
	b := &Bot{
		answerer:      answerer,
		ready:         ready,
		poster:        poster,
		askCommand:    "/ask-primr",
		statusCommand: "/primr-status",
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = utils.OrNop(b.logger)
	return b
}

// UsageMessage is the hint returned for an empty ask command.
func (b *Bot) UsageMessage() string {
	return fmt.Sprintf("Please provide a question! Example: `%s What is our vacation policy?`", b.askCommand)
}

// HandleMessage answers direct messages. Messages from bots, edits and messages that
// mention the bot are ignored; mentions arrive separately as app_mention events.
func (b *Bot) HandleMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	if ev.ChannelType != "im" || ev.BotID != "" || ev.SubType != "" {
		return
	}
	if b.botUserID != "" && strings.Contains(ev.Text, mention(b.botUserID)) {
		return
	}
	b.converse(ctx, ev.Channel, ev.ThreadTimeStamp, ev.Text)
}

// HandleMention answers an @mention in a channel, replying in the same thread.
func (b *Bot) HandleMention(ctx context.Context, ev *slackevents.AppMentionEvent) {
	if ev.BotID != "" {
		return
	}
	thread := ev.ThreadTimeStamp
	if thread == "" {
		thread = ev.TimeStamp
	}
	b.converse(ctx, ev.Channel, thread, stripMention(ev.Text, b.botUserID))
}

// HandleSlashCommand returns the text to acknowledge cmd with and, for a question,
// a follow-up that posts the answer to the command's channel.
func (b *Bot) HandleSlashCommand(cmd slack.SlashCommand) (ack string, followUp func(ctx context.Context)) {
	switch cmd.Command {
	case b.statusCommand:
		return b.statusLine(), nil
	case b.askCommand:
		question := strings.TrimSpace(cmd.Text)
		if question == "" {
			return b.UsageMessage(), nil
		}
		return SearchingMessage, func(ctx context.Context) {
			res := b.answerer.AnswerDetailed(ctx, question, 0)
			text := fmt.Sprintf("💡 *Answer to:* %s\n\n%s", question, res.Answer)
			if res.Outcome != models.OutcomeAnswered {
				text = formatAnswer(res)
			}
			b.post(ctx, cmd.ChannelID, "", text)
		}
	default:
		b.logger.Warn("unknown slash command", zap.String("command", cmd.Command))
		return fmt.Sprintf("Unknown command %s", cmd.Command), nil
	}
}

func (b *Bot) converse(ctx context.Context, channel, thread, text string) {
	question := strings.TrimSpace(text)
	if question == "" {
		b.post(ctx, channel, thread, GreetingMessage)
		return
	}
	b.post(ctx, channel, thread, SearchingMessage)
	res := b.answerer.AnswerDetailed(ctx, question, 0)
	b.logger.Info("slack question answered",
		zap.String("channel", channel),
		zap.String("outcome", string(res.Outcome)),
		zap.Int64("duration_ms", res.DurationMS))
	b.post(ctx, channel, thread, formatAnswer(res))
}

func (b *Bot) statusLine() string {
	if b.ready != nil && b.ready() {
		return ReadyMessage
	}
	return NotReadyMessage
}

func (b *Bot) post(ctx context.Context, channel, thread, text string) {
	if err := b.poster.Post(ctx, channel, thread, text); err != nil {
		b.logger.Error("failed to post slack message", zap.String("channel", channel), zap.Error(err))
	}
}

// guard runs fn and logs a panic instead of letting it stop the event loop.
func (b *Bot) guard(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("slack handler panicked",
				zap.String("handler", name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	fn()
}

// formatAnswer prefixes the answer text with an emoji for its outcome.
func formatAnswer(res models.Answer) string {
	switch res.Outcome {
	case models.OutcomeAnswered:
		return "💡 " + res.Answer
	case models.OutcomeNoKnowledge:
		return "📁 " + res.Answer
	case models.OutcomeFailed:
		return ErrorMessage
	default:
		return res.Answer
	}
}

func mention(userID string) string {
	return "<@" + userID + ">"
}

// stripMention removes mentions of userID from text and trims it.
func stripMention(text, userID string) string {
	if userID != "" {
		text = strings.ReplaceAll(text, mention(userID), "")
	}
	return strings.TrimSpace(text)
}
