// Package bot runs the update loop: it long-polls the platform and routes
// inline queries, result selections, commands and keyboard presses to the
// services that handle them.
package bot

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"norelock.dev/nowplaying/bot/internal/auth"
	"norelock.dev/nowplaying/bot/internal/db/mongo/repositories"
	"norelock.dev/nowplaying/bot/internal/models"
	"norelock.dev/nowplaying/bot/internal/platform"
	"norelock.dev/nowplaying/bot/internal/platform/telegram"
	"norelock.dev/nowplaying/bot/internal/utils"
)

const (
	// answerTimeout bounds work done for one inline query; the platform
	// stops waiting for the answer shortly after.
	answerTimeout = 10 * time.Second

	// retryDelay is the pause after a failed getUpdates poll.
	retryDelay = 3 * time.Second

	callbackLinkSpotify = "link:spotify"
	callbackLoading     = "loading"
)

// API is the slice of the telegram client the update loop needs beyond the
// platform.Messenger capabilities.
type API interface {
	GetUpdates(ctx context.Context, offset int64) ([]telegram.Update, error)
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
	SendMessage(ctx context.Context, chatID int64, text string, buttons [][]platform.Button) error
}

// InlineFrontEnd answers inline queries and accepts selections. Satisfied by
// inline.Service.
type InlineFrontEnd interface {
	AnswerQuery(ctx context.Context, queryID string, chatUserID int64) error
	OnSelection(event platform.SelectionEvent)
}

// MetricsSink receives update-loop metrics. Satisfied by
// system.MetricsService.
type MetricsSink interface {
	IncUpdates(updateType string)
}

// Options configures the bot.
type Options struct {
	// SpotifyOAuth is the config used to build authorize URLs for the
	// Spotify linking flow. Nil disables the flow.
	SpotifyOAuth *oauth2.Config

	// LastFMEnabled enables the /lastfm linking command.
	LastFMEnabled bool
}

// Bot routes platform updates.
type Bot struct {
	api      API
	inline   InlineFrontEnd
	accounts repositories.AccountRepository
	signer   *auth.StateSigner
	metrics  MetricsSink
	opts     Options
	logger   *utils.Logger
}

// New creates a bot.
func New(
	api API,
	inline InlineFrontEnd,
	accounts repositories.AccountRepository,
	signer *auth.StateSigner,
	metrics MetricsSink,
	opts Options,
	logger *utils.Logger,
) *Bot {
	return &Bot{
		api:      api,
		inline:   inline,
		accounts: accounts,
		signer:   signer,
		metrics:  metrics,
		opts:     opts,
		logger:   logger.Named("bot"),
	}
}

// Run polls for updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Update loop started")

	var offset int64
	for {
		updates, err := b.api.GetUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Error("Failed to poll updates", err)
			select {
			case <-time.After(retryDelay):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update telegram.Update) {
	switch {
	case update.InlineQuery != nil:
		b.metrics.IncUpdates("inline_query")
		query := update.InlineQuery
		// Answering may upload placeholders; don't hold up the poll loop.
		go func() {
			ctx, cancel := context.WithTimeout(ctx, answerTimeout)
			defer cancel()
			_ = b.inline.AnswerQuery(ctx, query.ID, query.From.ID)
		}()

	case update.ChosenInlineResult != nil:
		b.metrics.IncUpdates("chosen_inline_result")
		b.handleSelection(update.ChosenInlineResult)

	case update.CallbackQuery != nil:
		b.metrics.IncUpdates("callback_query")
		b.handleCallback(ctx, update.CallbackQuery)

	case update.Message != nil && update.Message.Text != "":
		b.metrics.IncUpdates("message")
		b.handleCommand(ctx, update.Message)
	}
}

// handleSelection forwards a picked inline result to fulfillment. Results
// sent without an inline message ID cannot be edited later, so they are
// dropped here.
func (b *Bot) handleSelection(chosen *telegram.ChosenInlineResult) {
	if chosen.InlineMessageID == "" {
		b.logger.Debug("Selection without inline message id", "resultId", chosen.ResultID)
		return
	}

	b.inline.OnSelection(platform.SelectionEvent{
		ResultID:   chosen.ResultID,
		Message:    platform.MessageRef{InlineMessageID: chosen.InlineMessageID},
		ChatUserID: chosen.From.ID,
	})
}

func (b *Bot) handleCallback(ctx context.Context, callback *telegram.CallbackQuery) {
	switch callback.Data {
	case callbackLinkSpotify:
		_ = b.api.AnswerCallbackQuery(ctx, callback.ID, "")
		b.sendSpotifyAuthorizeLink(ctx, callback.From.ID)
	case callbackLoading:
		_ = b.api.AnswerCallbackQuery(ctx, callback.ID, "Still working on it…")
	default:
		_ = b.api.AnswerCallbackQuery(ctx, callback.ID, "")
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *telegram.Message) {
	command, args := splitCommand(msg.Text)

	switch command {
	case "/start", "/help":
		b.sendWelcome(ctx, msg.Chat.ID)
	case "/lastfm":
		b.linkLastFM(ctx, msg.Chat.ID, args)
	}
}

func (b *Bot) sendWelcome(ctx context.Context, chatID int64) {
	text := "I share the track you're listening to in any chat: type my name " +
		"in the message field and pick a track.\n\nConnect a music account to get started."
	if b.opts.LastFMEnabled {
		text += "\nFor Last.fm, send /lastfm followed by your username."
	}

	var buttons [][]platform.Button
	if b.opts.SpotifyOAuth != nil {
		buttons = [][]platform.Button{
			{{Text: "Connect Spotify", CallbackData: callbackLinkSpotify}},
		}
	}

	if err := b.api.SendMessage(ctx, chatID, text, buttons); err != nil {
		b.logger.Error("Failed to send welcome", err, "chatId", chatID)
	}
}

// sendSpotifyAuthorizeLink starts the Spotify linking flow: the state token
// carries the chat user through the authorization redirect and back to the
// callback handler.
func (b *Bot) sendSpotifyAuthorizeLink(ctx context.Context, chatUserID int64) {
	if b.opts.SpotifyOAuth == nil {
		return
	}

	state, err := b.signer.Sign(chatUserID)
	if err != nil {
		b.logger.Error("Failed to sign link state", err, "chatUserId", chatUserID)
		return
	}

	url := b.opts.SpotifyOAuth.AuthCodeURL(state)
	buttons := [][]platform.Button{{{Text: "Authorize on Spotify", URL: url}}}

	if err := b.api.SendMessage(ctx, chatUserID, "Authorize access to your recently played tracks:", buttons); err != nil {
		b.logger.Error("Failed to send authorize link", err, "chatUserId", chatUserID)
	}
}

func (b *Bot) linkLastFM(ctx context.Context, chatID int64, args string) {
	if !b.opts.LastFMEnabled {
		return
	}

	username := strings.TrimSpace(args)
	if username == "" {
		_ = b.api.SendMessage(ctx, chatID, "Send /lastfm followed by your Last.fm username.", nil)
		return
	}

	creds := models.ProviderCredentials{Username: username}
	if _, err := b.accounts.UpsertProvider(ctx, chatID, models.ProviderLastFM, creds, true); err != nil {
		b.logger.Error("Failed to link Last.fm account", err, "chatId", chatID)
		_ = b.api.SendMessage(ctx, chatID, "Could not save that username, try again later.", nil)
		return
	}

	text := fmt.Sprintf("Linked Last.fm account <b>%s</b>. Mention me in any chat to share what you're listening to.", html.EscapeString(username))
	if err := b.api.SendMessage(ctx, chatID, text, nil); err != nil {
		b.logger.Error("Failed to confirm Last.fm link", err, "chatId", chatID)
	}
}

// splitCommand splits "/cmd@botname args" into the command and its argument
// string.
func splitCommand(text string) (string, string) {
	command, args, _ := strings.Cut(text, " ")
	if at := strings.Index(command, "@"); at != -1 {
		command = command[:at]
	}
	return command, args
}
