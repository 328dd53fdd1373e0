// Package platform defines the narrow boundary to the messaging platform.
// The resolution core talks to these types only; the concrete transport
// lives in the telegram subpackage.
package platform

import (
	"context"

	"norelock.dev/nowplaying/bot/internal/models"
)

// MessageRef identifies the one message an inline result produced. Edits
// must target exactly this message.
type MessageRef struct {
	// InlineMessageID is the platform identifier of the sent inline message.
	InlineMessageID string `json:"inlineMessageId"`
}

// AudioAttributes are the display attributes attached to uploaded audio.
type AudioAttributes struct {
	// Duration of the audio in seconds.
	Duration int `json:"duration"`

	// Title of the track.
	Title string `json:"title"`

	// Performer of the track.
	Performer string `json:"performer"`
}

// Button is one inline keyboard button.
type Button struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// InlineResult is one selectable entry in an inline-query answer. Every
// result, resolved or not, carries a structurally valid audio attachment.
type InlineResult struct {
	// ID is the opaque key the platform round-trips back on selection.
	ID string

	// Title and Description are the display strings in the result list.
	Title       string
	Description string

	// Media is the attached audio document: either the real resolved
	// upload or the placeholder.
	Media models.ResolvedMedia

	// Attributes are the audio display attributes.
	Attributes AudioAttributes

	// Text is the HTML message text sent when the result is picked.
	Text string

	// Loading marks an unresolved result; the platform renders a loading
	// button until the fulfillment pipeline patches the message.
	Loading bool
}

// SelectionEvent is the asynchronous notification that a user picked an
// inline result.
type SelectionEvent struct {
	// ResultID is the InlineResult.ID of the picked result.
	ResultID string

	// Message references the message the platform created for the result.
	Message MessageRef

	// ChatUserID is the user who picked the result.
	ChatUserID int64
}

// Messenger is the platform capability the core depends on.
type Messenger interface {
	// UploadAudio uploads audio bytes as attachable media and returns the
	// platform reference to the stored document.
	UploadAudio(ctx context.Context, data []byte, fileName string, attrs AudioAttributes) (models.ResolvedMedia, error)

	// EditMessageMedia replaces the media and text of an already-sent
	// message in place.
	EditMessageMedia(ctx context.Context, ref MessageRef, media models.ResolvedMedia, attrs AudioAttributes, text string) error

	// AnswerInlineQuery sends the result list for an inline query. Must be
	// called within the platform's answer deadline. A non-empty prompt is
	// shown above the results as a button that opens the bot chat.
	AnswerInlineQuery(ctx context.Context, queryID string, results []InlineResult, prompt string) error

	// SendMessage sends a plain chat message, optionally with an inline
	// keyboard.
	SendMessage(ctx context.Context, chatID int64, text string, buttons [][]Button) error
}
