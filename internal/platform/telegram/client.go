// Package telegram implements the platform boundary over the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"norelock.dev/nowplaying/bot/internal/config"
	"norelock.dev/nowplaying/bot/internal/models"
	"norelock.dev/nowplaying/bot/internal/platform"
	"norelock.dev/nowplaying/bot/internal/utils"
)

// Client talks to the Telegram Bot API over HTTPS. It implements
// platform.Messenger.
type Client struct {
	baseURL       string
	token         string
	storageChatID int64
	pollTimeout   time.Duration
	http          *http.Client
	logger        *utils.Logger
}

// NewClient creates a Bot API client from configuration.
func NewClient(cfg *config.Config, logger *utils.Logger) *Client {
	return &Client{
		baseURL:       cfg.Telegram.APIURL,
		token:         cfg.Telegram.Token,
		storageChatID: cfg.Telegram.StorageChatID,
		pollTimeout:   cfg.Telegram.PollTimeout,
		// getUpdates long-polls, so the HTTP timeout must exceed it
		http:   &http.Client{Timeout: cfg.Telegram.PollTimeout + 10*time.Second},
		logger: logger.Named("telegram"),
	}
}

// call performs one Bot API method with a JSON body and decodes the result.
func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return models.NewPlatformError(err, "failed to encode request")
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return models.NewPlatformError(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, method, result)
}

func (c *Client) do(req *http.Request, method string, result any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return models.NewPlatformError(err, fmt.Sprintf("%s request failed", method))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.NewPlatformError(err, fmt.Sprintf("%s response read failed", method))
	}

	var envelope apiResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return models.NewPlatformError(err, fmt.Sprintf("%s response decode failed", method))
	}
	if !envelope.OK {
		return models.NewPlatformError(nil,
			fmt.Sprintf("%s: %s", method, envelope.Description)).
			WithDetails(map[string]any{"errorCode": envelope.ErrorCode})
	}

	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return models.NewPlatformError(err, fmt.Sprintf("%s result decode failed", method))
		}
	}
	return nil
}

// GetUpdates long-polls the Bot API for the next batch of updates.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	params := map[string]any{
		"offset":  offset,
		"timeout": int(c.pollTimeout.Seconds()),
		"allowed_updates": []string{
			"message", "callback_query", "inline_query", "chosen_inline_result",
		},
	}

	var updates []Update
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// UploadAudio uploads audio bytes by sending them to the storage chat and
// returns the platform reference to the stored document.
func (c *Client) UploadAudio(ctx context.Context, data []byte, fileName string, attrs platform.AudioAttributes) (models.ResolvedMedia, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fields := map[string]string{
		"chat_id":   strconv.FormatInt(c.storageChatID, 10),
		"duration":  strconv.Itoa(attrs.Duration),
		"title":     attrs.Title,
		"performer": attrs.Performer,
		// Uploads are parked in the storage chat; keep it quiet
		"disable_notification": "true",
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return models.ResolvedMedia{}, models.NewPlatformError(err, "failed to build upload form")
		}
	}

	part, err := writer.CreateFormFile("audio", fileName)
	if err != nil {
		return models.ResolvedMedia{}, models.NewPlatformError(err, "failed to build upload form")
	}
	if _, err := part.Write(data); err != nil {
		return models.ResolvedMedia{}, models.NewPlatformError(err, "failed to write upload body")
	}
	if err := writer.Close(); err != nil {
		return models.ResolvedMedia{}, models.NewPlatformError(err, "failed to finish upload form")
	}

	url := fmt.Sprintf("%s/bot%s/sendAudio", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return models.ResolvedMedia{}, models.NewPlatformError(err, "failed to build upload request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var msg Message
	if err := c.do(req, "sendAudio", &msg); err != nil {
		return models.ResolvedMedia{}, fmt.Errorf("%w: %w", models.ErrUploadFailed, err)
	}
	if msg.Audio == nil {
		return models.ResolvedMedia{}, fmt.Errorf("%w: sendAudio returned no audio document", models.ErrUploadFailed)
	}

	c.logger.Debug("Uploaded audio", "fileId", msg.Audio.FileID, "bytes", len(data))

	return models.ResolvedMedia{
		MediaID:        msg.Audio.FileID,
		AccessSecret:   msg.Audio.FileUniqueID,
		ReferenceToken: strconv.FormatInt(msg.MessageID, 10),
	}, nil
}

// EditMessageMedia swaps the media and caption of a sent inline message.
func (c *Client) EditMessageMedia(ctx context.Context, ref platform.MessageRef, media models.ResolvedMedia, attrs platform.AudioAttributes, text string) error {
	params := map[string]any{
		"inline_message_id": ref.InlineMessageID,
		"media": inputMediaAudio{
			Type:      "audio",
			Media:     media.MediaID,
			Caption:   text,
			ParseMode: "HTML",
			Duration:  attrs.Duration,
			Performer: attrs.Performer,
			Title:     attrs.Title,
		},
	}

	return c.call(ctx, "editMessageMedia", params, nil)
}

// AnswerInlineQuery sends the result list for an inline query.
func (c *Client) AnswerInlineQuery(ctx context.Context, queryID string, results []platform.InlineResult, prompt string) error {
	encoded := make([]inlineQueryResultCachedAudio, 0, len(results))
	for _, res := range results {
		entry := inlineQueryResultCachedAudio{
			Type:        "audio",
			ID:          res.ID,
			AudioFileID: res.Media.MediaID,
			Caption:     res.Text,
			ParseMode:   "HTML",
		}
		if res.Loading {
			entry.ReplyMarkup = &inlineKeyboardMarkup{
				InlineKeyboard: [][]inlineKeyboardButton{
					{{Text: "Loading", CallbackData: "loading"}},
				},
			}
		}
		encoded = append(encoded, entry)
	}

	params := map[string]any{
		"inline_query_id": queryID,
		"results":         encoded,
		// Results are per-user (recently played), never shared
		"is_personal": true,
		"cache_time":  0,
	}
	if prompt != "" {
		params["button"] = inlineQueryResultsButton{
			Text:           prompt,
			StartParameter: "link",
		}
	}

	return c.call(ctx, "answerInlineQuery", params, nil)
}

// SendMessage sends a plain chat message with an optional inline keyboard.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, buttons [][]platform.Button) error {
	params := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}

	if len(buttons) > 0 {
		markup := inlineKeyboardMarkup{}
		for _, row := range buttons {
			encoded := make([]inlineKeyboardButton, 0, len(row))
			for _, b := range row {
				encoded = append(encoded, inlineKeyboardButton{
					Text:         b.Text,
					CallbackData: b.CallbackData,
					URL:          b.URL,
				})
			}
			markup.InlineKeyboard = append(markup.InlineKeyboard, encoded)
		}
		params["reply_markup"] = markup
	}

	return c.call(ctx, "sendMessage", params, nil)
}

// AnswerCallbackQuery acknowledges a pressed inline keyboard button.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	params := map[string]any{
		"callback_query_id": callbackID,
	}
	if text != "" {
		params["text"] = text
	}

	return c.call(ctx, "answerCallbackQuery", params, nil)
}
