package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"norelock.dev/nowplaying/bot/internal/auth"
	"norelock.dev/nowplaying/bot/internal/db/mongo/repositories"
	"norelock.dev/nowplaying/bot/internal/models"
	"norelock.dev/nowplaying/bot/internal/platform"
	"norelock.dev/nowplaying/bot/internal/utils"
)

const linkedPage = `<!DOCTYPE html>
<html><head><title>Account linked</title></head>
<body><p>Account linked. You can close this window and return to the chat.</p></body></html>`

// LinkHandler completes provider OAuth flows started from the bot. The
// signed state token carries the chat user, so the callback needs no
// session of its own.
const spotifyProfileURL = "https://api.spotify.com/v1/me"

type LinkHandler struct {
	oauth      *oauth2.Config
	signer     *auth.StateSigner
	accounts   repositories.AccountRepository
	messenger  platform.Messenger
	profileURL string
	logger     *utils.Logger
}

// NewLinkHandler creates a new link handler.
func NewLinkHandler(
	oauth *oauth2.Config,
	signer *auth.StateSigner,
	accounts repositories.AccountRepository,
	messenger platform.Messenger,
	logger *utils.Logger,
) *LinkHandler {
	return &LinkHandler{
		oauth:      oauth,
		signer:     signer,
		accounts:   accounts,
		messenger:  messenger,
		profileURL: spotifyProfileURL,
		logger:     logger.Named("link_handler"),
	}
}

// SpotifyCallback handles the authorization-code redirect from Spotify.
func (h *LinkHandler) SpotifyCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	code := query.Get("code")
	state := query.Get("state")

	if code == "" || state == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Missing code or state")
		return
	}

	chatUserID, err := h.signer.Verify(state)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredState) {
			utils.RespondWithError(w, http.StatusBadRequest, "Link request expired, start again from the chat")
			return
		}
		h.logger.Warn("Rejected link callback", "error", err, "ip", utils.GetRequestIP(r))
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid state")
		return
	}

	token, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("Code exchange failed", err, "chatUserId", chatUserID)
		utils.RespondWithError(w, http.StatusBadGateway, "Could not complete authorization")
		return
	}

	creds := models.ProviderCredentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		Username:     h.fetchDisplayName(r.Context(), token),
	}

	if _, err := h.accounts.UpsertProvider(r.Context(), chatUserID, models.ProviderSpotify, creds, true); err != nil {
		h.logger.Error("Failed to store linked account", err, "chatUserId", chatUserID)
		utils.RespondWithError(w, http.StatusInternalServerError, "Could not save the linked account")
		return
	}

	h.logger.Info("Linked Spotify account", "chatUserId", chatUserID)
	h.notify(chatUserID)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(linkedPage))
}

// fetchDisplayName asks Spotify for the account's display name. Best
// effort: the link works without it.
func (h *LinkHandler) fetchDisplayName(ctx context.Context, token *oauth2.Token) string {
	client := h.oauth.Client(ctx, token)

	resp, err := client.Get(h.profileURL)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var profile struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return ""
	}
	return profile.DisplayName
}

// notify tells the user in chat that linking succeeded.
func (h *LinkHandler) notify(chatUserID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	text := "Spotify account connected. Mention me in any chat to share what you're listening to."
	if err := h.messenger.SendMessage(ctx, chatUserID, text, nil); err != nil {
		h.logger.Warn("Failed to send link confirmation", "chatUserId", chatUserID, "error", err)
	}
}
