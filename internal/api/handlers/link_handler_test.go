package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"norelock.dev/nowplaying/bot/internal/auth"
	"norelock.dev/nowplaying/bot/internal/models"
	"norelock.dev/nowplaying/bot/internal/platform"
	"norelock.dev/nowplaying/bot/internal/utils"
)

type fakeAccountRepo struct {
	upserts []int64
	creds   models.ProviderCredentials
}

func (f *fakeAccountRepo) FindByChatUserID(context.Context, int64) (*models.LinkedAccount, error) {
	return nil, models.ErrAccountNotFound
}

func (f *fakeAccountRepo) UpsertProvider(_ context.Context, chatUserID int64, _ string, creds models.ProviderCredentials, _ bool) (*models.LinkedAccount, error) {
	f.upserts = append(f.upserts, chatUserID)
	f.creds = creds
	return &models.LinkedAccount{ChatUserID: chatUserID}, nil
}

type fakeMessenger struct {
	messages []int64
}

func (f *fakeMessenger) UploadAudio(context.Context, []byte, string, platform.AudioAttributes) (models.ResolvedMedia, error) {
	return models.ResolvedMedia{}, nil
}

func (f *fakeMessenger) EditMessageMedia(context.Context, platform.MessageRef, models.ResolvedMedia, platform.AudioAttributes, string) error {
	return nil
}

func (f *fakeMessenger) AnswerInlineQuery(context.Context, string, []platform.InlineResult, string) error {
	return nil
}

func (f *fakeMessenger) SendMessage(_ context.Context, chatID int64, _ string, _ [][]platform.Button) error {
	f.messages = append(f.messages, chatID)
	return nil
}

func newTestHandler(t *testing.T) (*LinkHandler, *fakeAccountRepo, *fakeMessenger, *auth.StateSigner) {
	t.Helper()

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600}`))
		case "/me":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"display_name":"someone"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(provider.Close)

	oauth := &oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/link/spotify/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:  provider.URL + "/authorize",
			TokenURL: provider.URL + "/token",
		},
	}

	signer := auth.NewStateSigner("test-secret", 15*time.Minute, utils.NewNopLogger())
	accounts := &fakeAccountRepo{}
	messenger := &fakeMessenger{}

	h := NewLinkHandler(oauth, signer, accounts, messenger, utils.NewNopLogger())
	h.profileURL = provider.URL + "/me"
	return h, accounts, messenger, signer
}

func callbackRequest(code, state string) *http.Request {
	query := url.Values{}
	if code != "" {
		query.Set("code", code)
	}
	if state != "" {
		query.Set("state", state)
	}
	return httptest.NewRequest(http.MethodGet, "/link/spotify/callback?"+query.Encode(), nil)
}

func TestSpotifyCallbackLinksAccount(t *testing.T) {
	h, accounts, messenger, signer := newTestHandler(t)

	state, err := signer.Sign(42)
	if err != nil {
		t.Fatalf("Sign() returned error: %v", err)
	}

	rec := httptest.NewRecorder()
	h.SpotifyCallback(rec, callbackRequest("auth-code", state))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}
	if len(accounts.upserts) != 1 || accounts.upserts[0] != 42 {
		t.Fatalf("upserts = %v, want [42]", accounts.upserts)
	}
	if accounts.creds.AccessToken != "at" || accounts.creds.RefreshToken != "rt" {
		t.Errorf("stored credentials = %+v", accounts.creds)
	}
	if accounts.creds.Username != "someone" {
		t.Errorf("stored username = %q, want someone", accounts.creds.Username)
	}
	if len(messenger.messages) != 1 || messenger.messages[0] != 42 {
		t.Errorf("confirmation messages = %v, want [42]", messenger.messages)
	}
}

func TestSpotifyCallbackRejectsBadState(t *testing.T) {
	h, accounts, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.SpotifyCallback(rec, callbackRequest("auth-code", "forged-state"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(accounts.upserts) != 0 {
		t.Error("forged state still linked an account")
	}
}

func TestSpotifyCallbackRejectsExpiredState(t *testing.T) {
	h, accounts, _, _ := newTestHandler(t)

	expired := auth.NewStateSigner("test-secret", -time.Minute, utils.NewNopLogger())
	state, err := expired.Sign(42)
	if err != nil {
		t.Fatalf("Sign() returned error: %v", err)
	}

	rec := httptest.NewRecorder()
	h.SpotifyCallback(rec, callbackRequest("auth-code", state))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(accounts.upserts) != 0 {
		t.Error("expired state still linked an account")
	}
}

func TestSpotifyCallbackMissingParameters(t *testing.T) {
	h, accounts, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.SpotifyCallback(rec, callbackRequest("", ""))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(accounts.upserts) != 0 {
		t.Error("missing parameters still linked an account")
	}
}
