// Package provider adapts streaming services that list a user's recently
// played tracks.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"norelock.dev/nowplaying/bot/internal/models"
	"norelock.dev/nowplaying/bot/internal/utils"
)

const (
	spotifyRecentlyPlayedURL = "https://api.spotify.com/v1/me/player/recently-played"
	spotifyAuthURL           = "https://accounts.spotify.com/authorize"
	spotifyTokenURL          = "https://accounts.spotify.com/api/token"

	// SpotifyScopes are the OAuth scopes the linking flow requests.
	SpotifyScopes = "user-read-recently-played"
)

// SpotifyEndpoint is the oauth2 endpoint for Spotify's authorization-code flow.
var SpotifyEndpoint = oauth2.Endpoint{
	AuthURL:  spotifyAuthURL,
	TokenURL: spotifyTokenURL,
}

// SpotifyProvider implements Provider for Spotify.
type SpotifyProvider struct {
	oauth  *oauth2.Config
	logger *utils.Logger
}

// NewSpotifyProvider creates a Spotify provider from OAuth application
// credentials.
func NewSpotifyProvider(clientID, clientSecret, redirectURL string, logger *utils.Logger) *SpotifyProvider {
	return &SpotifyProvider{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{SpotifyScopes},
			Endpoint:     SpotifyEndpoint,
		},
		logger: logger.Named("spotify_provider"),
	}
}

// Type returns the provider type.
func (p *SpotifyProvider) Type() string {
	return models.ProviderSpotify
}

// OAuthConfig exposes the oauth2 configuration for the linking handlers.
func (p *SpotifyProvider) OAuthConfig() *oauth2.Config {
	return p.oauth
}

// spotifyRecentlyPlayedResponse mirrors the fields we read from the
// recently-played payload.
type spotifyRecentlyPlayedResponse struct {
	Items []struct {
		Track struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
			Album struct {
				Images []struct {
					URL    string `json:"url"`
					Height int    `json:"height"`
				} `json:"images"`
			} `json:"album"`
		} `json:"track"`
	} `json:"items"`
}

// ListRecentTracks lists the user's recently played Spotify tracks. The
// oauth2 transport refreshes expired access tokens on the fly.
func (p *SpotifyProvider) ListRecentTracks(ctx context.Context, creds models.ProviderCredentials) ([]models.Track, error) {
	if creds.AccessToken == "" {
		return nil, models.ErrProviderAuth
	}

	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.ExpiresAt,
	}
	client := p.oauth.Client(ctx, token)

	url := fmt.Sprintf("%s?limit=%d", spotifyRecentlyPlayedURL, recentLimit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, models.NewProviderError(err, "failed to build Spotify request")
	}

	resp, err := client.Do(req)
	if err != nil {
		// A failed token refresh surfaces here as a RetrieveError
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, models.ErrProviderAuth
		}
		p.logger.Warn("Spotify request failed", "error", err)
		return nil, models.ErrProviderUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, models.ErrProviderAuth
	case resp.StatusCode != http.StatusOK:
		p.logger.Warn("Spotify returned unexpected status", "status", resp.StatusCode)
		return nil, models.ErrProviderUnavailable
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.ErrProviderUnavailable
	}

	var payload spotifyRecentlyPlayedResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, models.NewProviderError(err, "failed to decode Spotify response")
	}

	seen := make(map[string]bool, len(payload.Items))
	tracks := make([]models.Track, 0, len(payload.Items))
	now := time.Now()

	for _, item := range payload.Items {
		t := item.Track
		if t.ID == "" || seen[t.ID] {
			continue
		}
		seen[t.ID] = true

		track := models.Track{
			Provider:        models.ProviderSpotify,
			ProviderTrackID: t.ID,
			Name:            t.Name,
			Artist:          joinArtists(t.Artists),
			CoverURL:        smallestCover(t.Album.Images),
		}
		track.TimeCreate(now)
		tracks = append(tracks, track)
	}

	return tracks, nil
}

func joinArtists(artists []struct {
	Name string `json:"name"`
}) string {
	switch len(artists) {
	case 0:
		return ""
	case 1:
		return artists[0].Name
	}

	names := artists[0].Name
	for _, a := range artists[1:] {
		names += ", " + a.Name
	}
	return names
}

// smallestCover picks the smallest album image; inline result thumbnails
// and ID3 covers don't need full resolution.
func smallestCover(images []struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
}) string {
	if len(images) == 0 {
		return ""
	}

	best := images[0]
	for _, img := range images[1:] {
		if img.Height > 0 && (best.Height == 0 || img.Height < best.Height) {
			best = img
		}
	}
	return best.URL
}
