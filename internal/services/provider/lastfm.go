package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"norelock.dev/nowplaying/bot/internal/models"
	"norelock.dev/nowplaying/bot/internal/utils"
)

const lastFMAPIURL = "https://ws.audioscrobbler.com/2.0/"

// LastFMProvider implements Provider for Last.fm. Last.fm exposes recent
// tracks by username with an application API key, so linking only needs the
// scrobbler username, no per-user OAuth.
type LastFMProvider struct {
	apiKey string
	client *http.Client
	logger *utils.Logger
}

// NewLastFMProvider creates a Last.fm provider from an application API key.
func NewLastFMProvider(apiKey string, logger *utils.Logger) *LastFMProvider {
	return &LastFMProvider{
		apiKey: apiKey,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger.Named("lastfm_provider"),
	}
}

// Type returns the provider type.
func (p *LastFMProvider) Type() string {
	return models.ProviderLastFM
}

// lastFMRecentTracksResponse mirrors the fields we read from
// user.getrecenttracks. Last.fm wraps artist names and image URLs in
// "#text" keys.
type lastFMRecentTracksResponse struct {
	RecentTracks struct {
		Track []struct {
			Name   string `json:"name"`
			MBID   string `json:"mbid"`
			URL    string `json:"url"`
			Artist struct {
				Name string `json:"#text"`
			} `json:"artist"`
			Image []struct {
				Size string `json:"size"`
				URL  string `json:"#text"`
			} `json:"image"`
		} `json:"track"`
	} `json:"recenttracks"`
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// ListRecentTracks lists the user's recent scrobbles. Last.fm tracks have no
// stable numeric ID we can rely on, so the provider track ID is derived from
// the MusicBrainz ID when present and the artist/name pair otherwise.
func (p *LastFMProvider) ListRecentTracks(ctx context.Context, creds models.ProviderCredentials) ([]models.Track, error) {
	if creds.Username == "" {
		return nil, models.ErrProviderAuth
	}

	params := url.Values{}
	params.Set("method", "user.getrecenttracks")
	params.Set("user", creds.Username)
	params.Set("api_key", p.apiKey)
	params.Set("format", "json")
	params.Set("limit", strconv.Itoa(recentLimit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lastFMAPIURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, models.NewProviderError(err, "failed to build Last.fm request")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("Last.fm request failed", "error", err)
		return nil, models.ErrProviderUnavailable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.ErrProviderUnavailable
	}

	var payload lastFMRecentTracksResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, models.NewProviderError(err, "failed to decode Last.fm response")
	}

	switch {
	case payload.Error == lastFMErrInvalidAPIKey || payload.Error == lastFMErrUserNotFound:
		return nil, models.ErrProviderAuth
	case payload.Error != 0:
		p.logger.Warn("Last.fm returned an error",
			"code", payload.Error, "message", payload.Message)
		return nil, models.ErrProviderUnavailable
	case resp.StatusCode != http.StatusOK:
		p.logger.Warn("Last.fm returned unexpected status", "status", resp.StatusCode)
		return nil, models.ErrProviderUnavailable
	}

	seen := make(map[string]bool, len(payload.RecentTracks.Track))
	tracks := make([]models.Track, 0, len(payload.RecentTracks.Track))
	now := time.Now()

	for _, item := range payload.RecentTracks.Track {
		id := item.MBID
		if id == "" {
			id = item.Artist.Name + "/" + item.Name
		}
		if id == "/" || seen[id] {
			continue
		}
		seen[id] = true

		track := models.Track{
			Provider:        models.ProviderLastFM,
			ProviderTrackID: id,
			Name:            item.Name,
			Artist:          item.Artist.Name,
			CoverURL:        lastFMCover(item.Image),
		}
		track.TimeCreate(now)
		tracks = append(tracks, track)

		if len(tracks) == recentLimit {
			break
		}
	}

	return tracks, nil
}

// Last.fm API error codes.
const (
	lastFMErrUserNotFound  = 6
	lastFMErrInvalidAPIKey = 10
)

func lastFMCover(images []struct {
	Size string `json:"size"`
	URL  string `json:"#text"`
}) string {
	for _, img := range images {
		if img.Size == "medium" && img.URL != "" {
			return img.URL
		}
	}
	for _, img := range images {
		if img.URL != "" {
			return img.URL
		}
	}
	return ""
}
