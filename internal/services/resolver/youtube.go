package resolver

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
	"norelock.dev/nowplaying/bot/internal/utils"
)

// YouTubeSearcher implements Searcher over the YouTube Data API.
type YouTubeSearcher struct {
	apiKey string
	logger *utils.Logger
}

// NewYouTubeSearcher creates a new YouTube searcher.
func NewYouTubeSearcher(apiKey string, logger *utils.Logger) *YouTubeSearcher {
	return &YouTubeSearcher{
		apiKey: apiKey,
		logger: logger.Named("youtube_searcher"),
	}
}

// Search searches YouTube's music category for the query and returns
// candidates with durations filled in.
func (s *YouTubeSearcher) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	s.logger.Debug("Searching YouTube", "query", query, "limit", limit)

	service, err := youtube.NewService(ctx, option.WithAPIKey(s.apiKey))
	if err != nil {
		s.logger.Error("Failed to create YouTube service", err)
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}

	call := service.Search.List([]string{"id", "snippet"}).
		Context(ctx).
		Q(query).
		Type("video").
		MaxResults(int64(limit)).
		VideoCategoryId("10") // Music category

	response, err := call.Do()
	if err != nil {
		s.logger.Error("Failed to search YouTube", err, "query", query)
		return nil, fmt.Errorf("failed to search YouTube: %w", err)
	}

	ids := make([]string, 0, len(response.Items))
	for _, item := range response.Items {
		if item.Id.Kind == "youtube#video" {
			ids = append(ids, item.Id.VideoId)
		}
	}
	durations := s.fetchDurations(ctx, service, ids)

	candidates := make([]Candidate, 0, len(response.Items))
	for _, item := range response.Items {
		if item.Id.Kind != "youtube#video" {
			continue
		}
		candidates = append(candidates, Candidate{
			SourceID: item.Id.VideoId,
			Title:    item.Snippet.Title,
			Channel:  item.Snippet.ChannelTitle,
			Duration: durations[item.Id.VideoId],
		})
	}

	return candidates, nil
}

// fetchDurations looks up the durations for a batch of video IDs. A lookup
// failure leaves durations at zero rather than failing the search.
func (s *YouTubeSearcher) fetchDurations(ctx context.Context, service *youtube.Service, ids []string) map[string]int {
	durations := make(map[string]int, len(ids))
	if len(ids) == 0 {
		return durations
	}

	response, err := service.Videos.List([]string{"contentDetails"}).
		Context(ctx).
		Id(strings.Join(ids, ",")).
		Do()
	if err != nil {
		s.logger.Error("Failed to get video details", err)
		return durations
	}

	for _, video := range response.Items {
		duration, err := parseDuration(video.ContentDetails.Duration)
		if err != nil {
			s.logger.Error("Failed to parse duration", err,
				"duration", video.ContentDetails.Duration)
			continue
		}
		durations[video.Id] = duration
	}

	return durations
}

// parseDuration parses an ISO 8601 duration string into seconds.
func parseDuration(isoDuration string) (int, error) {
	duration := strings.TrimPrefix(isoDuration, "PT")

	var hours, minutes, seconds int

	if idx := strings.Index(duration, "H"); idx != -1 {
		h, err := strconv.Atoi(duration[:idx])
		if err != nil {
			return 0, err
		}
		hours = h
		duration = duration[idx+1:]
	}

	if idx := strings.Index(duration, "M"); idx != -1 {
		m, err := strconv.Atoi(duration[:idx])
		if err != nil {
			return 0, err
		}
		minutes = m
		duration = duration[idx+1:]
	}

	if idx := strings.Index(duration, "S"); idx != -1 {
		s, err := strconv.Atoi(duration[:idx])
		if err != nil {
			return 0, err
		}
		seconds = s
	}

	return hours*3600 + minutes*60 + seconds, nil
}
