// Package resolver turns track metadata into downloadable audio by searching
// a source backend and fuzzy-matching the results against the track.
package resolver

import (
	"context"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"norelock.dev/nowplaying/bot/internal/models"
	"norelock.dev/nowplaying/bot/internal/utils"
)

// Candidate is a single search result from the audio source.
type Candidate struct {
	// SourceID identifies the media at the source backend.
	SourceID string
	// Title is the candidate's title as reported by the source.
	Title string
	// Channel is the uploader or channel name.
	Channel string
	// Duration is the media length in seconds. Zero means unknown.
	Duration int
}

// Audio is downloaded audio ready for upload.
type Audio struct {
	// Data is the raw audio payload.
	Data []byte
	// Duration is the audio length in seconds.
	Duration int
	// MimeType is the container MIME type, e.g. "audio/mp4".
	MimeType string
}

// Searcher searches the audio source for candidates matching a query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// Downloader fetches the audio payload for a source ID.
type Downloader interface {
	Download(ctx context.Context, sourceID string) (*Audio, error)
}

// Options configures candidate selection.
type Options struct {
	// ScoreThreshold is the minimum similarity score for accepting a candidate.
	ScoreThreshold float64
	// MaxCandidates is how many search results are scored.
	MaxCandidates int
	// MaxDuration is the longest acceptable duration in seconds. Zero disables
	// the check.
	MaxDuration int
}

// Resolver finds and downloads audio for tracks.
type Resolver struct {
	searcher   Searcher
	downloader Downloader
	opts       Options
	logger     *utils.Logger
}

// NewResolver creates a resolver over the given search and download backends.
func NewResolver(searcher Searcher, downloader Downloader, opts Options, logger *utils.Logger) *Resolver {
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = 5
	}
	if opts.ScoreThreshold <= 0 {
		opts.ScoreThreshold = 0.85
	}
	return &Resolver{
		searcher:   searcher,
		downloader: downloader,
		opts:       opts,
		logger:     logger.Named("resolver"),
	}
}

// Resolve searches for the track and downloads the best-matching candidate.
// It returns models.ErrNoMatch when no candidate scores above the threshold
// and models.ErrDownloadFailed when the chosen candidate cannot be fetched.
func (r *Resolver) Resolve(ctx context.Context, track models.Track) (*Audio, error) {
	query := track.SearchQuery()
	r.logger.Debug("Resolving track", "key", track.Key(), "query", query)

	candidates, err := r.searcher.Search(ctx, query, r.opts.MaxCandidates)
	if err != nil {
		r.logger.Error("Search failed", err, "query", query)
		return nil, models.NewResolutionError(err, "search failed")
	}

	best, ok := pickBest(track, candidates, r.opts)
	if !ok {
		r.logger.Debug("No candidate above threshold", "query", query,
			"candidates", len(candidates))
		return nil, models.ErrNoMatch
	}

	r.logger.Debug("Downloading candidate", "sourceId", best.SourceID,
		"title", best.Title)

	audio, err := r.downloader.Download(ctx, best.SourceID)
	if err != nil {
		r.logger.Error("Download failed", err, "sourceId", best.SourceID)
		return nil, models.ErrDownloadFailed
	}
	if audio.Duration == 0 {
		audio.Duration = best.Duration
	}

	return audio, nil
}

// pickBest scores candidates against the track and returns the highest
// scorer at or above the threshold. Uploads title media in either "artist -
// title" or bare-title-with-artist-channel form, so both orderings are
// scored and the best one wins.
func pickBest(track models.Track, candidates []Candidate, opts Options) (Candidate, bool) {
	queries := []string{
		strings.ToLower(track.Artist + " - " + track.Name),
		strings.ToLower(track.Name + " - " + track.Artist),
	}
	jw := metrics.NewJaroWinkler()

	var best Candidate
	var highestScore float64

	for i, cand := range candidates {
		if opts.MaxCandidates > 0 && i == opts.MaxCandidates {
			break
		}
		if opts.MaxDuration > 0 && cand.Duration > opts.MaxDuration {
			continue
		}

		title := cleanTitle(cand.Title)
		targets := []string{
			strings.ToLower(title),
			strings.ToLower(cand.Channel + " - " + title),
		}

		var score float64
		for _, q := range queries {
			for _, target := range targets {
				if s := strutil.Similarity(q, target, jw); s > score {
					score = s
				}
			}
		}

		if score > highestScore && score >= opts.ScoreThreshold {
			highestScore = score
			best = cand
		}
	}

	return best, best.SourceID != ""
}

// cleanTitle strips the bracketed noise uploads append to titles, like
// "(Official Video)" or "[HD]".
func cleanTitle(title string) string {
	for {
		start := strings.IndexAny(title, "([")
		if start == -1 {
			break
		}
		var closer string
		if title[start] == '(' {
			closer = ")"
		} else {
			closer = "]"
		}
		end := strings.Index(title[start:], closer)
		if end == -1 {
			title = title[:start]
			break
		}
		title = title[:start] + title[start+end+1:]
	}
	return strings.Join(strings.Fields(title), " ")
}
