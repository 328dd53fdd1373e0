// Package inline answers inline queries with the user's recent tracks and
// forwards result selections to the fulfillment pipeline. Answers must go
// out fast: anything slow (real audio resolution) is deferred to selection
// time, and the answer attaches placeholder audio instead.
package inline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"norelock.dev/nowplaying/bot/internal/cache"
	"norelock.dev/nowplaying/bot/internal/db/mongo/repositories"
	"norelock.dev/nowplaying/bot/internal/models"
	"norelock.dev/nowplaying/bot/internal/platform"
	"norelock.dev/nowplaying/bot/internal/services/placeholder"
	"norelock.dev/nowplaying/bot/internal/services/provider"
	"norelock.dev/nowplaying/bot/internal/utils"
)

// Answer outcomes, used as metric labels.
const (
	outcomeAnswered   = "answered"
	outcomeNotLinked  = "not_linked"
	outcomeAuthFailed = "auth_failed"
	outcomeEmpty      = "empty"
	outcomeError      = "error"
)

// MetricsSink receives inline-query metrics. Satisfied by
// system.MetricsService.
type MetricsSink interface {
	ObserveInlineQuery(outcome string, duration time.Duration)
	IncProviderFetches(provider, outcome string)
}

// RecentsCache is the slice of managers.RecentsManager the service needs.
type RecentsCache interface {
	Get(ctx context.Context, chatUserID int64, provider string) ([]models.Track, bool)
	Set(ctx context.Context, chatUserID int64, provider string, tracks []models.Track) error
}

// PlaceholderSource provides placeholder media for unresolved tracks.
// Satisfied by placeholder.Manager.
type PlaceholderSource interface {
	Media(ctx context.Context, track models.Track) (models.ResolvedMedia, error)
}

// Dispatcher starts fulfillment of a selection. Satisfied by
// fulfillment.Pipeline.
type Dispatcher interface {
	Dispatch(event platform.SelectionEvent)
}

// Service answers inline queries and routes selections.
type Service struct {
	accounts     repositories.AccountRepository
	tracks       repositories.TrackRepository
	registry     *provider.Registry
	recents      RecentsCache
	placeholders PlaceholderSource
	queries      *cache.QueryCache
	pipeline     Dispatcher
	messenger    platform.Messenger
	metrics      MetricsSink
	logger       *utils.Logger
}

// NewService creates an inline service.
func NewService(
	accounts repositories.AccountRepository,
	tracks repositories.TrackRepository,
	registry *provider.Registry,
	recents RecentsCache,
	placeholders PlaceholderSource,
	queries *cache.QueryCache,
	pipeline Dispatcher,
	messenger platform.Messenger,
	metrics MetricsSink,
	logger *utils.Logger,
) *Service {
	return &Service{
		accounts:     accounts,
		tracks:       tracks,
		registry:     registry,
		recents:      recents,
		placeholders: placeholders,
		queries:      queries,
		pipeline:     pipeline,
		messenger:    messenger,
		metrics:      metrics,
		logger:       logger.Named("inline"),
	}
}

// AnswerQuery answers one inline query with the user's recent tracks. Every
// failure degrades to an empty answer rather than an error to the user; the
// platform deadline applies either way.
func (s *Service) AnswerQuery(ctx context.Context, queryID string, chatUserID int64) error {
	start := time.Now()
	outcome := outcomeAnswered

	results := s.buildResults(ctx, chatUserID, &outcome)
	err := s.messenger.AnswerInlineQuery(ctx, queryID, results, promptFor(outcome))
	if err != nil {
		outcome = outcomeError
		s.logger.Error("Failed to answer inline query", err, "queryId", queryID)
	}

	s.metrics.ObserveInlineQuery(outcome, time.Since(start))
	return err
}

// promptFor maps a failed outcome to the button text shown above the empty
// result list. The button deep-links into the bot chat where the user can
// link or relink an account.
func promptFor(outcome string) string {
	switch outcome {
	case outcomeNotLinked:
		return "Connect your music account"
	case outcomeAuthFailed:
		return "Reconnect your music account"
	default:
		return ""
	}
}

// OnSelection handles a picked inline result. Resolved results were never
// cached, so their selections fall out as stale no-ops inside the pipeline.
func (s *Service) OnSelection(event platform.SelectionEvent) {
	s.pipeline.Dispatch(event)
}

func (s *Service) buildResults(ctx context.Context, chatUserID int64, outcome *string) []platform.InlineResult {
	account, err := s.accounts.FindByChatUserID(ctx, chatUserID)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			*outcome = outcomeNotLinked
		} else {
			*outcome = outcomeError
			s.logger.Error("Account lookup failed", err, "chatUserId", chatUserID)
		}
		return nil
	}

	prov, creds, err := s.registry.ForAccount(account)
	if err != nil {
		*outcome = outcomeNotLinked
		return nil
	}

	tracks, err := s.recentTracks(ctx, chatUserID, prov, creds)
	if err != nil {
		if errors.Is(err, models.ErrProviderAuth) {
			*outcome = outcomeAuthFailed
		} else {
			*outcome = outcomeError
		}
		return nil
	}
	if len(tracks) == 0 {
		*outcome = outcomeEmpty
		return nil
	}

	results := lo.FilterMap(tracks, func(track models.Track, _ int) (platform.InlineResult, bool) {
		return s.buildResult(ctx, track)
	})
	if len(results) == 0 {
		*outcome = outcomeEmpty
	}
	return results
}

// recentTracks returns the user's recent tracks, from the short-lived cache
// when possible.
func (s *Service) recentTracks(ctx context.Context, chatUserID int64, prov provider.Provider, creds models.ProviderCredentials) ([]models.Track, error) {
	if tracks, ok := s.recents.Get(ctx, chatUserID, prov.Type()); ok {
		return tracks, nil
	}

	tracks, err := prov.ListRecentTracks(ctx, creds)
	if err != nil {
		s.metrics.IncProviderFetches(prov.Type(), "error")
		s.logger.Warn("Failed to list recent tracks", "provider", prov.Type(),
			"chatUserId", chatUserID, "error", err)
		return nil, err
	}
	s.metrics.IncProviderFetches(prov.Type(), "ok")

	if err := s.recents.Set(ctx, chatUserID, prov.Type(), tracks); err != nil {
		s.logger.Debug("Failed to cache recent tracks", "error", err)
	}

	return tracks, nil
}

// buildResult builds one inline result for a track. Tracks already resolved
// in the store attach the real audio directly and need no fulfillment;
// everything else attaches a placeholder and registers a cache entry the
// selection handler can map back to the track.
func (s *Service) buildResult(ctx context.Context, track models.Track) (platform.InlineResult, bool) {
	result := platform.InlineResult{
		ID:          uuid.NewString(),
		Title:       track.Name,
		Description: track.Artist,
		Text:        track.Caption(),
		Attributes: platform.AudioAttributes{
			Title:     track.Name,
			Performer: track.Artist,
		},
	}

	stored, err := s.tracks.FindByProviderID(ctx, track.Provider, track.ProviderTrackID)
	if err == nil && stored.IsResolved() {
		result.Media = *stored.Resolved
		return result, true
	}
	if err != nil && !errors.Is(err, models.ErrTrackNotFound) {
		s.logger.Warn("Store lookup failed, using placeholder", "key", track.Key(), "error", err)
	}

	media, err := s.placeholders.Media(ctx, track)
	if err != nil {
		// No placeholder means no valid audio attachment; drop the entry.
		s.logger.Warn("Dropping track from answer", "key", track.Key(), "error", err)
		return platform.InlineResult{}, false
	}

	result.Media = media
	result.Attributes.Duration = placeholder.SilentSeconds
	result.Loading = true
	s.queries.Put(result.ID, &track)

	return result, true
}
