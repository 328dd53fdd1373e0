// Package fulfillment runs the out-of-band work that turns a selected
// placeholder message into one carrying real audio: resolve, download,
// upload, patch the live message, persist the result.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"norelock.dev/nowplaying/bot/internal/cache"
	"norelock.dev/nowplaying/bot/internal/db/mongo/repositories"
	"norelock.dev/nowplaying/bot/internal/models"
	"norelock.dev/nowplaying/bot/internal/platform"
	"norelock.dev/nowplaying/bot/internal/services/resolver"
	"norelock.dev/nowplaying/bot/internal/utils"
)

// Fulfillment outcomes, used as metric labels and log fields.
const (
	outcomeFulfilled       = "fulfilled"
	outcomeStale           = "stale"
	outcomeAlreadyResolved = "already_resolved"
	outcomeStoreHit        = "store_hit"
	outcomeNoMatch         = "no_match"
	outcomeResolveFailed   = "resolve_failed"
	outcomeUploadFailed    = "upload_failed"
	outcomePatchFailed     = "patch_failed"
)

// DefaultResolveTimeout bounds one fulfillment run end to end.
const DefaultResolveTimeout = 2 * time.Minute

// AudioSource produces downloadable audio for a track.
type AudioSource interface {
	Resolve(ctx context.Context, track models.Track) (*resolver.Audio, error)
}

// MetricsSink receives fulfillment metrics. Satisfied by
// system.MetricsService.
type MetricsSink interface {
	ObserveFulfillment(outcome string, duration time.Duration)
	IncFulfillmentsInProgress()
	DecFulfillmentsInProgress()
}

// Options configures the pipeline.
type Options struct {
	// ResolveTimeout bounds one fulfillment run. Zero falls back to
	// DefaultResolveTimeout.
	ResolveTimeout time.Duration

	// PerTrackLock serializes concurrent fulfillments of the same track so
	// only one resolves and the rest observe its result.
	PerTrackLock bool
}

// Pipeline fulfills selected inline results asynchronously.
type Pipeline struct {
	queries   *cache.QueryCache
	tracks    repositories.TrackRepository
	source    AudioSource
	messenger platform.Messenger
	metrics   MetricsSink
	opts      Options
	logger    *utils.Logger

	locks *keyedMutex
	wg    sync.WaitGroup

	// trackMu guards the Resolved field of cached tracks. A cached *Track
	// is shared between concurrent fulfillments of the same result, and
	// lock-free mode still has to be memory safe.
	trackMu sync.Mutex
}

// NewPipeline creates a fulfillment pipeline.
func NewPipeline(
	queries *cache.QueryCache,
	tracks repositories.TrackRepository,
	source AudioSource,
	messenger platform.Messenger,
	metrics MetricsSink,
	opts Options,
	logger *utils.Logger,
) *Pipeline {
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = DefaultResolveTimeout
	}
	return &Pipeline{
		queries:   queries,
		tracks:    tracks,
		source:    source,
		messenger: messenger,
		metrics:   metrics,
		opts:      opts,
		logger:    logger.Named("fulfillment"),
		locks:     newKeyedMutex(),
	}
}

// Dispatch starts fulfilling a selection in the background and returns
// immediately. The run is tracked so Drain can wait for it on shutdown.
func (p *Pipeline) Dispatch(event platform.SelectionEvent) {
	p.wg.Add(1)
	p.metrics.IncFulfillmentsInProgress()

	go func() {
		defer p.wg.Done()
		defer p.metrics.DecFulfillmentsInProgress()

		// The selection notification owns no request context; the run is
		// bounded by the resolve timeout alone.
		ctx, cancel := context.WithTimeout(context.Background(), p.opts.ResolveTimeout)
		defer cancel()

		start := time.Now()
		outcome := p.Fulfill(ctx, event)
		p.metrics.ObserveFulfillment(outcome, time.Since(start))
	}()
}

// Fulfill runs one fulfillment synchronously and returns its outcome. Every
// path through here is safe to repeat: a stale or already-resolved selection
// is a no-op, and persistence refuses overwrites.
func (p *Pipeline) Fulfill(ctx context.Context, event platform.SelectionEvent) string {
	track, ok := p.queries.Get(event.ResultID)
	if !ok {
		// The cache entry was evicted, or the result predates a restart.
		// The message keeps its placeholder.
		p.logger.Debug("Selection references unknown result", "resultId", event.ResultID)
		return outcomeStale
	}

	logger := p.logger.With("key", track.Key(), "resultId", event.ResultID)

	if p.opts.PerTrackLock {
		unlock := p.locks.Lock(track.Key())
		defer unlock()
	}

	if p.resolvedOf(track) != nil {
		// A concurrent selection of the same result already fulfilled it
		// and edited the message; terminate without repeating the edit.
		logger.Debug("Track already resolved, skipping")
		return outcomeAlreadyResolved
	}

	if stored, err := p.tracks.FindByProviderID(ctx, track.Provider, track.ProviderTrackID); err == nil && stored.IsResolved() {
		// Another process resolved this track after the result was
		// answered. Remember it and stop; no download, no edit.
		logger.Debug("Track already resolved in store, skipping resolution")
		p.markResolved(track, stored.Resolved)
		return outcomeStoreHit
	} else if err != nil && !errors.Is(err, models.ErrTrackNotFound) {
		logger.Warn("Store lookup failed, resolving anyway", "error", err)
	}

	audio, err := p.source.Resolve(ctx, *track)
	if err != nil {
		if errors.Is(err, models.ErrNoMatch) {
			logger.Info("No audio match for track")
			return outcomeNoMatch
		}
		logger.Error("Resolution failed", err)
		return outcomeResolveFailed
	}

	attrs := platform.AudioAttributes{
		Duration:  audio.Duration,
		Title:     track.Name,
		Performer: track.Artist,
	}

	media, err := p.messenger.UploadAudio(ctx, audio.Data, uploadFileName(track, audio), attrs)
	if err != nil {
		logger.Error("Upload failed", err)
		return outcomeUploadFailed
	}

	// From here the audio exists on the platform: record it in memory and
	// in the store even if patching the message fails.
	snapshot := p.markResolved(track, &media)
	p.persist(ctx, &snapshot, logger)

	if err := p.patch(ctx, event.Message, track, &media); err != nil {
		logger.Error("Failed to patch message", err)
		return outcomePatchFailed
	}

	logger.Info("Fulfilled track", "mediaId", media.MediaID)
	return outcomeFulfilled
}

// resolvedOf reads the shared cached track's resolved media.
func (p *Pipeline) resolvedOf(track *models.Track) *models.ResolvedMedia {
	p.trackMu.Lock()
	defer p.trackMu.Unlock()
	return track.Resolved
}

// markResolved records the media on the shared cached track and returns a
// snapshot that can be handed to persistence without further locking.
func (p *Pipeline) markResolved(track *models.Track, media *models.ResolvedMedia) models.Track {
	p.trackMu.Lock()
	defer p.trackMu.Unlock()
	track.Resolved = media
	return *track
}

// patch swaps the live message's placeholder for the resolved audio.
func (p *Pipeline) patch(ctx context.Context, ref platform.MessageRef, track *models.Track, media *models.ResolvedMedia) error {
	attrs := platform.AudioAttributes{
		Title:     track.Name,
		Performer: track.Artist,
	}
	return p.messenger.EditMessageMedia(ctx, ref, *media, attrs, track.Caption())
}

// persist stores the resolved track. Failures are logged and swallowed: the
// message is already patched and the next selection resolves again.
func (p *Pipeline) persist(ctx context.Context, track *models.Track, logger *utils.Logger) {
	track.UpdateNow()
	if err := p.tracks.UpsertResolved(ctx, track); err != nil {
		logger.Error("Failed to persist resolved track", err)
	}
}

// Drain waits for in-flight fulfillments to finish, up to the context
// deadline.
func (p *Pipeline) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("fulfillment drain interrupted: %w", ctx.Err())
	}
}

// uploadFileName derives the uploaded file's name from the track and the
// audio container.
func uploadFileName(track *models.Track, audio *resolver.Audio) string {
	ext := ".m4a"
	switch audio.MimeType {
	case "audio/mpeg", "audio/mp3":
		ext = ".mp3"
	case "audio/webm":
		ext = ".webm"
	case "audio/ogg":
		ext = ".ogg"
	}
	if track.Artist == "" {
		return track.Name + ext
	}
	return track.Artist + " - " + track.Name + ext
}
