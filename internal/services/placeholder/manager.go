package placeholder

import (
	"context"
	"net/http"
	"sync"
	"time"

	"norelock.dev/nowplaying/bot/internal/models"
	"norelock.dev/nowplaying/bot/internal/platform"
	"norelock.dev/nowplaying/bot/internal/utils"
)

// DefaultMaxVariants bounds the per-track placeholder cache.
const DefaultMaxVariants = 32

const coverFetchTimeout = 5 * time.Second

// Uploader is the slice of the messenger the manager needs.
type Uploader interface {
	UploadAudio(ctx context.Context, data []byte, fileName string, attrs platform.AudioAttributes) (models.ResolvedMedia, error)
}

// MetricsSink counts placeholder uploads. Satisfied by
// system.MetricsService.
type MetricsSink interface {
	IncPlaceholderUploads()
}

// Manager builds per-track placeholder audio and caches the uploaded
// platform handles so repeat queries for the same tracks reuse them.
type Manager struct {
	uploader    Uploader
	client      *http.Client
	metrics     MetricsSink
	maxVariants int
	logger      *utils.Logger

	silent []byte

	mu       sync.Mutex
	variants map[string]models.ResolvedMedia
	order    []string
}

// NewManager creates a placeholder manager. maxVariants bounds the upload
// cache; zero or negative falls back to DefaultMaxVariants.
func NewManager(uploader Uploader, metrics MetricsSink, maxVariants int, logger *utils.Logger) *Manager {
	if maxVariants <= 0 {
		maxVariants = DefaultMaxVariants
	}
	return &Manager{
		uploader:    uploader,
		client:      &http.Client{Timeout: coverFetchTimeout},
		metrics:     metrics,
		maxVariants: maxVariants,
		logger:      logger.Named("placeholder"),
		silent:      silentMP3(SilentSeconds),
		variants:    make(map[string]models.ResolvedMedia),
	}
}

// Attributes returns the audio display attributes for a track's placeholder.
func Attributes(track models.Track) platform.AudioAttributes {
	return platform.AudioAttributes{
		Duration:  SilentSeconds,
		Title:     track.Name,
		Performer: track.Artist,
	}
}

// Media returns the uploaded placeholder for the track, uploading it on
// first use. Cover art is fetched best-effort; a failed fetch produces a
// placeholder without art rather than an error.
func (m *Manager) Media(ctx context.Context, track models.Track) (models.ResolvedMedia, error) {
	key := track.Key()

	m.mu.Lock()
	if media, ok := m.variants[key]; ok {
		m.mu.Unlock()
		return media, nil
	}
	m.mu.Unlock()

	payload := append(id3Tag(track.Name, track.Artist, m.fetchCover(ctx, track)), m.silent...)

	media, err := m.uploader.UploadAudio(ctx, payload, "placeholder.mp3", Attributes(track))
	if err != nil {
		m.logger.Error("Failed to upload placeholder", err, "key", key)
		return models.ResolvedMedia{}, err
	}

	m.store(key, media)
	m.metrics.IncPlaceholderUploads()
	m.logger.Debug("Uploaded placeholder", "key", key, "bytes", len(payload))
	return media, nil
}

func (m *Manager) fetchCover(ctx context.Context, track models.Track) []byte {
	if track.CoverURL == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, coverFetchTimeout)
	defer cancel()

	cover, err := utils.FetchBytes(ctx, m.client, track.CoverURL)
	if err != nil {
		m.logger.Debug("Cover fetch failed", "url", track.CoverURL, "error", err)
		return nil
	}
	return cover
}

// store caches an uploaded placeholder, evicting the oldest entry when the
// cache is full.
func (m *Manager) store(key string, media models.ResolvedMedia) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.variants[key]; ok {
		return
	}

	if len(m.order) >= m.maxVariants {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.variants, oldest)
	}

	m.variants[key] = media
	m.order = append(m.order, key)
}
