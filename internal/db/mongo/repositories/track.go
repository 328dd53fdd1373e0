// Package repositories contains MongoDB repository implementations.
package repositories

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"norelock.dev/nowplaying/bot/internal/models"
	"norelock.dev/nowplaying/bot/internal/utils"
)

const tracksCollection = "tracks"

// TrackRepository defines the interface for track data access operations.
// Tracks are persisted only once resolved; the fulfillment pipeline is the
// sole writer.
type TrackRepository interface {
	// FindByProviderID finds a resolved track by its provider identity.
	// Returns models.ErrTrackNotFound when the track was never resolved.
	FindByProviderID(ctx context.Context, provider, providerTrackID string) (*models.Track, error)

	// UpsertResolved persists a freshly resolved track. The resolved media
	// reference is written at most once per (provider, providerTrackId);
	// a concurrent or earlier write wins and this call reports success.
	UpsertResolved(ctx context.Context, track *models.Track) error
}

// trackRepository is the MongoDB implementation of TrackRepository.
type trackRepository struct {
	collection *mongo.Collection
	logger     *utils.Logger
}

// NewTrackRepository creates a new instance of TrackRepository.
func NewTrackRepository(db *mongo.Database, logger *utils.Logger) TrackRepository {
	return &trackRepository{
		collection: db.Collection(tracksCollection),
		logger:     logger.Named("track_repository"),
	}
}

// FindByProviderID finds a track by its provider identity.
func (r *trackRepository) FindByProviderID(ctx context.Context, provider, providerTrackID string) (*models.Track, error) {
	var track models.Track

	err := r.collection.FindOne(ctx, bson.M{
		"provider":        provider,
		"providerTrackId": providerTrackID,
	}).Decode(&track)

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrTrackNotFound
		}
		r.logger.Error("Failed to find track", err, "provider", provider, "trackId", providerTrackID)
		return nil, models.NewInternalError(err, "Failed to find track")
	}

	return &track, nil
}

// UpsertResolved persists a resolved track. The filter excludes documents
// that already carry resolved media, so a second writer hits the unique
// (provider, providerTrackId) index instead of overwriting the first
// result; that duplicate-key outcome is treated as success.
func (r *trackRepository) UpsertResolved(ctx context.Context, track *models.Track) error {
	if track.Resolved == nil {
		return models.NewInternalError(nil, "refusing to persist track without resolved media")
	}

	now := time.Now()

	filter := bson.M{
		"provider":        track.Provider,
		"providerTrackId": track.ProviderTrackID,
		"resolved":        bson.M{"$exists": false},
	}

	update := bson.D{
		cmdSet(bson.M{
			"name":      track.Name,
			"artist":    track.Artist,
			"coverUrl":  track.CoverURL,
			"resolved":  track.Resolved,
			"updatedAt": now,
		}),
		cmdSetOnInsert(bson.M{
			"createdAt": now,
		}),
	}

	_, err := r.collection.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Another fulfillment already resolved this track
			r.logger.Debug("Track already resolved, keeping first write",
				"provider", track.Provider, "trackId", track.ProviderTrackID)
			return nil
		}
		r.logger.Error("Failed to upsert resolved track", err,
			"provider", track.Provider, "trackId", track.ProviderTrackID)
		return models.NewInternalError(err, "Failed to persist resolved track")
	}

	return nil
}
