// Package mongo provides MongoDB database connectivity and repositories.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection name constants for use throughout the application
const (
	TracksCollection   = "tracks"
	AccountsCollection = "accounts"
)

// IndexCreator defines a function type for index creation
type IndexCreator func(context.Context, *Client) error

var indexCreators = map[string]IndexCreator{
	TracksCollection:   ensureTrackIndexes,
	AccountsCollection: ensureAccountIndexes,
}

// EnsureIndexes creates all necessary indexes for the application
func EnsureIndexes(ctx context.Context, client *Client) error {
	logger := client.Logger().With("operation", "EnsureIndexes")

	for collection, creator := range indexCreators {
		logger.Debug("Creating indexes", "collection", collection)
		if err := creator(ctx, client); err != nil {
			logger.Error("Failed to create indexes", err, "collection", collection)
			return fmt.Errorf("failed to create indexes for %s: %w", collection, err)
		}
	}

	logger.Info("Successfully created all indexes")
	return nil
}

// ensureTrackIndexes creates the unique provider-track index. Uniqueness on
// (provider, providerTrackId) is what makes concurrent resolution upserts for
// the same track collapse into a single record.
func ensureTrackIndexes(ctx context.Context, client *Client) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "provider", Value: 1},
				{Key: "providerTrackId", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "updatedAt", Value: -1}},
		},
	}

	_, err := client.Collection(TracksCollection).Indexes().CreateMany(ctx, indexes)
	return err
}

// ensureAccountIndexes creates the unique chat-user index for linked accounts.
func ensureAccountIndexes(ctx context.Context, client *Client) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "chatUserId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := client.Collection(AccountsCollection).Indexes().CreateMany(ctx, indexes)
	return err
}
