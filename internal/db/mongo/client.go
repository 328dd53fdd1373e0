// Package mongo provides MongoDB database connectivity and repositories.
package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"norelock.dev/nowplaying/bot/internal/config"
	"norelock.dev/nowplaying/bot/internal/utils"
)

// Client wraps the MongoDB client with app-specific functionality
type Client struct {
	client   *mongo.Client
	database string
	logger   *utils.Logger
}

// NewClient creates a new MongoDB client
func NewClient(cfg *config.Config, logger *utils.Logger) (*Client, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.Database.MongoDB.URI).
		SetMaxPoolSize(cfg.Database.MongoDB.MaxPoolSize)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.MongoDB.Timeout)
	defer cancel()

	client, err := mongo.Connect(clientOptions)
	if err != nil {
		logger.Error("Failed to connect to MongoDB", err)
		return nil, err
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		logger.Error("Failed to ping MongoDB", err)
		return nil, err
	}

	logger.Info("Connected to MongoDB", "database", cfg.Database.MongoDB.Database)

	return &Client{
		client:   client,
		database: cfg.Database.MongoDB.Database,
		logger:   logger,
	}, nil
}

// Database returns the MongoDB database
func (c *Client) Database() *mongo.Database {
	return c.client.Database(c.database)
}

// Collection returns a MongoDB collection
func (c *Client) Collection(name string) *mongo.Collection {
	return c.Database().Collection(name)
}

// Client returns the underlying MongoDB client
func (c *Client) Client() *mongo.Client {
	return c.client
}

// Logger returns the client's logger
func (c *Client) Logger() *utils.Logger {
	return c.logger
}

// Disconnect closes the MongoDB connection
func (c *Client) Disconnect(ctx context.Context) error {
	err := c.client.Disconnect(ctx)
	if err != nil {
		c.logger.Error("Failed to disconnect from MongoDB", err)
		return err
	}
	c.logger.Info("Disconnected from MongoDB")
	return nil
}
