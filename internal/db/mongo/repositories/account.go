// Package repositories contains MongoDB repository implementations.
package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"norelock.dev/nowplaying/bot/internal/models"
	"norelock.dev/nowplaying/bot/internal/utils"
)

const accountsCollection = "accounts"

// AccountRepository defines the interface for linked-account data access.
// The resolution core only reads accounts; writes come from the OAuth
// linking handlers.
type AccountRepository interface {
	// FindByChatUserID finds the linked account of a chat user.
	// Returns models.ErrAccountNotFound when the user never linked anything.
	FindByChatUserID(ctx context.Context, chatUserID int64) (*models.LinkedAccount, error)

	// UpsertProvider stores the credential bundle for one provider and,
	// when makeDefault is set or the account is new, marks that provider
	// as the user's default.
	UpsertProvider(ctx context.Context, chatUserID int64, provider string, creds models.ProviderCredentials, makeDefault bool) (*models.LinkedAccount, error)
}

// accountRepository is the MongoDB implementation of AccountRepository.
type accountRepository struct {
	collection *mongo.Collection
	logger     *utils.Logger
}

// NewAccountRepository creates a new instance of AccountRepository.
func NewAccountRepository(db *mongo.Database, logger *utils.Logger) AccountRepository {
	return &accountRepository{
		collection: db.Collection(accountsCollection),
		logger:     logger.Named("account_repository"),
	}
}

// FindByChatUserID finds the linked account of a chat user.
func (r *accountRepository) FindByChatUserID(ctx context.Context, chatUserID int64) (*models.LinkedAccount, error) {
	var account models.LinkedAccount

	err := r.collection.FindOne(ctx, bson.M{"chatUserId": chatUserID}).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrAccountNotFound
		}
		r.logger.Error("Failed to find account", err, "chatUserId", chatUserID)
		return nil, models.NewInternalError(err, "Failed to find account")
	}

	return &account, nil
}

// UpsertProvider stores provider credentials for a chat user.
func (r *accountRepository) UpsertProvider(ctx context.Context, chatUserID int64, provider string, creds models.ProviderCredentials, makeDefault bool) (*models.LinkedAccount, error) {
	now := time.Now()

	set := bson.M{
		fmt.Sprintf("credentials.%s", provider): creds,
		"updatedAt":                             now,
	}
	setOnInsert := bson.M{
		"createdAt": now,
	}

	// A brand-new account always defaults to the provider just linked
	if makeDefault {
		set["defaultProvider"] = provider
	} else {
		setOnInsert["defaultProvider"] = provider
	}

	update := bson.D{
		cmdSet(set),
		cmdSetOnInsert(setOnInsert),
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var account models.LinkedAccount
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"chatUserId": chatUserID}, update, opts).Decode(&account)
	if err != nil {
		r.logger.Error("Failed to upsert account provider", err,
			"chatUserId", chatUserID, "provider", provider)
		return nil, models.NewInternalError(err, "Failed to store provider credentials")
	}

	return &account, nil
}
