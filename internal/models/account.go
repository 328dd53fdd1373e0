// Package models contains the data structures used throughout the application.
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Known provider types.
const (
	ProviderSpotify = "spotify"
	ProviderLastFM  = "lastfm"
)

// ProviderCredentials is the credential bundle for one linked provider.
// For OAuth providers this is a token triple; for API-key providers only
// Username is set.
type ProviderCredentials struct {
	// AccessToken is the current OAuth access token.
	AccessToken string `json:"accessToken" bson:"accessToken"`

	// RefreshToken is the OAuth refresh token, if the provider issued one.
	RefreshToken string `json:"refreshToken,omitempty" bson:"refreshToken,omitempty"`

	// ExpiresAt is when AccessToken stops being valid.
	ExpiresAt time.Time `json:"expiresAt,omitzero" bson:"expiresAt,omitempty"`

	// Username identifies the account on providers that are queried by
	// name rather than by token (e.g. Last.fm).
	Username string `json:"username,omitempty" bson:"username,omitempty"`
}

// Expired reports whether the access token needs a refresh.
func (c ProviderCredentials) Expired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// LinkedAccount binds a chat user to their streaming-provider accounts.
type LinkedAccount struct {
	// ID is the unique identifier for the account record.
	ID bson.ObjectID `json:"id" bson:"_id,omitempty"`

	// ChatUserID is the messaging-platform user ID.
	ChatUserID int64 `json:"chatUserId" bson:"chatUserId" validate:"required"`

	// DefaultProvider is the provider queried when the user issues an
	// inline query. Always one of the keys of Credentials.
	DefaultProvider string `json:"defaultProvider" bson:"defaultProvider" validate:"required"`

	// Credentials maps provider type to the user's credential bundle.
	Credentials map[string]ProviderCredentials `json:"credentials" bson:"credentials"`

	// ObjectTimes contains timestamps for this account.
	ObjectTimes `bson:",inline"`
}

// DefaultCredentials returns the credential bundle for the user's default
// provider.
func (a *LinkedAccount) DefaultCredentials() (ProviderCredentials, bool) {
	creds, ok := a.Credentials[a.DefaultProvider]
	return creds, ok
}
