// Package provider adapts streaming services that list a user's recently
// played tracks.
package provider

import (
	"context"

	"norelock.dev/nowplaying/bot/internal/models"
)

// recentLimit is how many recently played tracks a provider lists.
const recentLimit = 10

// Provider is the capability one streaming service implements.
type Provider interface {
	// ListRecentTracks lists the user's most recently played tracks, newest
	// first, deduplicated by provider track ID. Fails with
	// models.ErrProviderAuth when credentials are invalid or expired, or
	// models.ErrProviderUnavailable on transient provider failures.
	ListRecentTracks(ctx context.Context, creds models.ProviderCredentials) ([]models.Track, error)

	// Type returns the provider type (e.g. "spotify", "lastfm").
	Type() string
}

// Registry holds the configured providers and selects one by the user's
// default-provider setting.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider) {
	r.providers[p.Type()] = p
}

// Get returns the provider of the given type.
func (r *Registry) Get(providerType string) (Provider, error) {
	p, ok := r.providers[providerType]
	if !ok {
		return nil, models.ErrUnknownProvider
	}
	return p, nil
}

// ForAccount resolves the account's default provider and its credentials.
func (r *Registry) ForAccount(account *models.LinkedAccount) (Provider, models.ProviderCredentials, error) {
	p, err := r.Get(account.DefaultProvider)
	if err != nil {
		return nil, models.ProviderCredentials{}, err
	}

	creds, ok := account.DefaultCredentials()
	if !ok {
		return nil, models.ProviderCredentials{}, models.ErrAccountNotLinked
	}

	return p, creds, nil
}

// Types lists the registered provider types.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.providers))
	for t := range r.providers {
		types = append(types, t)
	}
	return types
}
