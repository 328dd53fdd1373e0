package provider

import (
	"context"
	"errors"
	"testing"

	"norelock.dev/nowplaying/bot/internal/models"
)

type fakeProvider struct {
	name string
}

func (f *fakeProvider) Type() string { return f.name }

func (f *fakeProvider) ListRecentTracks(context.Context, models.ProviderCredentials) ([]models.Track, error) {
	return nil, nil
}

func TestRegistryGet(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeProvider{name: models.ProviderSpotify})

	if _, err := reg.Get(models.ProviderSpotify); err != nil {
		t.Fatalf("Get(spotify) returned error: %v", err)
	}

	if _, err := reg.Get("yandex"); !errors.Is(err, models.ErrUnknownProvider) {
		t.Fatalf("Get(yandex) error = %v, want ErrUnknownProvider", err)
	}
}

func TestRegistryForAccount(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeProvider{name: models.ProviderLastFM})

	tests := []struct {
		name    string
		account models.LinkedAccount
		wantErr error
	}{
		{
			name: "linked account resolves provider and credentials",
			account: models.LinkedAccount{
				DefaultProvider: models.ProviderLastFM,
				Credentials: map[string]models.ProviderCredentials{
					models.ProviderLastFM: {Username: "someone"},
				},
			},
		},
		{
			name: "unregistered default provider",
			account: models.LinkedAccount{
				DefaultProvider: models.ProviderSpotify,
				Credentials: map[string]models.ProviderCredentials{
					models.ProviderSpotify: {AccessToken: "tok"},
				},
			},
			wantErr: models.ErrUnknownProvider,
		},
		{
			name: "missing credentials for default provider",
			account: models.LinkedAccount{
				DefaultProvider: models.ProviderLastFM,
			},
			wantErr: models.ErrAccountNotLinked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, creds, err := reg.ForAccount(&tt.account)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ForAccount() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ForAccount() returned error: %v", err)
			}
			if p.Type() != tt.account.DefaultProvider {
				t.Errorf("provider type = %q, want %q", p.Type(), tt.account.DefaultProvider)
			}
			if creds.Username != "someone" {
				t.Errorf("credentials username = %q, want %q", creds.Username, "someone")
			}
		})
	}
}

func TestSmallestCover(t *testing.T) {
	type image = struct {
		URL    string `json:"url"`
		Height int    `json:"height"`
	}

	if got := smallestCover(nil); got != "" {
		t.Fatalf("smallestCover(nil) = %q, want empty", got)
	}

	images := []image{
		{URL: "large", Height: 640},
		{URL: "small", Height: 64},
		{URL: "medium", Height: 300},
	}
	if got := smallestCover(images); got != "small" {
		t.Fatalf("smallestCover() = %q, want %q", got, "small")
	}
}

func TestJoinArtists(t *testing.T) {
	type artist = struct {
		Name string `json:"name"`
	}

	if got := joinArtists(nil); got != "" {
		t.Fatalf("joinArtists(nil) = %q, want empty", got)
	}
	if got := joinArtists([]artist{{Name: "A"}}); got != "A" {
		t.Fatalf("joinArtists(one) = %q, want %q", got, "A")
	}
	if got := joinArtists([]artist{{Name: "A"}, {Name: "B"}}); got != "A, B" {
		t.Fatalf("joinArtists(two) = %q, want %q", got, "A, B")
	}
}
