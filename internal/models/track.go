// Package models contains the data structures used throughout the application.
package models

import (
	"fmt"
	"html"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ResolvedMedia is the platform-side reference to uploaded audio. It is
// written at most once per track and never overwritten afterwards.
type ResolvedMedia struct {
	// MediaID is the platform identifier of the uploaded audio document.
	MediaID string `json:"mediaId" bson:"mediaId" validate:"required"`

	// AccessSecret is the platform access secret paired with MediaID.
	AccessSecret string `json:"accessSecret" bson:"accessSecret"`

	// ReferenceToken is the opaque per-upload reference the platform expects
	// when the document is reattached to a message.
	ReferenceToken string `json:"referenceToken" bson:"referenceToken"`
}

// Track represents one song as known to the bot.
type Track struct {
	// ID is the unique identifier for the track record.
	ID bson.ObjectID `json:"id" bson:"_id,omitempty"`

	// Provider is the streaming service the track was listed from
	// (e.g. "spotify", "lastfm").
	Provider string `json:"provider" bson:"provider" validate:"required"`

	// ProviderTrackID is the track's identifier on the provider.
	// Unique per provider.
	ProviderTrackID string `json:"providerTrackId" bson:"providerTrackId" validate:"required"`

	// Name is the track title.
	Name string `json:"name" bson:"name" validate:"required,max=200"`

	// Artist is the display name of the performer.
	Artist string `json:"artist" bson:"artist" validate:"max=200"`

	// CoverURL is the URL of the track's cover art, if the provider gave one.
	CoverURL string `json:"coverUrl,omitempty" bson:"coverUrl,omitempty"`

	// Resolved holds the uploaded-media reference once the fulfillment
	// pipeline has produced real audio. Nil means placeholder only.
	Resolved *ResolvedMedia `json:"resolved,omitempty" bson:"resolved,omitempty"`

	// ObjectTimes contains timestamps for this track.
	ObjectTimes `bson:",inline"`
}

// IsResolved reports whether real audio has been uploaded for this track.
func (t *Track) IsResolved() bool {
	return t.Resolved != nil
}

// SearchQuery is the string handed to the audio resolution backend.
func (t *Track) SearchQuery() string {
	return fmt.Sprintf("%s - %s", t.Name, t.Artist)
}

// Key is the track's identity across providers, used for dedup locking and
// cache entries.
func (t *Track) Key() string {
	return t.Provider + ":" + t.ProviderTrackID
}

// LinkURL is a cross-platform link to the track, when the provider's track
// IDs map to one.
func (t *Track) LinkURL() string {
	if t.Provider == ProviderSpotify {
		return "https://song.link/s/" + t.ProviderTrackID
	}
	return ""
}

// Caption is the HTML message text attached to the track's inline message.
func (t *Track) Caption() string {
	title := html.EscapeString(t.Name)
	if url := t.LinkURL(); url != "" {
		title = fmt.Sprintf(`<a href="%s">%s</a>`, url, title)
	}
	if t.Artist == "" {
		return title
	}
	return fmt.Sprintf("%s by %s", title, html.EscapeString(t.Artist))
}
