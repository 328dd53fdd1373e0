package resolver

import (
	"context"
	"errors"
	"testing"

	"norelock.dev/nowplaying/bot/internal/models"
	"norelock.dev/nowplaying/bot/internal/utils"
)

type fakeSearcher struct {
	candidates []Candidate
	err        error
}

func (f *fakeSearcher) Search(_ context.Context, _ string, _ int) ([]Candidate, error) {
	return f.candidates, f.err
}

type fakeDownloader struct {
	audio      *Audio
	err        error
	downloaded []string
}

func (f *fakeDownloader) Download(_ context.Context, sourceID string) (*Audio, error) {
	f.downloaded = append(f.downloaded, sourceID)
	if f.err != nil {
		return nil, f.err
	}
	return f.audio, nil
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Plain Title", "Plain Title"},
		{"Song (Official Video)", "Song"},
		{"Song [HD] (Lyrics)", "Song"},
		{"Song (unterminated", "Song"},
		{"(Leading) Song", "Song"},
	}

	for _, tt := range tests {
		if got := cleanTitle(tt.in); got != tt.want {
			t.Errorf("cleanTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPickBest(t *testing.T) {
	track := models.Track{Name: "Karma Police", Artist: "Radiohead"}
	opts := Options{ScoreThreshold: 0.85, MaxCandidates: 5, MaxDuration: 1200}

	tests := []struct {
		name       string
		candidates []Candidate
		wantID     string
		wantOK     bool
	}{
		{
			name: "exact artist-title match wins",
			candidates: []Candidate{
				{SourceID: "bad", Title: "Completely Different Song", Channel: "Someone"},
				{SourceID: "good", Title: "Radiohead - Karma Police", Channel: "Radiohead"},
			},
			wantID: "good",
			wantOK: true,
		},
		{
			name: "bracketed noise is ignored",
			candidates: []Candidate{
				{SourceID: "good", Title: "Radiohead - Karma Police (Official Video) [HD]", Channel: "Radiohead"},
			},
			wantID: "good",
			wantOK: true,
		},
		{
			name: "bare title with artist channel matches",
			candidates: []Candidate{
				{SourceID: "good", Title: "Karma Police", Channel: "Radiohead"},
			},
			wantID: "good",
			wantOK: true,
		},
		{
			name: "nothing above threshold",
			candidates: []Candidate{
				{SourceID: "bad", Title: "Ambient Rain Sounds 10 Hours", Channel: "SleepChannel"},
			},
			wantOK: false,
		},
		{
			name: "over-long candidates are skipped",
			candidates: []Candidate{
				{SourceID: "long", Title: "Radiohead - Karma Police", Channel: "Radiohead", Duration: 7200},
			},
			wantOK: false,
		},
		{
			name:   "empty candidate list",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			best, ok := pickBest(track, tt.candidates, opts)
			if ok != tt.wantOK {
				t.Fatalf("pickBest() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && best.SourceID != tt.wantID {
				t.Errorf("pickBest() = %q, want %q", best.SourceID, tt.wantID)
			}
		})
	}
}

func TestPickBestRespectsMaxCandidates(t *testing.T) {
	track := models.Track{Name: "Karma Police", Artist: "Radiohead"}
	candidates := []Candidate{
		{SourceID: "first", Title: "Unrelated", Channel: "Nobody"},
		{SourceID: "second", Title: "Radiohead - Karma Police", Channel: "Radiohead"},
	}

	_, ok := pickBest(track, candidates, Options{ScoreThreshold: 0.85, MaxCandidates: 1})
	if ok {
		t.Fatal("pickBest() matched a candidate beyond the limit")
	}
}

func TestResolve(t *testing.T) {
	track := models.Track{
		Provider:        models.ProviderSpotify,
		ProviderTrackID: "abc",
		Name:            "Karma Police",
		Artist:          "Radiohead",
	}
	match := Candidate{SourceID: "vid1", Title: "Radiohead - Karma Police", Channel: "Radiohead", Duration: 262}
	opts := Options{ScoreThreshold: 0.85, MaxCandidates: 5}

	t.Run("downloads the best match", func(t *testing.T) {
		dl := &fakeDownloader{audio: &Audio{Data: []byte("mp3"), MimeType: "audio/mp4"}}
		r := NewResolver(&fakeSearcher{candidates: []Candidate{match}}, dl, opts, utils.NewNopLogger())

		audio, err := r.Resolve(context.Background(), track)
		if err != nil {
			t.Fatalf("Resolve() returned error: %v", err)
		}
		if len(dl.downloaded) != 1 || dl.downloaded[0] != "vid1" {
			t.Errorf("downloaded = %v, want [vid1]", dl.downloaded)
		}
		if audio.Duration != 262 {
			t.Errorf("duration = %d, want candidate duration 262", audio.Duration)
		}
	})

	t.Run("no match", func(t *testing.T) {
		dl := &fakeDownloader{}
		r := NewResolver(&fakeSearcher{}, dl, opts, utils.NewNopLogger())

		if _, err := r.Resolve(context.Background(), track); !errors.Is(err, models.ErrNoMatch) {
			t.Fatalf("Resolve() error = %v, want ErrNoMatch", err)
		}
		if len(dl.downloaded) != 0 {
			t.Error("Resolve() downloaded despite no match")
		}
	})

	t.Run("download failure", func(t *testing.T) {
		dl := &fakeDownloader{err: errors.New("boom")}
		r := NewResolver(&fakeSearcher{candidates: []Candidate{match}}, dl, opts, utils.NewNopLogger())

		if _, err := r.Resolve(context.Background(), track); !errors.Is(err, models.ErrDownloadFailed) {
			t.Fatalf("Resolve() error = %v, want ErrDownloadFailed", err)
		}
	})

	t.Run("search failure", func(t *testing.T) {
		r := NewResolver(&fakeSearcher{err: errors.New("quota")}, &fakeDownloader{}, opts, utils.NewNopLogger())

		if _, err := r.Resolve(context.Background(), track); err == nil {
			t.Fatal("Resolve() returned nil error on search failure")
		}
	})
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"PT4M22S", 262},
		{"PT1H2M3S", 3723},
		{"PT45S", 45},
		{"PT2M", 120},
	}

	for _, tt := range tests {
		got, err := parseDuration(tt.in)
		if err != nil {
			t.Errorf("parseDuration(%q) returned error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseDuration(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
