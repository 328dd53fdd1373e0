package placeholder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"norelock.dev/nowplaying/bot/internal/models"
	"norelock.dev/nowplaying/bot/internal/platform"
	"norelock.dev/nowplaying/bot/internal/utils"
)

type fakeUploader struct {
	uploads []platform.AudioAttributes
	err     error
}

func (f *fakeUploader) UploadAudio(_ context.Context, data []byte, _ string, attrs platform.AudioAttributes) (models.ResolvedMedia, error) {
	if f.err != nil {
		return models.ResolvedMedia{}, f.err
	}
	f.uploads = append(f.uploads, attrs)
	return models.ResolvedMedia{MediaID: fmt.Sprintf("file-%d", len(f.uploads))}, nil
}

type fakeMetrics struct {
	uploads int
}

func (f *fakeMetrics) IncPlaceholderUploads() {
	f.uploads++
}

func TestSilentMP3(t *testing.T) {
	data := silentMP3(1)

	if len(data) != silentFramesPerSec*silentFrameSize {
		t.Fatalf("payload length = %d, want %d", len(data), silentFramesPerSec*silentFrameSize)
	}

	// Every frame starts with a sync header; everything else is zero.
	for i := 0; i < len(data); i += silentFrameSize {
		if !bytes.Equal(data[i:i+4], silentFrameHeader[:]) {
			t.Fatalf("frame at offset %d has header % X", i, data[i:i+4])
		}
	}

	if got := silentMP3(0); len(got) != len(data) {
		t.Errorf("silentMP3(0) length = %d, want one second minimum", len(got))
	}
}

func TestID3Tag(t *testing.T) {
	cover := append([]byte{0xFF, 0xD8, 0xFF}, []byte("jpegdata")...)
	tag := id3Tag("Karma Police", "Radiohead", cover)

	if !bytes.HasPrefix(tag, []byte("ID3\x04\x00\x00")) {
		t.Fatalf("tag header = % X", tag[:6])
	}

	declared := int(tag[6])<<21 | int(tag[7])<<14 | int(tag[8])<<7 | int(tag[9])
	if declared != len(tag)-10 {
		t.Errorf("declared size = %d, want %d", declared, len(tag)-10)
	}

	for _, frame := range []string{"TIT2", "TPE1", "APIC"} {
		if !bytes.Contains(tag, []byte(frame)) {
			t.Errorf("tag is missing %s frame", frame)
		}
	}
	if !bytes.Contains(tag, []byte("image/jpeg")) {
		t.Error("APIC frame is missing the MIME type")
	}
	if !bytes.Contains(tag, []byte("Radiohead")) {
		t.Error("tag is missing the performer text")
	}
}

func TestID3TagWithoutCover(t *testing.T) {
	tag := id3Tag("Song", "Artist", nil)
	if bytes.Contains(tag, []byte("APIC")) {
		t.Error("tag has an APIC frame without cover bytes")
	}
}

func TestSyncsafe(t *testing.T) {
	tests := []struct {
		n    int
		want []byte
	}{
		{0, []byte{0, 0, 0, 0}},
		{127, []byte{0, 0, 0, 0x7F}},
		{128, []byte{0, 0, 0x01, 0x00}},
		{0x0FFFFFFF, []byte{0x7F, 0x7F, 0x7F, 0x7F}},
	}
	for _, tt := range tests {
		if got := syncsafe(tt.n); !bytes.Equal(got, tt.want) {
			t.Errorf("syncsafe(%d) = % X, want % X", tt.n, got, tt.want)
		}
	}
}

func TestManagerCachesUploads(t *testing.T) {
	uploader := &fakeUploader{}
	metrics := &fakeMetrics{}
	m := NewManager(uploader, metrics, 4, utils.NewNopLogger())
	track := models.Track{
		Provider:        models.ProviderSpotify,
		ProviderTrackID: "abc",
		Name:            "Karma Police",
		Artist:          "Radiohead",
	}

	first, err := m.Media(context.Background(), track)
	if err != nil {
		t.Fatalf("Media() returned error: %v", err)
	}
	second, err := m.Media(context.Background(), track)
	if err != nil {
		t.Fatalf("Media() returned error on cache hit: %v", err)
	}

	if first.MediaID != second.MediaID {
		t.Errorf("cache miss on repeat: %q vs %q", first.MediaID, second.MediaID)
	}
	if len(uploader.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(uploader.uploads))
	}
	if uploader.uploads[0].Title != "Karma Police" || uploader.uploads[0].Performer != "Radiohead" {
		t.Errorf("upload attributes = %+v", uploader.uploads[0])
	}
	if metrics.uploads != 1 {
		t.Errorf("upload metric = %d, want 1", metrics.uploads)
	}
}

func TestManagerEvictsOldestVariant(t *testing.T) {
	uploader := &fakeUploader{}
	m := NewManager(uploader, &fakeMetrics{}, 2, utils.NewNopLogger())

	for _, id := range []string{"a", "b", "c"} {
		track := models.Track{Provider: models.ProviderSpotify, ProviderTrackID: id}
		if _, err := m.Media(context.Background(), track); err != nil {
			t.Fatalf("Media(%s) returned error: %v", id, err)
		}
	}

	// "a" was evicted, so asking again re-uploads.
	trackA := models.Track{Provider: models.ProviderSpotify, ProviderTrackID: "a"}
	if _, err := m.Media(context.Background(), trackA); err != nil {
		t.Fatalf("Media(a) returned error: %v", err)
	}
	if len(uploader.uploads) != 4 {
		t.Errorf("uploads = %d, want 4 after eviction", len(uploader.uploads))
	}

	// "c" is still cached.
	trackC := models.Track{Provider: models.ProviderSpotify, ProviderTrackID: "c"}
	if _, err := m.Media(context.Background(), trackC); err != nil {
		t.Fatalf("Media(c) returned error: %v", err)
	}
	if len(uploader.uploads) != 4 {
		t.Errorf("uploads = %d, want cache hit for c", len(uploader.uploads))
	}
}

func TestManagerUploadFailure(t *testing.T) {
	uploader := &fakeUploader{err: errors.New("flood wait")}
	m := NewManager(uploader, &fakeMetrics{}, 2, utils.NewNopLogger())

	track := models.Track{Provider: models.ProviderSpotify, ProviderTrackID: "abc"}
	if _, err := m.Media(context.Background(), track); err == nil {
		t.Fatal("Media() returned nil error on upload failure")
	}
}
