package resolver

import (
	"context"
	"fmt"
	"io"

	"github.com/kkdai/youtube/v2"
	"norelock.dev/nowplaying/bot/internal/utils"
)

// maxAudioBytes caps downloaded audio. Telegram rejects bot uploads above
// 50 MiB anyway.
const maxAudioBytes = 48 << 20

// YouTubeDownloader implements Downloader by pulling the audio-only stream
// of a video.
type YouTubeDownloader struct {
	client youtube.Client
	logger *utils.Logger
}

// NewYouTubeDownloader creates a new YouTube downloader.
func NewYouTubeDownloader(logger *utils.Logger) *YouTubeDownloader {
	return &YouTubeDownloader{
		client: youtube.Client{},
		logger: logger.Named("youtube_downloader"),
	}
}

// Download fetches the best audio-only format of the video.
func (d *YouTubeDownloader) Download(ctx context.Context, sourceID string) (*Audio, error) {
	video, err := d.client.GetVideoContext(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get video %s: %w", sourceID, err)
	}

	format := bestAudioFormat(video.Formats)
	if format == nil {
		return nil, fmt.Errorf("video %s has no audio-only formats", sourceID)
	}

	stream, size, err := d.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream for %s: %w", sourceID, err)
	}
	defer stream.Close()

	if size > maxAudioBytes {
		return nil, fmt.Errorf("audio for %s is too large: %d bytes", sourceID, size)
	}

	data, err := io.ReadAll(io.LimitReader(stream, maxAudioBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read stream for %s: %w", sourceID, err)
	}
	if len(data) > maxAudioBytes {
		return nil, fmt.Errorf("audio for %s is too large", sourceID)
	}

	d.logger.Debug("Downloaded audio", "sourceId", sourceID,
		"bytes", len(data), "mimeType", format.MimeType)

	return &Audio{
		Data:     data,
		Duration: int(video.Duration.Seconds()),
		MimeType: baseMimeType(format.MimeType),
	}, nil
}

// bestAudioFormat picks the highest-bitrate audio-only format.
func bestAudioFormat(formats youtube.FormatList) *youtube.Format {
	audio := formats.Type("audio").WithAudioChannels()

	var best *youtube.Format
	for i := range audio {
		if best == nil || audio[i].Bitrate > best.Bitrate {
			best = &audio[i]
		}
	}
	return best
}

// baseMimeType strips codec parameters, e.g. `audio/mp4; codecs="mp4a"` to
// "audio/mp4".
func baseMimeType(mimeType string) string {
	for i := range len(mimeType) {
		if mimeType[i] == ';' {
			return mimeType[:i]
		}
	}
	return mimeType
}
