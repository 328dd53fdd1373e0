// Package placeholder builds and caches the stand-in audio attached to
// unresolved inline results. The stand-in is a short silent MP3 carrying the
// track's title, artist and cover art, so the result list looks right before
// any real audio exists.
package placeholder

// MPEG-1 Layer III, 32 kbit/s, 44.1 kHz, mono. An all-zero frame body is
// valid and decodes to silence.
const (
	silentFrameSize    = 104 // 144 * 32000 / 44100
	silentFramesPerSec = 39  // 44100 / 1152 samples per frame, rounded up

	// SilentSeconds is the placeholder audio length.
	SilentSeconds = 1
)

var silentFrameHeader = [4]byte{0xFF, 0xFB, 0x10, 0xC0}

// silentMP3 returns a silent MP3 payload of roughly the given length.
func silentMP3(seconds int) []byte {
	if seconds < 1 {
		seconds = 1
	}

	frames := seconds * silentFramesPerSec
	data := make([]byte, frames*silentFrameSize)
	for i := range frames {
		copy(data[i*silentFrameSize:], silentFrameHeader[:])
	}
	return data
}
