package placeholder

import "bytes"

// Minimal ID3v2.4 writer. Only the frames the placeholder needs: title,
// performer and attached cover art.

const (
	id3Encoding     = 0x03 // UTF-8
	id3PictureCover = 0x03 // front cover
)

// id3Tag builds an ID3v2.4 tag with TIT2, TPE1 and, when cover bytes are
// given, an APIC frame.
func id3Tag(title, performer string, cover []byte) []byte {
	var frames bytes.Buffer

	if title != "" {
		writeID3Frame(&frames, "TIT2", textFramePayload(title))
	}
	if performer != "" {
		writeID3Frame(&frames, "TPE1", textFramePayload(performer))
	}
	if len(cover) > 0 {
		writeID3Frame(&frames, "APIC", apicFramePayload(cover))
	}

	var tag bytes.Buffer
	tag.WriteString("ID3")
	tag.Write([]byte{0x04, 0x00}) // v2.4.0
	tag.WriteByte(0x00)           // no flags
	tag.Write(syncsafe(frames.Len()))
	tag.Write(frames.Bytes())
	return tag.Bytes()
}

func textFramePayload(text string) []byte {
	payload := make([]byte, 0, len(text)+1)
	payload = append(payload, id3Encoding)
	return append(payload, text...)
}

func apicFramePayload(image []byte) []byte {
	payload := make([]byte, 0, len(image)+16)
	payload = append(payload, id3Encoding)
	payload = append(payload, detectImageMime(image)...)
	payload = append(payload, 0x00) // MIME terminator
	payload = append(payload, id3PictureCover)
	payload = append(payload, 0x00) // empty description
	return append(payload, image...)
}

func writeID3Frame(buf *bytes.Buffer, id string, payload []byte) {
	buf.WriteString(id)
	buf.Write(syncsafe(len(payload)))
	buf.Write([]byte{0x00, 0x00}) // no frame flags
	buf.Write(payload)
}

// syncsafe encodes a size as four 7-bit bytes, the ID3v2 size format.
func syncsafe(n int) []byte {
	return []byte{
		byte(n >> 21 & 0x7F),
		byte(n >> 14 & 0x7F),
		byte(n >> 7 & 0x7F),
		byte(n & 0x7F),
	}
}

var (
	pngMagic  = []byte{0x89, 'P', 'N', 'G'}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
)

func detectImageMime(image []byte) string {
	if bytes.HasPrefix(image, pngMagic) {
		return "image/png"
	}
	if bytes.HasPrefix(image, jpegMagic) {
		return "image/jpeg"
	}
	return "image/jpeg"
}
