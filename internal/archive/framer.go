package archive

import (
	"encoding/binary"
	"fmt"
)

// PlainChunkSize is the maximum plaintext size of a single frame. Matches
// the original's PLAIN_CHUNK constant so encrypted archives stay
// bit-compatible with the legacy format's chunk boundaries.
const PlainChunkSize = 64 * 1024

// lastFrameFlag is the high bit of a chunk header marking it as the final
// frame in the stream.
const lastFrameFlag uint32 = 1 << 31

// maxFrameLength is the largest ciphertext length a header can encode in
// its low 31 bits.
const maxFrameLength = lastFrameFlag - 1

// PackChunkHeader encodes a frame header: the high bit carries isLast, the
// low 31 bits carry the ciphertext length. length must be > 0 and fit in
// 31 bits.
func PackChunkHeader(length int, isLast bool) (uint32, error) {
	if length <= 0 {
		return 0, fmt.Errorf("archive: chunk length must be positive, got %d", length)
	}
	if length > int(maxFrameLength) {
		return 0, fmt.Errorf("archive: chunk length %d exceeds frame limit %d", length, maxFrameLength)
	}
	header := uint32(length)
	if isLast {
		header |= lastFrameFlag
	}
	return header, nil
}

// UnpackChunkHeader splits a frame header into its ciphertext length and
// isLast flag.
func UnpackChunkHeader(header uint32) (length int, isLast bool) {
	isLast = header&lastFrameFlag != 0
	length = int(header &^ lastFrameFlag)
	return length, isLast
}

// ChunkFramer writes and reads the 4-byte big-endian headers that frame
// each ciphertext chunk inside an encrypted archive's payload.
type ChunkFramer struct{}

// EncodeHeader returns the 4-byte wire form of a packed chunk header.
func (ChunkFramer) EncodeHeader(length int, isLast bool) ([4]byte, error) {
	var buf [4]byte
	header, err := PackChunkHeader(length, isLast)
	if err != nil {
		return buf, err
	}
	binary.BigEndian.PutUint32(buf[:], header)
	return buf, nil
}

// DecodeHeader parses a 4-byte wire header into its length and isLast flag.
func (ChunkFramer) DecodeHeader(buf [4]byte) (length int, isLast bool) {
	return UnpackChunkHeader(binary.BigEndian.Uint32(buf[:]))
}
