package artifact

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Checksum returns the hex BLAKE3-256 digest of data. Records carry the
// checksum of their full image so a replaced or corrupted file is
// detectable.
func Checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
