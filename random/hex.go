package random

import (
	"crypto/rand"
	"encoding/hex"
)

// String returns n random bytes, hex encoded.
func String(n int) string {
	bytes := make([]byte, n)

	_, err := rand.Read(bytes)
	if err != nil {
		panic(err)
	}

	return hex.EncodeToString(bytes)
}
