package backend

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// rand64 seeds the key jitter.
func rand64() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}
