package core

import (
	"crypto/rand"
	"encoding/hex"
)

func newSessionID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "sess-unknown"
	}
	return hex.EncodeToString(buf[:])
}
