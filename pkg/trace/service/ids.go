package service

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// GenerateID returns a random, non-zero 64 bit identifier as 16 lowercase hex digits.
func GenerateID() string {
	var buf [8]byte
	for {
		_, _ = rand.Read(buf[:])
		if id := binary.BigEndian.Uint64(buf[:]); id != 0 {
			return fmt.Sprintf("%016x", id)
		}
	}
}
