package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"
)

// ByteGenerator produces a reproducible byte stream from a seed using
// HMAC-SHA256. The same seed always yields the same stream, which makes
// every draw verifiable after the fact.
type ByteGenerator struct {
	seed         string
	currentRound uint64
	currentPos   int
	buffer       [32]byte
}

// NewByteGenerator creates a byte generator keyed by the given seed.
func NewByteGenerator(seed string) *ByteGenerator {
	bg := &ByteGenerator{seed: seed}
	bg.generateRound()
	return bg
}

// Next returns the next byte from the stream.
func (bg *ByteGenerator) Next() byte {
	if bg.currentPos >= 32 {
		bg.currentRound++
		bg.currentPos = 0
		bg.generateRound()
	}

	b := bg.buffer[bg.currentPos]
	bg.currentPos++
	return b
}

// NextUint64 consumes 8 bytes and returns them as a big-endian uint64.
func (bg *ByteGenerator) NextUint64() uint64 {
	var raw [8]byte
	for i := range raw {
		raw[i] = bg.Next()
	}
	return binary.BigEndian.Uint64(raw[:])
}

// NextIndex returns an unbiased index in [0, bound) using rejection
// sampling. bound must be greater than zero.
func (bg *ByteGenerator) NextIndex(bound uint64) uint64 {
	if bound == 0 {
		panic("engine: NextIndex bound must be > 0")
	}

	// 2^64 mod bound, computed without overflowing.
	excess := (math.MaxUint64%bound + 1) % bound

	for {
		v := bg.NextUint64()
		if excess == 0 || v <= math.MaxUint64-excess {
			return v % bound
		}
	}
}

func (bg *ByteGenerator) generateRound() {
	h := hmac.New(sha256.New, []byte(bg.seed))
	message := fmt.Sprintf("%d", bg.currentRound)
	h.Write([]byte(message))
	copy(bg.buffer[:], h.Sum(nil))
}

// DeriveSeed builds the session seed from the shared salt, the owner, the
// owner's completed-set count and the moment of creation. The timestamp
// keeps repeated sessions distinct; logging it makes the draw auditable.
func DeriveSeed(salt, owner string, completedSets uint64, now time.Time) string {
	payload := fmt.Sprintf("%s-%s-%d-%d", salt, owner, completedSets, now.UnixMicro())
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
