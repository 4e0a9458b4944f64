// Package msgid generates message identifiers that sort by creation time.
//
// An id is the hex encoding of a 4-byte big-endian unix-second bucket
// followed by 6 cryptographically random bytes. Ids from the same second
// are ordered only by chance; the random suffix makes collisions negligible
// and ids unguessable. The bucket prefix lets ids double as pagination
// cursors via plain string comparison.
package msgid

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	bucketBytes = 4
	suffixBytes = 6

	// EncodedLen is the length of an id in hex characters.
	EncodedLen = (bucketBytes + suffixBytes) * 2
)

// Generate returns a fresh identifier for the current time.
func Generate() (string, error) {
	return generateAt(time.Now())
}

func generateAt(t time.Time) (string, error) {
	buf := make([]byte, bucketBytes+suffixBytes)
	binary.BigEndian.PutUint32(buf, uint32(t.Unix()))
	if _, err := rand.Read(buf[bucketBytes:]); err != nil {
		return "", fmt.Errorf("generate message id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ExpiryCutoff returns the largest possible id for the time bucket at
// now-age. Every id generated before that moment compares below it, so it
// can be used as an exclusive upper bound when sweeping expired messages.
func ExpiryCutoff(age time.Duration) string {
	buf := make([]byte, bucketBytes+suffixBytes)
	binary.BigEndian.PutUint32(buf, uint32(time.Now().Add(-age).Unix()))
	for i := bucketBytes; i < len(buf); i++ {
		buf[i] = 0xff
	}
	return hex.EncodeToString(buf)
}
