package msgid

import (
	"encoding/hex"
	"testing"
	"time"
)

func TestGenerateLength(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(id) != EncodedLen {
		t.Errorf("id length = %d, want %d", len(id), EncodedLen)
	}
	raw, err := hex.DecodeString(id)
	if err != nil {
		t.Fatalf("id is not hex: %v", err)
	}
	if len(raw) != bucketBytes+suffixBytes {
		t.Errorf("decoded length = %d, want %d", len(raw), bucketBytes+suffixBytes)
	}
}

func TestGenerateUniqueWithinBucket(t *testing.T) {
	now := time.Now()
	a, err := generateAt(now)
	if err != nil {
		t.Fatal(err)
	}
	b, err := generateAt(now)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two ids from the same bucket should differ")
	}
	if a[:bucketBytes*2] != b[:bucketBytes*2] {
		t.Error("same-bucket ids should share the time prefix")
	}
}

func TestGenerateOrderedAcrossBuckets(t *testing.T) {
	early, err := generateAt(time.Unix(1700000000, 0))
	if err != nil {
		t.Fatal(err)
	}
	late, err := generateAt(time.Unix(1700000001, 0))
	if err != nil {
		t.Fatal(err)
	}
	if !(early < late) {
		t.Errorf("expected %s < %s", early, late)
	}
}

func TestExpiryCutoff(t *testing.T) {
	cutoff := ExpiryCutoff(time.Hour)
	if len(cutoff) != EncodedLen {
		t.Fatalf("cutoff length = %d, want %d", len(cutoff), EncodedLen)
	}

	old, err := generateAt(time.Now().Add(-2 * time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	fresh, err := generateAt(time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !(old < cutoff) {
		t.Error("id older than the cutoff age should sort below the cutoff")
	}
	if !(cutoff < fresh) {
		t.Error("fresh id should sort above the cutoff")
	}
}
