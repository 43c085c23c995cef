package identity

import (
	"errors"
	"strings"
	"testing"
)

func TestHashAndCompare(t *testing.T) {
	hasher := SaltedHasher{}
	encoded, err := hasher.Hash("s3cret-passphrase")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.Contains(encoded, "$") {
		t.Fatalf("encoded hash missing salt separator: %q", encoded)
	}
	if err := hasher.Compare(encoded, "s3cret-passphrase"); err != nil {
		t.Fatalf("compare: %v", err)
	}
	if err := hasher.Compare(encoded, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("got %v, want ErrPasswordMismatch", err)
	}
}

func TestHashIsSalted(t *testing.T) {
	hasher := SaltedHasher{}
	a, _ := hasher.Hash("same-password")
	b, _ := hasher.Hash("same-password")
	if a == b {
		t.Fatalf("two hashes of the same password must differ")
	}
}

func TestCompareRejectsMalformed(t *testing.T) {
	hasher := SaltedHasher{}
	if err := hasher.Compare("not-a-hash", "x"); err == nil {
		t.Fatalf("expected error for malformed hash")
	}
}
