package idgen

import (
	"strings"
	"testing"
	"time"
)

func TestEncodeBase36RoundTripsLength(t *testing.T) {
	for _, length := range []int{3, 4, 6, 8} {
		got := EncodeBase36([]byte{0xDE, 0xAD, 0xBE, 0xEF}, length)
		if len(got) != length {
			t.Fatalf("EncodeBase36 length = %d, want %d (%q)", len(got), length, got)
		}
		for _, c := range got {
			if !strings.ContainsRune(base36Alphabet, c) {
				t.Fatalf("EncodeBase36 produced non-base36 rune %q", c)
			}
		}
	}
}

func TestNewMemoryIDFormat(t *testing.T) {
	date := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	got := NewMemoryID(date, 3)
	want := "mem_20260730_003"
	if got != want {
		t.Fatalf("NewMemoryID = %q, want %q", got, want)
	}
}

func TestProposalIDsAreUniquePerNonce(t *testing.T) {
	a := NewProposalID("agent-1", "project/foo.md", 0)
	b := NewProposalID("agent-1", "project/foo.md", 1)
	if a == b {
		t.Fatalf("expected distinct ids for distinct nonces, got %q twice", a)
	}
	if !strings.HasPrefix(a, "proposal_") {
		t.Fatalf("proposal id missing prefix: %q", a)
	}
}

func TestConflictAndScanIDsArePrefixed(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	c := NewConflictID(now, 0)
	s := NewScanID(now, 0)
	if !strings.HasPrefix(c, "conflict_20260730_120000_") {
		t.Fatalf("conflict id = %q", c)
	}
	if !strings.HasPrefix(s, "scan_20260730_120000_") {
		t.Fatalf("scan id = %q", s)
	}
}
