package bucketing

import (
	"testing"
	"time"
)

func TestGetLedgerBucket_StableAndInRange(t *testing.T) {
	bm := NewBucketingManagerWithBuckets(16)
	identities := []string{"a", "b", "0123456789abcdef", "ffffffff"}

	for _, id := range identities {
		first := bm.GetLedgerBucket(id)
		if first < 0 || first >= 16 {
			t.Fatalf("bucket %d out of range for %q", first, id)
		}
		if again := bm.GetLedgerBucket(id); again != first {
			t.Fatalf("bucket for %q changed: %d then %d", id, first, again)
		}
	}
}

func TestNewBucketingManager_ClampsBuckets(t *testing.T) {
	bm := NewBucketingManagerWithBuckets(0)
	if bm.GetLedgerBuckets() != 1 {
		t.Fatalf("buckets = %d, want 1", bm.GetLedgerBuckets())
	}
	if got := bm.GetLedgerBucket("anything"); got != 0 {
		t.Fatalf("bucket = %d, want 0", got)
	}
}

func TestDayOf_UsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	ts := time.Date(2025, 3, 2, 3, 0, 0, 0, loc) // 2025-03-01 18:00 UTC
	if got := DayOf(ts); got != "2025-03-01" {
		t.Fatalf("DayOf = %s, want 2025-03-01", got)
	}
}

func TestDaysBetween(t *testing.T) {
	start := time.Date(2025, 2, 27, 13, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 1, 1, 0, 0, 0, time.UTC)
	got := DaysBetween(start, end)
	want := []string{"2025-02-27", "2025-02-28", "2025-03-01"}
	if len(got) != len(want) {
		t.Fatalf("DaysBetween = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("DaysBetween[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2025-01-31")
	if err != nil {
		t.Fatalf("ParseDay: %v", err)
	}
	if d.Location() != time.UTC || d.Day() != 31 {
		t.Fatalf("ParseDay = %v", d)
	}
	if _, err := ParseDay("31/01/2025"); err == nil {
		t.Fatal("expected error for malformed day")
	}
}
