package bucketing

import (
	"fmt"
	"testing"
	"time"
)

func TestUserBucketIsStableAndInRange(t *testing.T) {
	m := New(64, 16)
	seen := map[int]bool{}
	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("user-%d", i)
		b := m.UserBucket(id)
		if b < 0 || b >= 64 {
			t.Fatalf("bucket %d out of range", b)
		}
		if m.UserBucket(id) != b {
			t.Fatalf("bucket for %s changed", id)
		}
		seen[b] = true
	}
	if len(seen) < 32 {
		t.Errorf("only %d of 64 buckets used", len(seen))
	}
}

func TestNewClampsBucketCounts(t *testing.T) {
	m := New(0, -1)
	if m.UserBucket("x") != 0 || m.EventBucket("x") != 0 {
		t.Error("single-bucket manager returned non-zero bucket")
	}
}

func TestDateBucket(t *testing.T) {
	ts := time.Date(2025, 2, 3, 23, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))
	if got := DateBucket(ts); got != "2025-02-03" {
		t.Errorf("DateBucket = %q, want 2025-02-03", got)
	}
}
