package bucketing

import (
	"hash"
	"sync"
	"time"

	"rating-service/internal/config"

	"github.com/spaolacci/murmur3"
)

// DayLayout is the calendar-day format used in every day-keyed table.
const DayLayout = "2006-01-02"

// BucketingManager spreads identities across ledger partitions and maps
// instants onto UTC calendar days.
type BucketingManager struct {
	ledgerBuckets int
	hasherPool    sync.Pool
}

func NewBucketingManager(cfg *config.Config) *BucketingManager {
	return NewBucketingManagerWithBuckets(cfg.Bucketing.LedgerBuckets)
}

func NewBucketingManagerWithBuckets(ledgerBuckets int) *BucketingManager {
	if ledgerBuckets < 1 {
		ledgerBuckets = 1
	}
	bm := &BucketingManager{ledgerBuckets: ledgerBuckets}

	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return bm
}

// GetLedgerBucket returns the partition (0 to ledgerBuckets-1) that holds
// every rate-limit entry of identity.
func (bm *BucketingManager) GetLedgerBucket(identity string) int {
	return int(bm.getHash(identity) % uint64(bm.ledgerBuckets))
}

// GetLedgerBuckets returns the number of ledger partitions.
func (bm *BucketingManager) GetLedgerBuckets() int {
	return bm.ledgerBuckets
}

// DayOf returns the UTC calendar day containing t.
func DayOf(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// ParseDay parses a calendar day as produced by DayOf.
func ParseDay(day string) (time.Time, error) {
	return time.ParseInLocation(DayLayout, day, time.UTC)
}

// DaysBetween lists every calendar day from start to end inclusive.
func DaysBetween(start, end time.Time) []string {
	start = start.UTC().Truncate(24 * time.Hour)
	end = end.UTC().Truncate(24 * time.Hour)
	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DayLayout))
	}
	return days
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
