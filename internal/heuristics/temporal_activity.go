package heuristics

import (
	"sort"
	"time"

	"github.com/rawblock/wallet-anomaly-engine/pkg/models"
)

// DefaultActivityInterval is the bucket width used when none is given.
const DefaultActivityInterval = 24 * time.Hour

// AggregateActivity groups the wallet's transactions into fixed-width buckets
// aligned to the Unix epoch, oldest bucket first. A non-positive interval
// falls back to DefaultActivityInterval.
func AggregateActivity(wallet models.Wallet, txs []models.Transaction, interval time.Duration) []models.ActivityBucket {
	if interval <= 0 {
		interval = DefaultActivityInterval
	}

	buckets := make(map[int64]*models.ActivityBucket)
	for _, tx := range txs {
		if !tx.Involves(wallet.ID) {
			continue
		}
		key := BucketKey(tx.Timestamp, interval)
		b, ok := buckets[key]
		if !ok {
			b = &models.ActivityBucket{BucketStart: BucketStart(key, interval)}
			buckets[key] = b
		}
		b.Count++
		b.Volume += tx.Amount
	}

	out := make([]models.ActivityBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BucketStart.Before(out[j].BucketStart) })
	return out
}

// BucketKey is floor(t / interval) on the Unix epoch, also for pre-1970 times.
func BucketKey(t time.Time, interval time.Duration) int64 {
	ns := t.UnixNano()
	width := int64(interval)
	key := ns / width
	if ns%width != 0 && ns < 0 {
		key--
	}
	return key
}

// BucketStart is the inverse of BucketKey.
func BucketStart(key int64, interval time.Duration) time.Time {
	return time.Unix(0, key*int64(interval)).UTC()
}
