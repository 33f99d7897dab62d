package pipeline

import (
	"fmt"
	"time"

	"replenish/internal"
)

// WeekBucket is one complete Monday-through-Sunday week in the trailing sales
// window. Index 1 is the most recently completed week.
type WeekBucket struct {
	Index int
	Start time.Time
	End   time.Time
	Label string
}

const salesWeekCount = 8

// WeekBuckets returns the eight complete weeks preceding now, most recent
// first. The current partial week is never included: the window ends at the
// most recent Sunday, which is today when today is a Sunday. Each label names
// the bucket by its index and the Sunday that closes the week.
func WeekBuckets(now time.Time) []WeekBucket {
	today := dateOf(now)
	sunday := today
	if wd := today.Weekday(); wd != time.Sunday {
		sunday = today.AddDate(0, 0, -int(wd))
	}

	buckets := make([]WeekBucket, 0, salesWeekCount)
	for i := 1; i <= salesWeekCount; i++ {
		end := sunday.AddDate(0, 0, -7*(i-1))
		start := end.AddDate(0, 0, -6)
		buckets = append(buckets, WeekBucket{
			Index: i,
			Start: start,
			End:   end,
			Label: fmt.Sprintf("sales_%d_weeks_ago_%s", i, end.Format("Jan02")),
		})
	}
	return buckets
}

// dateOf strips the time of day, leaving a midnight-UTC calendar date.
func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (b WeekBucket) contains(date time.Time) bool {
	return !date.Before(b.Start) && !date.After(b.End)
}

// BuildSalesMatrix pivots flattened order records into per-SKU weekly
// quantities. Orders are bucketed by their creation date; line items inherit
// the bucket of their parent order. Line items with no SKU, or whose parent
// order falls outside the window, are dropped. Every SKU gets all eight
// columns, zero-filled, most recent week first.
func BuildSalesMatrix(records []internal.SalesRecord, now time.Time) internal.SalesMatrix {
	buckets := WeekBuckets(now)

	labels := make([]string, len(buckets))
	for i, b := range buckets {
		labels[i] = b.Label
	}

	// Orders have no ParentID; everything else is a line item.
	bucketByOrder := map[string]int{}
	for _, r := range records {
		if r.ParentID != "" {
			continue
		}
		date := dateOf(r.CreatedAt)
		for i, b := range buckets {
			if b.contains(date) {
				bucketByOrder[r.ID] = i
				break
			}
		}
	}

	matrix := internal.SalesMatrix{Labels: labels, BySKU: map[string][]int{}}
	for _, r := range records {
		if r.ParentID == "" || r.SKU == "" {
			continue
		}
		idx, ok := bucketByOrder[r.ParentID]
		if !ok {
			continue
		}
		row, ok := matrix.BySKU[r.SKU]
		if !ok {
			row = make([]int, len(buckets))
			matrix.BySKU[r.SKU] = row
		}
		row[idx] += r.Quantity
	}
	return matrix
}
