package rollup

import (
	"fmt"
	"sort"
	"time"

	stations "velib-cloud/internal/stations/domain"
)

// MaxDailyBuckets bounds the daily usage series.
const MaxDailyBuckets = 7

const dateLayout = "2006-01-02"

var frenchMonths = [...]string{
	"janv.", "févr.", "mars", "avr.", "mai", "juin",
	"juil.", "août", "sept.", "oct.", "nov.", "déc.",
}

// DailyBucket summarizes one calendar day. Occupancy is not clamped; values
// above 100 set OverCapacity.
type DailyBucket struct {
	Date          string `json:"date"`
	Label         string `json:"day"`
	TotalBikes    int    `json:"totalBikes"`
	TotalDocks    int    `json:"totalDocks"`
	OccupancyRate int    `json:"occupancyRate"`
	OverCapacity  bool   `json:"overCapacity"`
}

// DailySample is a snapshot joined with its station capacity.
type DailySample struct {
	Snapshot stations.AvailabilitySnapshot
	Capacity int
}

// DayLabel formats a date as a French short date, e.g. "15 mai".
func DayLabel(day time.Time) string {
	return fmt.Sprintf("%d %s", day.Day(), frenchMonths[day.Month()-1])
}

// OccupancyRate returns round(meanBikes / capacity * 100) with capacity <= 0
// counted as 1.
func OccupancyRate(meanBikes, meanCapacity float64) int {
	if meanCapacity <= 0 {
		meanCapacity = 1
	}
	return roundInt(meanBikes / meanCapacity * 100)
}

type dayKey struct {
	year  int
	month time.Month
	day   int
}

func (k dayKey) time(loc *time.Location) time.Time {
	return time.Date(k.year, k.month, k.day, 0, 0, 0, 0, loc)
}

func keyOf(t time.Time) dayKey {
	y, m, d := t.Date()
	return dayKey{year: y, month: m, day: d}
}

type daySum struct {
	n                      int
	bikes, docks, capacity float64
}

// DailyBuckets groups samples by local calendar date, orders them by date and
// keeps the most recent seven.
func DailyBuckets(samples []DailySample, loc *time.Location) []DailyBucket {
	if loc == nil {
		loc = time.UTC
	}
	sums := make(map[dayKey]*daySum)
	for _, sample := range samples {
		key := keyOf(sample.Snapshot.Timestamp.In(loc))
		sum, ok := sums[key]
		if !ok {
			sum = &daySum{}
			sums[key] = sum
		}
		sum.n++
		sum.bikes += float64(sample.Snapshot.BikesAvailable)
		sum.docks += float64(sample.Snapshot.DocksAvailable)
		sum.capacity += float64(stations.EffectiveCapacity(sample.Capacity))
	}

	days := make([]time.Time, 0, len(sums))
	for key := range sums {
		days = append(days, key.time(loc))
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	if len(days) > MaxDailyBuckets {
		days = days[len(days)-MaxDailyBuckets:]
	}

	buckets := make([]DailyBucket, 0, len(days))
	for _, day := range days {
		sum := sums[keyOf(day)]
		meanBikes := sum.bikes / float64(sum.n)
		rate := OccupancyRate(meanBikes, sum.capacity/float64(sum.n))
		buckets = append(buckets, DailyBucket{
			Date:          day.Format(dateLayout),
			Label:         DayLabel(day),
			TotalBikes:    roundInt(meanBikes),
			TotalDocks:    roundInt(sum.docks / float64(sum.n)),
			OccupancyRate: rate,
			OverCapacity:  rate > 100,
		})
	}
	return buckets
}

// EmptyDailySeries returns seven zero buckets ending on today's local date.
func EmptyDailySeries(now time.Time, loc *time.Location) []DailyBucket {
	if loc == nil {
		loc = time.UTC
	}
	today := keyOf(now.In(loc)).time(loc)
	buckets := make([]DailyBucket, 0, MaxDailyBuckets)
	for i := MaxDailyBuckets - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		buckets = append(buckets, DailyBucket{
			Date:  day.Format(dateLayout),
			Label: DayLabel(day),
		})
	}
	return buckets
}
