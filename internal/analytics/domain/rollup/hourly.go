package rollup

import (
	"fmt"
	"math"
	"time"

	stations "velib-cloud/internal/stations/domain"
)

// HoursPerDay is the fixed length of an hourly trend.
const HoursPerDay = 24

// HourlyBucket holds rounded means for one hour of the day.
type HourlyBucket struct {
	Hour       int    `json:"-"`
	Label      string `json:"hour"`
	Bikes      int    `json:"bikes"`
	Docks      int    `json:"docks"`
	Mechanical int    `json:"mechanical"`
	Electric   int    `json:"electric"`
}

// HourLabel formats an hour of day as "08h".
func HourLabel(hour int) string {
	return fmt.Sprintf("%02dh", hour)
}

// ZeroHourly returns 24 empty buckets.
func ZeroHourly() []HourlyBucket {
	buckets := make([]HourlyBucket, HoursPerDay)
	for h := range buckets {
		buckets[h] = HourlyBucket{Hour: h, Label: HourLabel(h)}
	}
	return buckets
}

type gaugeSum struct {
	n                                  int
	bikes, docks, mechanical, electric float64
}

func (s *gaugeSum) add(snap stations.AvailabilitySnapshot) {
	s.n++
	s.bikes += float64(snap.BikesAvailable)
	s.docks += float64(snap.DocksAvailable)
	s.mechanical += float64(snap.MechanicalBikes)
	s.electric += float64(snap.ElectricBikes)
}

func (s gaugeSum) mean(total float64) float64 {
	if s.n == 0 {
		return 0
	}
	return total / float64(s.n)
}

// HourlyBuckets groups snapshots by local hour of day regardless of calendar
// day. The result always has 24 entries ordered by hour.
func HourlyBuckets(snapshots []stations.AvailabilitySnapshot, loc *time.Location) []HourlyBucket {
	if loc == nil {
		loc = time.UTC
	}
	var sums [HoursPerDay]gaugeSum
	for _, snap := range snapshots {
		sums[snap.Timestamp.In(loc).Hour()].add(snap)
	}
	buckets := ZeroHourly()
	for h, sum := range sums {
		buckets[h].Bikes = roundInt(sum.mean(sum.bikes))
		buckets[h].Docks = roundInt(sum.mean(sum.docks))
		buckets[h].Mechanical = roundInt(sum.mean(sum.mechanical))
		buckets[h].Electric = roundInt(sum.mean(sum.electric))
	}
	return buckets
}

// HourlyFromMeans maps pre-aggregated rows onto the 24-bucket shape. Hours
// missing from the input stay zero; out-of-range hours are ignored.
func HourlyFromMeans(means []stations.HourlyMean) []HourlyBucket {
	buckets := ZeroHourly()
	for _, m := range means {
		if m.Hour < 0 || m.Hour >= HoursPerDay {
			continue
		}
		buckets[m.Hour].Bikes = roundInt(m.BikesAvailable)
		buckets[m.Hour].Docks = roundInt(m.DocksAvailable)
		buckets[m.Hour].Mechanical = roundInt(m.MechanicalBikes)
		buckets[m.Hour].Electric = roundInt(m.ElectricBikes)
	}
	return buckets
}

// roundInt rounds half away from zero. NaN and infinities map to 0.
func roundInt(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int(math.Round(v))
}
