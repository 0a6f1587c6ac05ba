package rollup

import (
	"errors"
	"fmt"
	"testing"
	"time"

	stations "velib-cloud/internal/stations/domain"
)

func snapAt(stationID string, ts time.Time, bikes int) stations.AvailabilitySnapshot {
	return stations.AvailabilitySnapshot{StationID: stationID, Timestamp: ts, BikesAvailable: bikes}
}

func TestHourlyBucketsScenario(t *testing.T) {
	day := time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC)
	buckets := HourlyBuckets([]stations.AvailabilitySnapshot{
		snapAt("16107", day.Add(8*time.Hour), 3),
		snapAt("16107", day.Add(8*time.Hour+30*time.Minute), 5),
		snapAt("16107", day.Add(14*time.Hour), 10),
	}, time.UTC)

	if len(buckets) != 24 {
		t.Fatalf("expected 24 buckets, got %d", len(buckets))
	}
	for h, bucket := range buckets {
		if bucket.Label != fmt.Sprintf("%02dh", h) {
			t.Fatalf("bucket %d labeled %q", h, bucket.Label)
		}
		switch h {
		case 8:
			if bucket.Bikes != 4 {
				t.Fatalf("expected 08h mean 4, got %d", bucket.Bikes)
			}
		case 14:
			if bucket.Bikes != 10 {
				t.Fatalf("expected 14h mean 10, got %d", bucket.Bikes)
			}
		default:
			if bucket != (HourlyBucket{Hour: h, Label: bucket.Label}) {
				t.Fatalf("expected zero bucket at %d, got %+v", h, bucket)
			}
		}
	}
}

func TestHourlyBucketsCollapseAcrossDays(t *testing.T) {
	first := time.Date(2026, 5, 14, 14, 10, 0, 0, time.UTC)
	buckets := HourlyBuckets([]stations.AvailabilitySnapshot{
		snapAt("a", first, 2),
		snapAt("b", first.Add(24*time.Hour+20*time.Minute), 5),
	}, time.UTC)
	if buckets[14].Bikes != 4 {
		t.Fatalf("expected mean 3.5 rounded to 4, got %d", buckets[14].Bikes)
	}
}

func TestHourlyBucketsUseLocalHour(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 06:00 UTC in May is 08:00 in Paris.
	buckets := HourlyBuckets([]stations.AvailabilitySnapshot{
		snapAt("a", time.Date(2026, 5, 15, 6, 0, 0, 0, time.UTC), 7),
	}, paris)
	if buckets[8].Bikes != 7 || buckets[6].Bikes != 0 {
		t.Fatalf("expected local hour bucketing, got 06h=%d 08h=%d", buckets[6].Bikes, buckets[8].Bikes)
	}
}

func TestHourlyBucketsEmptyIsComplete(t *testing.T) {
	buckets := HourlyBuckets(nil, nil)
	if len(buckets) != 24 {
		t.Fatalf("expected 24 buckets, got %d", len(buckets))
	}
	if buckets[0].Label != "00h" || buckets[23].Label != "23h" {
		t.Fatalf("unexpected labels %q..%q", buckets[0].Label, buckets[23].Label)
	}
}

func TestHourlyFromMeansFillsGaps(t *testing.T) {
	buckets := HourlyFromMeans([]stations.HourlyMean{
		{Hour: 3, BikesAvailable: 2.5, DocksAvailable: 1.49},
		{Hour: 27, BikesAvailable: 99},
	})
	if len(buckets) != 24 {
		t.Fatalf("expected 24 buckets, got %d", len(buckets))
	}
	if buckets[3].Bikes != 3 || buckets[3].Docks != 1 {
		t.Fatalf("expected half away from zero rounding, got %+v", buckets[3])
	}
	for h, bucket := range buckets {
		if h != 3 && bucket.Bikes != 0 {
			t.Fatalf("expected zero at %d, got %+v", h, bucket)
		}
	}
}

func TestDailyBucketsOrderByDateNotLabel(t *testing.T) {
	// "9 mai" sorts after "10 mai" as a string.
	samples := []DailySample{
		{Snapshot: snapAt("a", time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC), 4), Capacity: 10},
		{Snapshot: snapAt("a", time.Date(2026, 5, 9, 9, 0, 0, 0, time.UTC), 2), Capacity: 10},
		{Snapshot: snapAt("a", time.Date(2026, 4, 30, 9, 0, 0, 0, time.UTC), 1), Capacity: 10},
	}
	buckets := DailyBuckets(samples, time.UTC)
	if len(buckets) != 3 {
		t.Fatalf("expected 3 days, got %d", len(buckets))
	}
	wantLabels := []string{"30 avr.", "9 mai", "10 mai"}
	for i, want := range wantLabels {
		if buckets[i].Label != want {
			t.Fatalf("position %d: expected %q, got %q", i, want, buckets[i].Label)
		}
	}
	if buckets[2].Date != "2026-05-10" || buckets[2].OccupancyRate != 40 {
		t.Fatalf("unexpected last bucket: %+v", buckets[2])
	}
}

func TestDailyBucketsKeepsLastSeven(t *testing.T) {
	var samples []DailySample
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		samples = append(samples, DailySample{Snapshot: snapAt("a", start.AddDate(0, 0, i), i), Capacity: 20})
	}
	buckets := DailyBuckets(samples, time.UTC)
	if len(buckets) != MaxDailyBuckets {
		t.Fatalf("expected %d buckets, got %d", MaxDailyBuckets, len(buckets))
	}
	if buckets[0].Date != "2026-05-04" || buckets[6].Date != "2026-05-10" {
		t.Fatalf("expected 4..10 mai, got %s..%s", buckets[0].Date, buckets[6].Date)
	}
}

func TestDailyBucketsZeroCapacityNotClamped(t *testing.T) {
	buckets := DailyBuckets([]DailySample{
		{Snapshot: snapAt("a", time.Date(2026, 5, 15, 9, 0, 0, 0, time.UTC), 5), Capacity: 0},
	}, time.UTC)
	if len(buckets) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(buckets))
	}
	if buckets[0].OccupancyRate != 500 {
		t.Fatalf("expected occupancy 500, got %d", buckets[0].OccupancyRate)
	}
	if !buckets[0].OverCapacity {
		t.Fatalf("expected over capacity flag")
	}
}

func TestDailyBucketsMeans(t *testing.T) {
	day := time.Date(2026, 5, 15, 9, 0, 0, 0, time.UTC)
	buckets := DailyBuckets([]DailySample{
		{Snapshot: stations.AvailabilitySnapshot{StationID: "a", Timestamp: day, BikesAvailable: 3, DocksAvailable: 7}, Capacity: 10},
		{Snapshot: stations.AvailabilitySnapshot{StationID: "b", Timestamp: day.Add(time.Hour), BikesAvailable: 8, DocksAvailable: 12}, Capacity: 20},
	}, time.UTC)
	got := buckets[0]
	// mean bikes 5.5, mean capacity 15.
	if got.TotalBikes != 6 || got.TotalDocks != 10 || got.OccupancyRate != 37 || got.OverCapacity {
		t.Fatalf("unexpected bucket: %+v", got)
	}
}

func TestEmptyDailySeries(t *testing.T) {
	now := time.Date(2026, 5, 15, 17, 30, 0, 0, time.UTC)
	buckets := EmptyDailySeries(now, time.UTC)
	if len(buckets) != 7 {
		t.Fatalf("expected 7 buckets, got %d", len(buckets))
	}
	if buckets[0].Date != "2026-05-09" || buckets[6].Date != "2026-05-15" {
		t.Fatalf("expected 9..15 mai, got %s..%s", buckets[0].Date, buckets[6].Date)
	}
	for _, b := range buckets {
		if b.TotalBikes != 0 || b.TotalDocks != 0 || b.OccupancyRate != 0 {
			t.Fatalf("expected zero bucket, got %+v", b)
		}
	}
	if buckets[6].Label != "15 mai" {
		t.Fatalf("expected label 15 mai, got %q", buckets[6].Label)
	}
}

func TestSummarizeRegionsScenario(t *testing.T) {
	states := []stations.StationState{
		{Station: stations.Station{ID: "p1", Region: "Paris", Capacity: 10}, Snapshot: stations.AvailabilitySnapshot{BikesAvailable: 3}},
		{Station: stations.Station{ID: "p2", Region: "Paris", Capacity: 20}, Snapshot: stations.AvailabilitySnapshot{BikesAvailable: 7}},
		{Station: stations.Station{ID: "x1", Capacity: 5}, Snapshot: stations.AvailabilitySnapshot{BikesAvailable: 1}},
	}
	result := SummarizeRegions(states, 0)
	if len(result) != 2 {
		t.Fatalf("expected 2 regions, got %d", len(result))
	}
	if result[0] != (RegionSummary{Region: "Paris", Stations: 2, Bikes: 10, Capacity: 30}) {
		t.Fatalf("unexpected Paris summary: %+v", result[0])
	}
	if result[1].Region != stations.UnknownRegion {
		t.Fatalf("expected unknown region, got %+v", result[1])
	}
}

func TestSummarizeRegionsTopNBound(t *testing.T) {
	var states []stations.StationState
	for r := 0; r < 15; r++ {
		for s := 0; s <= r; s++ {
			states = append(states, stations.StationState{
				Station: stations.Station{ID: fmt.Sprintf("r%d-s%d", r, s), Region: fmt.Sprintf("region-%02d", r), Capacity: 10},
			})
		}
	}
	result := SummarizeRegions(states, DefaultTopRegions)
	if len(result) != 10 {
		t.Fatalf("expected 10 regions, got %d", len(result))
	}
	for i := 1; i < len(result); i++ {
		if result[i].Stations > result[i-1].Stations {
			t.Fatalf("expected descending station count at %d: %+v", i, result)
		}
	}
	if result[0].Region != "region-14" || result[0].Stations != 15 {
		t.Fatalf("unexpected leader: %+v", result[0])
	}
}

func TestSummarizeRegionsTieBreakByName(t *testing.T) {
	states := []stations.StationState{
		{Station: stations.Station{ID: "1", Region: "Vincennes"}},
		{Station: stations.Station{ID: "2", Region: "Montreuil"}},
	}
	result := SummarizeRegions(states, 10)
	if result[0].Region != "Montreuil" || result[1].Region != "Vincennes" {
		t.Fatalf("expected alphabetical tie-break, got %+v", result)
	}
}

func TestParseTimeRange(t *testing.T) {
	cases := map[string]TimeRange{"": Range24h, "24h": Range24h, "7D": Range7d, "30d": Range30d}
	for input, want := range cases {
		got, err := ParseTimeRange(input)
		if err != nil || got != want {
			t.Fatalf("ParseTimeRange(%q) = %q, %v", input, got, err)
		}
	}
	if _, err := ParseTimeRange("1y"); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	if Range7d.Window() != 7*24*time.Hour {
		t.Fatalf("unexpected 7d window %v", Range7d.Window())
	}
}
