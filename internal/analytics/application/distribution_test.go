package application

import (
	"context"
	"errors"
	"testing"
	"time"

	stations "velib-cloud/internal/stations/domain"
	"velib-cloud/internal/stations/infrastructure/memory"
)

func TestSummarizeExcludesStaleStations(t *testing.T) {
	store := memory.NewSnapshotStore()
	catalog := memory.NewCatalog(
		stations.Station{ID: "p1", Name: "P1", Capacity: 10, Region: "Paris"},
		stations.Station{ID: "p2", Name: "P2", Capacity: 20, Region: "Paris"},
		stations.Station{ID: "p3", Name: "Stale", Capacity: 40, Region: "Paris"},
	)
	ctx := context.Background()
	if err := store.Append(ctx,
		stations.AvailabilitySnapshot{StationID: "p1", Timestamp: testNow.Add(-90 * time.Minute), BikesAvailable: 1},
		stations.AvailabilitySnapshot{StationID: "p1", Timestamp: testNow.Add(-30 * time.Minute), BikesAvailable: 3},
		stations.AvailabilitySnapshot{StationID: "p2", Timestamp: testNow.Add(-time.Hour), BikesAvailable: 7},
		stations.AvailabilitySnapshot{StationID: "p3", Timestamp: testNow.Add(-3 * time.Hour), BikesAvailable: 30},
	); err != nil {
		t.Fatalf("append: %v", err)
	}

	aggregator, err := NewDistributionAggregator(store, catalog, WithDistributionClock(fakeClock{now: testNow}))
	if err != nil {
		t.Fatalf("new aggregator: %v", err)
	}
	result, err := aggregator.Summarize(ctx)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 region, got %+v", result)
	}
	got := result[0]
	if got.Region != "Paris" || got.Stations != 2 || got.Bikes != 10 || got.Capacity != 30 {
		t.Fatalf("unexpected summary: %+v", got)
	}
}

func TestSummarizeUnknownRegionForUncatalogedStation(t *testing.T) {
	store := memory.NewSnapshotStore()
	_ = store.Append(context.Background(), stations.AvailabilitySnapshot{StationID: "ghost", Timestamp: testNow.Add(-time.Minute), BikesAvailable: 2})
	aggregator, _ := NewDistributionAggregator(store, memory.NewCatalog(), WithDistributionClock(fakeClock{now: testNow}))
	result, err := aggregator.Summarize(context.Background())
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(result) != 1 || result[0].Region != stations.UnknownRegion || result[0].Bikes != 2 {
		t.Fatalf("expected unknown region bucket, got %+v", result)
	}
}

func TestSummarizeStoreFailure(t *testing.T) {
	aggregator, _ := NewDistributionAggregator(brokenReader{}, memory.NewCatalog(), WithDistributionClock(fakeClock{now: testNow}))
	result, err := aggregator.Summarize(context.Background())
	if !errors.Is(err, stations.ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
	if result == nil || len(result) != 0 {
		t.Fatalf("expected empty list, got %+v", result)
	}
}
