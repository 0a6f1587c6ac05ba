package rollup

import (
	"sort"

	stations "velib-cloud/internal/stations/domain"
)

// DefaultTopRegions bounds the distribution summary.
const DefaultTopRegions = 10

// RegionSummary aggregates the latest state of stations in one region.
type RegionSummary struct {
	Region   string `json:"region"`
	Stations int    `json:"stations"`
	Bikes    int    `json:"bikes"`
	Capacity int    `json:"capacity"`
}

// SummarizeRegions groups station states by region, counting each station
// once. Regions are ordered by station count descending, then by name, and
// truncated to topN. A non-positive topN uses DefaultTopRegions.
func SummarizeRegions(states []stations.StationState, topN int) []RegionSummary {
	if topN <= 0 {
		topN = DefaultTopRegions
	}
	seen := make(map[string]struct{}, len(states))
	byRegion := make(map[string]*RegionSummary)
	for _, state := range states {
		if _, dup := seen[state.Station.ID]; dup {
			continue
		}
		seen[state.Station.ID] = struct{}{}

		region := state.Station.RegionKey()
		summary, ok := byRegion[region]
		if !ok {
			summary = &RegionSummary{Region: region}
			byRegion[region] = summary
		}
		summary.Stations++
		summary.Bikes += state.Snapshot.BikesAvailable
		if state.Station.Capacity > 0 {
			summary.Capacity += state.Station.Capacity
		}
	}

	result := make([]RegionSummary, 0, len(byRegion))
	for _, summary := range byRegion {
		result = append(result, *summary)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Stations != result[j].Stations {
			return result[i].Stations > result[j].Stations
		}
		return result[i].Region < result[j].Region
	})
	if len(result) > topN {
		result = result[:topN]
	}
	return result
}
