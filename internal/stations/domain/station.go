package stations

import (
	"context"
	"errors"
	"strings"
)

// UnknownRegion groups stations without an administrative region.
const UnknownRegion = "unknown"

// Station represents a dock station in the catalog.
type Station struct {
	ID       string  `json:"station_id"`
	Name     string  `json:"name"`
	Capacity int     `json:"capacity"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Region   string  `json:"region,omitempty"`
}

// Validate checks station invariants.
func (s Station) Validate() error {
	if s.ID == "" {
		return errors.New("station: empty id")
	}
	if s.Name == "" {
		return errors.New("station: empty name")
	}
	if s.Capacity < 0 {
		return errors.New("station: negative capacity")
	}
	return nil
}

// EffectiveCapacity returns the capacity used as a divisor. Zero or negative
// capacities count as 1.
func (s Station) EffectiveCapacity() int {
	return EffectiveCapacity(s.Capacity)
}

// RegionKey returns the region name or UnknownRegion.
func (s Station) RegionKey() string {
	region := strings.TrimSpace(s.Region)
	if region == "" {
		return UnknownRegion
	}
	return region
}

// EffectiveCapacity maps non-positive capacities to 1.
func EffectiveCapacity(capacity int) int {
	if capacity <= 0 {
		return 1
	}
	return capacity
}

// BoundingBox restricts results to a lat/lon rectangle.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Valid reports whether the box has non-inverted edges.
func (b BoundingBox) Valid() bool {
	return b.MinLat <= b.MaxLat && b.MinLon <= b.MaxLon
}

// Contains reports whether the point lies inside the box, edges included.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// CatalogFilter narrows a catalog listing.
type CatalogFilter struct {
	StationIDs []string
	Bounds     *BoundingBox
}

// Catalog reads static station attributes.
type Catalog interface {
	List(ctx context.Context, filter CatalogFilter) ([]Station, error)
	Get(ctx context.Context, id string) (*Station, error)
}
