package apihttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	stationapp "velib-cloud/internal/stations/application"
	stations "velib-cloud/internal/stations/domain"
)

const maxLimit = 5000

// StateResolver resolves latest station states.
type StateResolver interface {
	Resolve(ctx context.Context, q stationapp.Query) ([]stations.StationState, error)
	ResolveOne(ctx context.Context, stationID string) (*stations.StationState, error)
}

// StationsHandler serves latest station states.
type StationsHandler struct {
	resolver StateResolver
}

// NewStationsHandler constructs a handler.
func NewStationsHandler(resolver StateResolver) (*StationsHandler, error) {
	if resolver == nil {
		return nil, errors.New("stations handler: nil resolver")
	}
	return &StationsHandler{resolver: resolver}, nil
}

// Latest handles GET /api/v1/stations/latest?limit=&bbox=&station_id=.
func (h *StationsHandler) Latest(w http.ResponseWriter, r *http.Request) {
	query, err := parseStationQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	states, err := h.resolver.Resolve(r.Context(), query)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, envelope{Data: []stations.StationState{}, Error: "station store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: states})
}

// One handles GET /api/v1/stations/{id}/latest.
func (h *StationsHandler) One(w http.ResponseWriter, r *http.Request) {
	state, err := h.resolver.ResolveOne(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, stations.ErrStationNotFound):
		http.Error(w, "not found", http.StatusNotFound)
		return
	case err != nil:
		writeJSON(w, http.StatusServiceUnavailable, envelope{Data: nil, Error: "station store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: state})
}

func parseStationQuery(r *http.Request) (stationapp.Query, error) {
	values := r.URL.Query()
	var q stationapp.Query
	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxLimit {
			return q, fmt.Errorf("limit must be between 1 and %d", maxLimit)
		}
		q.Limit = limit
	}
	if raw := values.Get("bbox"); raw != "" {
		box, err := parseBBox(raw)
		if err != nil {
			return q, err
		}
		q.Bounds = &box
	}
	for _, raw := range values["station_id"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				q.StationIDs = append(q.StationIDs, id)
			}
		}
	}
	return q, nil
}

// parseBBox reads "minLon,minLat,maxLon,maxLat".
func parseBBox(raw string) (stations.BoundingBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return stations.BoundingBox{}, errors.New("bbox must be minLon,minLat,maxLon,maxLat")
	}
	var coords [4]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return stations.BoundingBox{}, errors.New("bbox must contain numbers")
		}
		coords[i] = v
	}
	box := stations.BoundingBox{MinLon: coords[0], MinLat: coords[1], MaxLon: coords[2], MaxLat: coords[3]}
	if !box.Valid() {
		return stations.BoundingBox{}, errors.New("bbox edges are inverted")
	}
	return box, nil
}
