package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	alertapp "velib-cloud/internal/alerts/application"
	alerts "velib-cloud/internal/alerts/domain"
	"velib-cloud/internal/auth"
	stations "velib-cloud/internal/stations/domain"
)

const maxBodyBytes = 1 << 16

// Handler provides alert HTTP endpoints.
type Handler struct {
	engine   *alertapp.Engine
	validate *validator.Validate
}

// NewHandler constructs a handler.
func NewHandler(engine *alertapp.Engine) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("alerts handler: nil engine")
	}
	return &Handler{engine: engine, validate: validator.New(validator.WithRequiredStructEnabled())}, nil
}

type createRequest struct {
	StationID           string `json:"station_id" validate:"required,max=64"`
	AlertType           string `json:"alert_type" validate:"required,oneof=bikes_available docks_available ebikes_available mechanical_bikes"`
	Threshold           int    `json:"threshold" validate:"gt=0,lte=500"`
	NotificationChannel string `json:"notification_channel" validate:"omitempty,max=320"`
	Frequency           string `json:"frequency" validate:"omitempty,oneof=immediate hourly daily"`
}

type activeRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// Routes mounts the alert endpoints under /api/v1/alerts.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1/alerts", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Delete("/{id}", h.remove)
		r.Post("/{id}/active", h.setActive)
		r.Post("/{id}/test", h.sendTest)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())
	list, err := h.engine.List(r.Context(), session)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, _ := auth.SessionFromContext(r.Context())
	alert, err := h.engine.Create(r.Context(), session, alertapp.CreateInput{
		StationID:           req.StationID,
		Type:                alerts.AlertType(req.AlertType),
		Threshold:           req.Threshold,
		NotificationChannel: req.NotificationChannel,
		Frequency:           alerts.Frequency(req.Frequency),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())
	if err := h.engine.Delete(r.Context(), session, chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, _ := auth.SessionFromContext(r.Context())
	alert, err := h.engine.SetActive(r.Context(), session, chi.URLParam(r, "id"), *req.Active)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *Handler) sendTest(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())
	if err := h.engine.SendTest(r.Context(), session, chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			http.Error(w, "invalid field: "+verrs[0].Field(), http.StatusBadRequest)
			return false
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, alerts.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, stations.ErrStationNotFound):
		http.Error(w, "unknown station", http.StatusUnprocessableEntity)
	case errors.Is(err, alerts.ErrInvalidType),
		errors.Is(err, alerts.ErrInvalidFrequency),
		errors.Is(err, alerts.ErrInvalidThreshold):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, alerts.ErrDeliveryFailed):
		http.Error(w, "notification delivery failed", http.StatusBadGateway)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
