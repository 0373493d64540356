package booking

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	"vigila/cache"
	"vigila/feed"
	"vigila/models"
	"vigila/resource"
	"vigila/session"
	"vigila/utils"
	"vigila/workspace"
)

// Backend is the booking storage.
type Backend interface {
	cache.Gateway[models.Booking]
	Insert(ctx context.Context, b models.Booking) error
	Update(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
}

// Relay carries booking changes to the other instances.
type Relay interface {
	Publish(ctx context.Context, b models.Booking) error
}

// Handler serves the booking views. List, Detail and Delete come from the
// generic resource handler.
type Handler struct {
	*resource.Handler[models.Booking]

	backend  Backend
	services cache.Gateway[models.Service]
	secret   []byte
	now      func() time.Time

	// Relay is optional; without it changes stay local to this instance.
	Relay Relay
}

// NewHandler wires the booking views. secret signs voucher payloads.
func NewHandler(spaces *workspace.Registry, backend Backend, services cache.Gateway[models.Service], hub resource.Notifier, secret []byte, logger zerolog.Logger) *Handler {
	h := &Handler{
		backend:  backend,
		services: services,
		secret:   secret,
		now:      time.Now,
	}
	h.Handler = &resource.Handler[models.Booking]{
		Domain: workspace.Bookings,
		Spaces: spaces,
		Store:  func(w *workspace.Workspace) *cache.Store[models.Booking] { return w.Bookings },
		Writer: backend,
		Feed:   hub,
		Logger: logger.With().Str("pkg", "booking").Logger(),
		Match: func(b models.Booking, q string) bool {
			return utils.ContainsIgnoreCase(b.Status, q) || utils.ContainsIgnoreCase(b.Address, q) || utils.ContainsIgnoreCase(b.Notes, q)
		},
	}
	h.Handler.After = func(ctx context.Context, _ *workspace.Workspace, b models.Booking) {
		h.changed(ctx, b)
	}
	return h
}

type bookingRequest struct {
	ServiceID string    `json:"serviceId"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Address   string    `json:"address"`
	Notes     string    `json:"notes"`
}

// Create handles POST /bookings
func (h *Handler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s := session.FromContext(r.Context())
	if s == nil || s.Role != session.RoleConsumer {
		utils.RespondWithError(w, http.StatusForbidden, "Only consumers can book")
		return
	}

	var in bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid input")
		return
	}
	if in.ServiceID == "" || !in.EndDate.After(in.StartDate) {
		utils.RespondWithError(w, http.StatusBadRequest, "A service and a positive date range are required")
		return
	}

	svc, err := h.services.FetchDetail(r.Context(), in.ServiceID)
	if err != nil {
		utils.RespondWithStoreError(w, err, nil)
		return
	}
	if !svc.Active {
		utils.RespondWithError(w, http.StatusConflict, "Service is not bookable")
		return
	}

	b := models.Booking{
		ID:         resource.NewID("b-"),
		ConsumerID: s.UserID,
		VigilID:    svc.VigilID,
		ServiceID:  svc.ID,
		StartDate:  in.StartDate.UTC(),
		EndDate:    in.EndDate.UTC(),
		Address:    strings.TrimSpace(in.Address),
		Notes:      strings.TrimSpace(in.Notes),
		Price:      Quote(svc, in.StartDate, in.EndDate),
		Status:     models.BookingPending,
		CreatedAt:  h.now().UTC(),
	}
	if err := h.backend.Insert(r.Context(), b); err != nil {
		h.Logger.Error().Err(err).Msg("create booking failed")
		utils.RespondWithStoreError(w, err, nil)
		return
	}

	h.changed(r.Context(), b)
	h.Logger.Info().Str("booking", b.ID).Str("vigil", b.VigilID).Msg("booking created")
	utils.RespondWithJSON(w, http.StatusCreated, b)
}

// Cancel handles POST /bookings/:id/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	_, ws, ok := resource.Caller(w, r, h.Spaces)
	if !ok {
		return
	}
	if ws.Bookings == nil {
		utils.RespondWithError(w, http.StatusForbidden, "Not available for this role")
		return
	}

	id := ps.ByName("id")
	b, err := ws.Bookings.ReadDetail(r.Context(), id, true)
	if err != nil {
		utils.RespondWithStoreError(w, err, nil)
		return
	}
	switch b.Status {
	case models.BookingCancelled:
		utils.RespondWithJSON(w, http.StatusOK, b)
		return
	case models.BookingCompleted:
		utils.RespondWithError(w, http.StatusConflict, "Completed bookings cannot be cancelled")
		return
	}

	b, err = h.transition(r.Context(), b, models.BookingCancelled)
	if err != nil {
		h.Logger.Error().Err(err).Str("booking", id).Msg("cancel booking failed")
		utils.RespondWithStoreError(w, err, nil)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, b)
}

// Confirm handles POST /bookings/:id/confirm. The vigil accepts a pending
// booking; confirming twice is a no-op.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s := session.FromContext(r.Context())
	if s == nil || s.Role != session.RoleVigil {
		utils.RespondWithError(w, http.StatusForbidden, "Only the vigil can confirm a booking")
		return
	}
	_, ws, ok := resource.Caller(w, r, h.Spaces)
	if !ok {
		return
	}

	id := ps.ByName("id")
	b, err := ws.Bookings.ReadDetail(r.Context(), id, true)
	if err != nil {
		utils.RespondWithStoreError(w, err, nil)
		return
	}
	switch b.Status {
	case models.BookingConfirmed:
		utils.RespondWithJSON(w, http.StatusOK, b)
		return
	case models.BookingPending:
	default:
		utils.RespondWithError(w, http.StatusConflict, "Booking is "+b.Status)
		return
	}

	b, err = h.transition(r.Context(), b, models.BookingConfirmed)
	if err != nil {
		h.Logger.Error().Err(err).Str("booking", id).Msg("confirm booking failed")
		utils.RespondWithStoreError(w, err, nil)
		return
	}
	h.Logger.Info().Str("booking", id).Str("vigil", s.UserID).Msg("booking confirmed")
	utils.RespondWithJSON(w, http.StatusOK, b)
}

// transition writes status to the backend and tells every view of b.
func (h *Handler) transition(ctx context.Context, b models.Booking, status string) (models.Booking, error) {
	if err := h.backend.Update(ctx, b.ID, map[string]any{"status": status}); err != nil {
		return b, err
	}
	b.Status = status
	h.changed(ctx, b)
	return b, nil
}

// Apply marks the local views of a booking changed on another instance
// stale.
func (h *Handler) Apply(b models.Booking) {
	h.propagate(b)
}

func (h *Handler) changed(ctx context.Context, b models.Booking) {
	h.propagate(b)
	if h.Relay == nil {
		return
	}
	if err := h.Relay.Publish(ctx, b); err != nil {
		h.Logger.Warn().Err(err).Str("booking", b.ID).Msg("failed to relay booking change")
	}
}

// propagate marks every live view of b stale: the bookings of both
// parties and the sales of the vigil.
func (h *Handler) propagate(b models.Booking) {
	h.Spaces.Each(func(ws *workspace.Workspace) {
		involved := ws.Role == session.RoleAdmin || ws.UserID == b.ConsumerID || ws.UserID == b.VigilID
		if !involved {
			return
		}
		if ws.Bookings != nil {
			ws.Bookings.Invalidate()
			h.notify(ws.SessionID, workspace.Bookings, b.ID)
		}
		if ws.Sales != nil && ws.UserID != b.ConsumerID {
			ws.Sales.Invalidate()
			h.notify(ws.SessionID, workspace.Sales, b.ID)
		}
	})
}

func (h *Handler) notify(sessionID, domain, id string) {
	if h.Feed != nil {
		h.Feed.Notify(sessionID, feed.Notice{Type: feed.NoticeInvalidate, Domain: domain, ID: id})
	}
}

// Quote prices a booking of svc from start to end. Hourly and daily units
// are charged per started unit; any other unit is charged once.
func Quote(svc models.Service, start, end time.Time) float64 {
	d := end.Sub(start)
	units := 1.0
	switch svc.Unit {
	case "hour":
		units = math.Ceil(d.Hours())
	case "day":
		units = math.Ceil(d.Hours() / 24)
	}
	if units < 1 {
		units = 1
	}
	return math.Round(svc.UnitPrice*units*100) / 100
}
