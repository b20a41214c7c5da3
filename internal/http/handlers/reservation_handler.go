// README: Reservation handlers: create/list/get and farm-out mode, status, accept and clear.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"relialimo/internal/modules/driver"
	"relialimo/internal/modules/farmout"
	"relialimo/internal/modules/reservation"
	"relialimo/internal/types"
)

// ActivityLister reads the farm-out audit trail of one reservation.
type ActivityLister interface {
	List(ctx context.Context, reservationID types.ID, limit int) ([]farmout.ActivityEntry, error)
}

type ReservationHandler struct {
	reservations *reservation.Service
	drivers      *driver.Service
	activity     ActivityLister
}

func NewReservationHandler(reservations *reservation.Service, drivers *driver.Service, activity ActivityLister) *ReservationHandler {
	return &ReservationHandler{reservations: reservations, drivers: drivers, activity: activity}
}

type createReservationReq struct {
	ConfirmationNumber string     `json:"confirmation_number" validate:"max=64"`
	PassengerName      string     `json:"passenger_name" validate:"required,max=200"`
	PickupAt           *time.Time `json:"pickup_at"`
	PickupLocation     string     `json:"pickup_location" validate:"max=500"`
	DropoffLocation    string     `json:"dropoff_location" validate:"max=500"`
	FarmoutMode        string     `json:"farmout_mode" validate:"omitempty,max=16"`
	FarmoutStatus      string     `json:"farmout_status" validate:"omitempty,max=64"`
}

type setModeReq struct {
	Mode string `json:"mode" validate:"required,max=16"`
}

type setStatusReq struct {
	Status string `json:"status" validate:"required,max=64"`
}

type acceptReq struct {
	DriverID   string `json:"driver_id" validate:"required,max=64"`
	DriverName string `json:"driver_name" validate:"max=200"`
}

type reservationResponse struct {
	ID                 types.ID    `json:"id"`
	ConfirmationNumber string      `json:"confirmation_number"`
	PassengerName      string      `json:"passenger_name"`
	PickupAt           *time.Time  `json:"pickup_at"`
	PickupLocation     string      `json:"pickup_location"`
	DropoffLocation    string      `json:"dropoff_location"`
	Pickup             types.Point `json:"pickup"`
	FarmoutMode        string      `json:"farmout_mode"`
	FarmoutStatus      string      `json:"farmout_status"`
	FarmoutDriverID    *types.ID   `json:"farmout_driver_id"`
	FarmoutDriverName  *string     `json:"farmout_driver_name"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

func toReservationResponse(r *reservation.Reservation) reservationResponse {
	return reservationResponse{
		ID:                 r.ID,
		ConfirmationNumber: r.ConfirmationNumber,
		PassengerName:      r.PassengerName,
		PickupAt:           r.PickupAt,
		PickupLocation:     r.PickupLocation,
		DropoffLocation:    r.DropoffLocation,
		Pickup:             r.Pickup,
		FarmoutMode:        string(r.FarmoutMode),
		FarmoutStatus:      r.FarmoutStatus,
		FarmoutDriverID:    r.FarmoutDriverID,
		FarmoutDriverName:  r.FarmoutDriverName,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func (h *ReservationHandler) Create(c *gin.Context) {
	var req createReservationReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.reservations.Create(c.Request.Context(), reservation.CreateCommand{
		ConfirmationNumber: req.ConfirmationNumber,
		PassengerName:      req.PassengerName,
		PickupAt:           req.PickupAt,
		PickupLocation:     req.PickupLocation,
		DropoffLocation:    req.DropoffLocation,
		FarmoutMode:        req.FarmoutMode,
		FarmoutStatus:      req.FarmoutStatus,
	})
	if err != nil {
		writeReservationError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toReservationResponse(r))
}

func (h *ReservationHandler) List(c *gin.Context) {
	list, err := h.reservations.List(c.Request.Context())
	if err != nil {
		writeReservationError(c, err)
		return
	}
	out := make([]reservationResponse, len(list))
	for i := range list {
		out[i] = toReservationResponse(&list[i])
	}
	writeJSON(c, http.StatusOK, gin.H{"reservations": out})
}

func (h *ReservationHandler) Get(c *gin.Context) {
	id, ok := reservationID(c)
	if !ok {
		return
	}
	r, err := h.reservations.Get(c.Request.Context(), id)
	if err != nil {
		writeReservationError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toReservationResponse(r))
}

func (h *ReservationHandler) SetMode(c *gin.Context) {
	id, ok := reservationID(c)
	if !ok {
		return
	}
	var req setModeReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.reservations.SetFarmoutMode(c.Request.Context(), reservation.SetModeCommand{ReservationID: id, Mode: req.Mode})
	if err != nil {
		writeReservationError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toReservationResponse(r))
}

func (h *ReservationHandler) SetStatus(c *gin.Context) {
	id, ok := reservationID(c)
	if !ok {
		return
	}
	var req setStatusReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.reservations.SetFarmoutStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		writeReservationError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toReservationResponse(r))
}

// Accept records a driver's acceptance; the driver name is filled from the
// directory when the caller omits it.
func (h *ReservationHandler) Accept(c *gin.Context) {
	id, ok := reservationID(c)
	if !ok {
		return
	}
	var req acceptReq
	if !bindJSON(c, &req) {
		return
	}
	name := req.DriverName
	if name == "" && h.drivers != nil {
		if d, err := h.drivers.Get(c.Request.Context(), types.ID(req.DriverID)); err == nil {
			name = d.Name
		}
	}
	r, err := h.reservations.AssignFarmoutDriver(c.Request.Context(), reservation.AssignDriverCommand{
		ReservationID: id,
		DriverID:      types.ID(req.DriverID),
		DriverName:    name,
	})
	if err != nil {
		writeReservationError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toReservationResponse(r))
}

func (h *ReservationHandler) Clear(c *gin.Context) {
	id, ok := reservationID(c)
	if !ok {
		return
	}
	r, err := h.reservations.ClearFarmoutDriver(c.Request.Context(), id)
	if err != nil {
		writeReservationError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toReservationResponse(r))
}

func (h *ReservationHandler) Activity(c *gin.Context) {
	id, ok := reservationID(c)
	if !ok {
		return
	}
	if h.activity == nil {
		writeJSON(c, http.StatusOK, gin.H{"activity": []farmout.ActivityEntry{}})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.activity.List(c.Request.Context(), id, limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"activity": entries})
}

func reservationID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid reservation id")
		return "", false
	}
	return types.ID(id), true
}
