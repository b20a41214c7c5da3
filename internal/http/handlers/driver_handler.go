// README: Driver directory handlers (list, availability).
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"relialimo/internal/modules/driver"
	"relialimo/internal/types"
)

type DriverHandler struct {
	drivers *driver.Service
}

func NewDriverHandler(drivers *driver.Service) *DriverHandler {
	return &DriverHandler{drivers: drivers}
}

type setDriverStatusReq struct {
	Status string `json:"status" validate:"required,oneof=available busy offline"`
}

type driverResponse struct {
	ID        types.ID  `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toDriverResponse(d driver.Driver) driverResponse {
	return driverResponse{ID: d.ID, Name: d.Name, Phone: d.Phone, Status: string(d.Status), UpdatedAt: d.UpdatedAt}
}

// List returns every driver, or only available ones with ?available=true.
func (h *DriverHandler) List(c *gin.Context) {
	var (
		list []driver.Driver
		err  error
	)
	if c.Query("available") == "true" {
		list, err = h.drivers.ListAvailable(c.Request.Context())
	} else {
		list, err = h.drivers.List(c.Request.Context())
	}
	if err != nil {
		writeDriverError(c, err)
		return
	}
	out := make([]driverResponse, len(list))
	for i, d := range list {
		out[i] = toDriverResponse(d)
	}
	writeJSON(c, http.StatusOK, gin.H{"drivers": out})
}

func (h *DriverHandler) SetStatus(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid driver id")
		return
	}
	var req setDriverStatusReq
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.drivers.SetStatus(c.Request.Context(), types.ID(id), req.Status)
	if err != nil {
		writeDriverError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toDriverResponse(*d))
}
