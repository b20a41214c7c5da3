// README: Farm-out automation handlers (settings and active jobs).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"relialimo/internal/modules/farmout"
)

type FarmoutHandler struct {
	farmout *farmout.Service
}

func NewFarmoutHandler(svc *farmout.Service) *FarmoutHandler {
	return &FarmoutHandler{farmout: svc}
}

// updateSettingsReq is a partial update. The interval is taken as any JSON
// value; invalid values fall back to the default interval.
type updateSettingsReq struct {
	DispatchIntervalMinutes any     `json:"dispatch_interval_minutes"`
	Recipients              *string `json:"recipients" validate:"omitempty,max=4000"`
}

type editIntervalReq struct {
	Value string `json:"value" validate:"max=16"`
}

type settingsResponse struct {
	DispatchIntervalMinutes int                 `json:"dispatch_interval_minutes"`
	RecipientsRaw           string              `json:"recipients_raw"`
	Recipients              []farmout.Recipient `json:"recipients"`
}

func toSettingsResponse(s farmout.Settings) settingsResponse {
	return settingsResponse{
		DispatchIntervalMinutes: s.DispatchIntervalMinutes,
		RecipientsRaw:           s.RecipientsRaw,
		Recipients:              s.Recipients,
	}
}

func (h *FarmoutHandler) GetSettings(c *gin.Context) {
	writeJSON(c, http.StatusOK, toSettingsResponse(h.farmout.Settings()))
}

func (h *FarmoutHandler) UpdateSettings(c *gin.Context) {
	var req updateSettingsReq
	if !bindJSON(c, &req) {
		return
	}
	s, err := h.farmout.UpdateSettings(c.Request.Context(), farmout.SettingsUpdate{
		DispatchIntervalMinutes: req.DispatchIntervalMinutes,
		Recipients:              req.Recipients,
	})
	if err != nil {
		writeError(c, http.StatusInternalServerError, "settings not saved")
		return
	}
	writeJSON(c, http.StatusOK, toSettingsResponse(s))
}

// EditInterval applies a dispatcher's edit; invalid input keeps the current interval.
func (h *FarmoutHandler) EditInterval(c *gin.Context) {
	var req editIntervalReq
	if !bindJSON(c, &req) {
		return
	}
	s, err := h.farmout.EditInterval(c.Request.Context(), req.Value)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "settings not saved")
		return
	}
	writeJSON(c, http.StatusOK, toSettingsResponse(s))
}

func (h *FarmoutHandler) Jobs(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"status": h.farmout.Status(),
		"jobs":   h.farmout.Jobs(),
	})
}
