// README: Driver directory entries and availability statuses.
package driver

import (
	"time"

	"relialimo/internal/types"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusBusy      Status = "busy"
	StatusOffline   Status = "offline"
)

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusAvailable, StatusBusy, StatusOffline:
		return Status(s), true
	}
	return "", false
}

type Driver struct {
	ID        types.ID
	Name      string
	Phone     string
	Status    Status
	UpdatedAt time.Time
}

// Available reports whether the driver may receive a farm-out offer.
func (d Driver) Available() bool {
	return d.Status == StatusAvailable
}
