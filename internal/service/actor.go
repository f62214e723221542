package service

import (
	"strconv"

	"github.com/iliyamo/cinema-booking/internal/activity"
	"github.com/iliyamo/cinema-booking/internal/model"
)

// RoleSystem marks internal callers such as the expiry sweep.
const RoleSystem = "SYSTEM"

// Actor is the caller of a service operation. A zero UserID is a guest.
type Actor struct {
	UserID   uint64
	Username string
	Role     string
}

// SystemActor runs background sweeps.
var SystemActor = Actor{Role: RoleSystem}

func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin || a.Role == RoleSystem }

func (a Actor) activity() activity.Actor {
	if a.UserID == 0 {
		return activity.Actor{Username: a.Username}
	}
	return activity.Actor{UserID: strconv.FormatUint(a.UserID, 10), Username: a.Username}
}

// label names the actor kind for metrics.
func (a Actor) label() string {
	switch {
	case a.Role == RoleSystem:
		return "system"
	case a.Role == model.RoleAdmin:
		return "admin"
	case a.UserID == 0:
		return "guest"
	}
	return "owner"
}
