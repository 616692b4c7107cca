package config

import (
	"fmt"

	"github.com/transitio/fleetcoord/core/model"
	infraroster "github.com/transitio/fleetcoord/infra/roster"
)

// RosterConfig selects where the bus fleet definition comes from: the
// MySQL fleet database in production, or an inline list for development
// and tests.
type RosterConfig struct {
	MySQL infraroster.Config `json:"mysql"`
	Buses []BusSeed          `json:"buses"`
}

// BusSeed is one inline bus definition. Seats are numbered 1..Seats and
// all share the given category.
type BusSeed struct {
	ID       string `json:"id"`
	OwnerID  string `json:"owner_id"`
	DriverID string `json:"driver_id"`
	Seats    int    `json:"seats"`
	Category string `json:"category"`
}

// Validate ensures at least one roster source is configured.
func (c RosterConfig) Validate() error {
	if c.MySQL.Enabled {
		return nil
	}
	if len(c.Buses) == 0 {
		return fmt.Errorf("roster requires either mysql or inline buses")
	}
	for _, b := range c.Buses {
		if b.ID == "" {
			return fmt.Errorf("inline bus without id")
		}
		if b.Seats <= 0 {
			return fmt.Errorf("bus %s must have at least one seat", b.ID)
		}
	}
	return nil
}

// BusInfos expands the inline seeds into roster entries.
func (c RosterConfig) BusInfos() []model.BusInfo {
	out := make([]model.BusInfo, 0, len(c.Buses))
	for _, b := range c.Buses {
		category := b.Category
		if category == "" {
			category = "standard"
		}
		seats := make([]model.SeatSpec, 0, b.Seats)
		for n := 1; n <= b.Seats; n++ {
			seats = append(seats, model.SeatSpec{Number: n, Category: category})
		}
		out = append(out, model.BusInfo{ID: b.ID, OwnerID: b.OwnerID, DriverID: b.DriverID, Seats: seats})
	}
	return out
}
