// Package roster exposes the bus/seat roster the coordinator is
// initialized from. The roster is owned by the surrounding CRUD layer;
// this service only ever reads it.
package roster

import "github.com/transitio/fleetcoord/core/model"

// Roster resolves bus metadata: seat layout for inventory seeding and
// owner/driver identities for alert fan-out.
type Roster interface {
	// Bus returns the roster entry for the given bus id.
	Bus(busID string) (model.BusInfo, bool)
	// Buses returns every known bus.
	Buses() []model.BusInfo
}

// Static is an immutable in-memory Roster, used for tests and for
// deployments that push the roster in at startup.
type Static struct {
	buses map[string]model.BusInfo
	order []string
}

// NewStatic builds a Static roster from the given entries.
func NewStatic(buses []model.BusInfo) *Static {
	s := &Static{buses: make(map[string]model.BusInfo, len(buses))}
	for _, b := range buses {
		if _, dup := s.buses[b.ID]; !dup {
			s.order = append(s.order, b.ID)
		}
		s.buses[b.ID] = b
	}
	return s
}

func (s *Static) Bus(busID string) (model.BusInfo, bool) {
	b, ok := s.buses[busID]
	return b, ok
}

func (s *Static) Buses() []model.BusInfo {
	out := make([]model.BusInfo, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.buses[id])
	}
	return out
}
