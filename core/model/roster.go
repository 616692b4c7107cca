package model

// SeatSpec describes one seat in a bus roster, before any runtime state
// is attached.
type SeatSpec struct {
	Number   int
	Category string
}

// BusInfo is the roster entry for one bus: its seat layout and the
// identities that receive role-scoped alert fan-out.
type BusInfo struct {
	ID       string
	OwnerID  string
	DriverID string
	Seats    []SeatSpec
}
