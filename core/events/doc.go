// Package events defines the event variants published on the channel
// registry.
//
// Available event types:
//   - SeatUpdate: a seat changed status (held, booked, released, expired)
//   - LocationUpdate: the authoritative position for a bus changed
//   - SosAlert: panic button pressed on or near a bus
//   - BreakdownAlert: vehicle reported out of service
//
// Every variant implements Event; subscribe boundaries switch exhaustively
// over these types.
package events
