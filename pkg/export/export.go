// Package export renders alert backlogs for offline analysis.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"time"

	"github.com/transitio/fleetcoord/core/model"
)

// WriteJSON writes the alert history to w in JSON format.
func WriteJSON(w io.Writer, alerts []model.AlertEvent) error {
	enc := json.NewEncoder(w)
	return enc.Encode(alerts)
}

// WriteCSV writes the alert history to w as CSV.
func WriteCSV(w io.Writer, alerts []model.AlertEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "type", "bus_id", "origin_id", "created_at"}); err != nil {
		return err
	}
	for _, a := range alerts {
		rec := []string{
			a.ID,
			a.Type.String(),
			a.BusID,
			a.OriginID,
			a.CreatedAt.Format(time.RFC3339),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
