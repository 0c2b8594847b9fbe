// Package export writes decision records in JSON or CSV for offline review.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/consolidation/core/model"
)

var csvHeader = []string{"decision_id", "parcel_id", "requested_at", "vehicle_id", "requires_new_dispatch", "score", "shadow_mode", "executed", "overridden"}

// WriteJSON writes recs as one JSON array.
func WriteJSON(w io.Writer, recs []model.DecisionRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}

// WriteCSV writes one row per decision with a header line.
func WriteCSV(w io.Writer, recs []model.DecisionRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range recs {
		row := []string{
			r.ID,
			r.ParcelID,
			r.RequestedAt.UTC().Format(time.RFC3339),
			r.VehicleID(),
			strconv.FormatBool(r.RequiresNewDispatch),
			strconv.FormatFloat(r.Score, 'f', 2, 64),
			strconv.FormatBool(r.ShadowMode),
			strconv.FormatBool(r.Executed),
			strconv.FormatBool(r.Overridden),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Write dispatches on format, which is "json" or "csv".
func Write(w io.Writer, format string, recs []model.DecisionRecord) error {
	switch format {
	case "", "json":
		return WriteJSON(w, recs)
	case "csv":
		return WriteCSV(w, recs)
	}
	return fmt.Errorf("unknown export format %q", format)
}
