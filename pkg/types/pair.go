package types

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// StockPair identifies one part stocked at one location, the unit of work for
// every pipeline stage.
type StockPair struct {
	LocationID uuid.UUID `json:"location_id"`
	PartID     uuid.UUID `json:"part_id"`
}

func (p StockPair) String() string {
	return p.LocationID.String() + "/" + p.PartID.String()
}

// Less orders pairs by location then part.
func (p StockPair) Less(other StockPair) bool {
	if c := bytes.Compare(p.LocationID[:], other.LocationID[:]); c != 0 {
		return c < 0
	}
	return bytes.Compare(p.PartID[:], other.PartID[:]) < 0
}

// StartOfDayUTC truncates t to midnight of its UTC calendar day.
func StartOfDayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
