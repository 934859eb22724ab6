package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldstock-backend/api/validators"
	"github.com/angelmondragon/fieldstock-backend/pkg/pagination"
)

// pairRange holds the filters shared by every list endpoint.
type pairRange struct {
	locationID *uuid.UUID
	partID     *uuid.UUID
	from       *time.Time
	to         *time.Time
	limit      int
	cursor     string
}

func parsePairRange(r *http.Request) (pairRange, error) {
	var out pairRange
	var err error
	if out.locationID, err = validators.ParseQueryUUID(r, "location_id"); err != nil {
		return out, err
	}
	if out.partID, err = validators.ParseQueryUUID(r, "part_id"); err != nil {
		return out, err
	}
	if out.from, err = validators.ParseQueryTime(r, "from"); err != nil {
		return out, err
	}
	if out.to, err = validators.ParseQueryTime(r, "to"); err != nil {
		return out, err
	}
	if out.limit, err = validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit); err != nil {
		return out, err
	}
	out.cursor = strings.TrimSpace(r.URL.Query().Get("cursor"))
	return out, nil
}
