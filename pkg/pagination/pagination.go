package pagination

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 25
	// MaxLimit caps how many rows any cursor query can request.
	MaxLimit = 100

	cursorSep = "|"
)

// Params holds cursor pagination inputs from controllers or services.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor represents the pagination cursor components. SecondaryID is only set
// for tables keyed by two ids, such as daily rollups.
type Cursor struct {
	CreatedAt   time.Time
	ID          uuid.UUID
	SecondaryID uuid.UUID
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer returns the normalization result plus one to detect the next page.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// EncodeCursor builds an opaque, URL safe cursor from the provided values.
func EncodeCursor(cursor Cursor) string {
	payload := cursor.CreatedAt.UTC().Format(time.RFC3339Nano) + cursorSep + cursor.ID.String()
	if cursor.SecondaryID != uuid.Nil {
		payload += cursorSep + cursor.SecondaryID.String()
	}
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// Next encodes the cursor for the following page, or "" on the last page.
func Next(cursor *Cursor) string {
	if cursor == nil {
		return ""
	}
	return EncodeCursor(*cursor)
}

// ParseCursor decodes the cursor string back into its components. A blank value
// decodes to nil. Padded standard base64 from older clients is still accepted.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		var legacyErr error
		if decoded, legacyErr = base64.StdEncoding.DecodeString(value); legacyErr != nil {
			return nil, fmt.Errorf("decode cursor: %w", err)
		}
	}
	parts := strings.Split(string(decoded), cursorSep)
	if len(parts) != 2 && len(parts) != 3 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	t, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid cursor id: %w", err)
	}
	out := &Cursor{CreatedAt: t, ID: id}
	if len(parts) == 3 {
		if out.SecondaryID, err = uuid.Parse(parts[2]); err != nil {
			return nil, fmt.Errorf("invalid cursor secondary id: %w", err)
		}
	}
	return out, nil
}
