package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/fieldstock-backend/pkg/pagination"
)

// Base is embedded by every pipeline repository. It carries either the root
// connection or the transaction a service bound it to.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection scoped to ctx.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Bind returns a Base scoped to tx, or b itself when tx is nil.
func (b Base) Bind(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// Keyset names the timestamp column a listing pages on, newest first, with id
// as the tiebreaker.
type Keyset struct {
	TimeColumn string
}

// Page applies the keyset seek and ordering to query, fetches one row past the
// normalized limit and returns the cursor for the next page when that extra
// row exists.
func Page[T any](query *gorm.DB, keys Keyset, cursor *pagination.Cursor, limit int, cursorOf func(T) pagination.Cursor) ([]T, *pagination.Cursor, error) {
	normalized := pagination.NormalizeLimit(limit)
	if cursor != nil {
		query = query.Where("("+keys.TimeColumn+", id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []T
	err := query.
		Order(keys.TimeColumn + " DESC").
		Order("id DESC").
		Limit(normalized + 1).
		Find(&rows).Error
	if err != nil {
		return nil, nil, err
	}
	if len(rows) <= normalized {
		return rows, nil, nil
	}
	next := cursorOf(rows[normalized-1])
	return rows[:normalized], &next, nil
}
