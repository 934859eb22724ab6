package migrate

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/fieldstock-backend/pkg/db/models"
)

// sqliteRecommendationsTable carries the Postgres CHECK constraints, which
// AutoMigrate cannot express, so the table is created by hand.
const sqliteRecommendationsTable = `CREATE TABLE IF NOT EXISTS reorder_recommendations (
	id uuid PRIMARY KEY,
	location_id uuid NOT NULL,
	part_id uuid NOT NULL,
	recommended_qty integer NOT NULL,
	stockout_risk_score integer NOT NULL,
	evidence jsonb NOT NULL,
	value_score jsonb NOT NULL,
	suggested_dealer_id uuid,
	needs_review numeric NOT NULL DEFAULT false,
	status recommendation_status_enum NOT NULL,
	approved_by text,
	approved_at datetime,
	rejected_by text,
	rejected_at datetime,
	decided_by_role text,
	notes text,
	ordered_at datetime,
	created_at datetime,
	updated_at datetime,
	CONSTRAINT ck_reorder_recommendations_qty CHECK (recommended_qty > 0),
	CONSTRAINT ck_reorder_recommendations_risk CHECK (stockout_risk_score BETWEEN 0 AND 100),
	CONSTRAINT ck_reorder_recommendations_evidence CHECK (
		json_type(evidence, '$.forecast') IS NOT NULL
		AND json_type(evidence, '$.current_available') IS NOT NULL
		AND json_type(evidence, '$.stockout_risk') IS NOT NULL),
	CONSTRAINT ck_reorder_recommendations_rejected_notes
		CHECK (status <> 'rejected' OR length(trim(coalesce(notes, ''))) > 0),
	CONSTRAINT ck_reorder_recommendations_approved_by
		CHECK (status NOT IN ('approved', 'ordered') OR approved_by IS NOT NULL)
)`

// sqliteGuards mirrors the partial unique indexes from the Postgres migrations.
var sqliteGuards = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_reorder_recommendations_open_pair
		ON reorder_recommendations (location_id, part_id) WHERE status = 'proposed'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_inventory_alerts_open_pair
		ON inventory_alerts (category, location_id, part_id) WHERE resolved_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS ix_forecast_snapshots_pair_window
		ON forecast_snapshots (location_id, part_id, window_days, computed_at)`,
}

// ApplySQLiteSchema builds the schema on a sqlite connection for local dev and tests.
func ApplySQLiteSchema(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if err := conn.Exec(sqliteRecommendationsTable).Error; err != nil {
		return fmt.Errorf("create sqlite recommendations table: %w", err)
	}
	if err := conn.AutoMigrate(
		&models.StockMovementEvent{},
		&models.DemandRollup{},
		&models.ForecastSnapshot{},
		&models.InventoryAlert{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	); err != nil {
		return fmt.Errorf("auto migrate sqlite schema: %w", err)
	}
	for _, stmt := range sqliteGuards {
		if err := conn.Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite guard: %w", err)
		}
	}
	return nil
}
