package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	BindingStatusActive   = "active"
	BindingStatusInactive = "inactive"
)

// MetricVersionCaliber binds a caliber into a metric version's chain.
// Seq is assigned monotonically at create time and is the deterministic
// tie-break when two bindings share the same order_index.
type MetricVersionCaliber struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	MetricVersionID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"metric_version_id"`
	CaliberID           *uuid.UUID     `gorm:"type:uuid;index" json:"caliber_id,omitempty"`
	Caliber             *MetricCaliber `gorm:"constraint:OnDelete:SET NULL;foreignKey:CaliberID;references:ID" json:"caliber,omitempty"`
	Status              string         `gorm:"column:status;size:16;not null;default:active;index" json:"status"`
	EffectiveFrom       *time.Time     `gorm:"column:effective_from;type:date" json:"effective_from,omitempty"`
	EffectiveTo         *time.Time     `gorm:"column:effective_to;type:date" json:"effective_to,omitempty"`
	OrderIndex          int            `gorm:"column:order_index;not null;default:0" json:"order_index"`
	Seq                 int64          `gorm:"column:seq;not null;index" json:"seq"`
	OverrideExprDSL     datatypes.JSON `gorm:"column:override_expr_dsl;type:jsonb" json:"override_expr_dsl"`
	OverrideExprSQL     string         `gorm:"column:override_expr_sql;type:text" json:"override_expr_sql"`
	OverrideDataSources datatypes.JSON `gorm:"column:override_data_sources;type:jsonb" json:"override_data_sources"`
	Notes               string         `gorm:"column:notes;type:text" json:"notes"`
	CreatedAt           time.Time      `gorm:"not null" json:"created_at"`
}

func (MetricVersionCaliber) TableName() string { return "metric_version_caliber" }
