package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// MetricCaliber is a reusable formula fragment identified by a unique code.
// It is referenced, not owned, by version bindings.
type MetricCaliber struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Code         string         `gorm:"column:code;size:64;not null;uniqueIndex" json:"code"`
	Name         string         `gorm:"column:name;size:255;not null" json:"name"`
	Category     string         `gorm:"column:category;size:32;not null" json:"category"`
	ExprDSL      datatypes.JSON `gorm:"column:expr_dsl;type:jsonb" json:"expr_dsl"`
	ExprSQL      string         `gorm:"column:expr_sql;type:text" json:"expr_sql"`
	DataSources  datatypes.JSON `gorm:"column:data_sources;type:jsonb" json:"data_sources"`
	ValueFormat  string         `gorm:"column:value_format;size:32" json:"value_format"`
	UnitOverride string         `gorm:"column:unit_override;size:64" json:"unit_override"`
	Notes        string         `gorm:"column:notes;type:text" json:"notes"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
}

func (MetricCaliber) TableName() string { return "metric_caliber" }
