package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	ValueStatusActual    = "actual"
	ValueStatusEstimated = "estimated"
	ValueStatusError     = "error"
)

// MetricValue is the durable output row other reporting consumers rely on.
// The composite key admits at most one row per
// (binding, period, company, dimensions) tuple; recomputation overwrites
// in place via upsert, never duplicates.
type MetricValue struct {
	MetricVersionCaliberID uuid.UUID `gorm:"type:uuid;primaryKey" json:"metric_version_caliber_id"`
	PeriodDate             time.Time `gorm:"column:period_date;type:date;primaryKey" json:"period_date"`
	CompanyCode            string    `gorm:"column:company_code;size:64;primaryKey" json:"company_code"`
	DimensionsKey          string    `gorm:"column:dimensions_key;size:100;primaryKey" json:"dimensions_key"`
	Value                  *float64  `gorm:"column:value;type:numeric(18,4)" json:"value"`
	ValueStatus            string    `gorm:"column:value_status;size:16;not null;default:actual" json:"value_status"`
	QualityScore           *float64  `gorm:"column:quality_score;type:numeric(10,0)" json:"quality_score,omitempty"`
	ComboID                *int64    `gorm:"column:combo_id" json:"combo_id,omitempty"`
	UpdatedAt              time.Time `gorm:"not null" json:"updated_at"`
}

func (MetricValue) TableName() string { return "metric_value" }
