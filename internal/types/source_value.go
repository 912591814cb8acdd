package types

import "time"

// SourceValue is a raw source cell the evaluator reads when a plan step
// references an external source name instead of another caliber.
type SourceValue struct {
	SourceName    string    `gorm:"column:source_name;size:64;primaryKey" json:"source_name"`
	PeriodDate    time.Time `gorm:"column:period_date;type:date;primaryKey" json:"period_date"`
	CompanyCode   string    `gorm:"column:company_code;size:64;primaryKey" json:"company_code"`
	DimensionsKey string    `gorm:"column:dimensions_key;size:100;primaryKey" json:"dimensions_key"`
	Value         float64   `gorm:"column:value;type:numeric(18,4);not null" json:"value"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

func (SourceValue) TableName() string { return "source_value" }
