package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SensitivityNormal = "normal"
	SensitivityHigh   = "high"
)

const (
	VersionStatusDraft         = "draft"
	VersionStatusPendingReview = "pending_review"
	VersionStatusActive        = "active"
	VersionStatusRetired       = "retired"
)

type Metric struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Code        string          `gorm:"column:code;size:64;not null;uniqueIndex" json:"code"`
	Name        string          `gorm:"column:name;size:255;not null" json:"name"`
	Description string          `gorm:"column:description;type:text" json:"description"`
	Type        string          `gorm:"column:type;size:16;not null" json:"type"`
	Unit        string          `gorm:"column:unit;size:64" json:"unit"`
	SubjectArea string          `gorm:"column:subject_area;size:64;index" json:"subject_area"`
	Owner       string          `gorm:"column:owner;size:128" json:"owner"`
	Sensitivity string          `gorm:"column:sensitivity;size:16;not null;default:normal" json:"sensitivity"`
	CreatedBy   string          `gorm:"column:created_by;size:64" json:"created_by"`
	UpdatedBy   string          `gorm:"column:updated_by;size:64" json:"updated_by"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null" json:"updated_at"`
	Versions    []MetricVersion `gorm:"constraint:OnDelete:CASCADE;foreignKey:MetricID;references:ID" json:"versions,omitempty"`
}

func (Metric) TableName() string { return "metric" }

type MetricVersion struct {
	ID            uuid.UUID              `gorm:"type:uuid;primaryKey" json:"id"`
	MetricID      uuid.UUID              `gorm:"type:uuid;not null;index" json:"metric_id"`
	Version       string                 `gorm:"column:version;size:16;not null" json:"version"`
	Status        string                 `gorm:"column:status;size:16;not null;default:draft;index" json:"status"`
	EffectiveFrom time.Time              `gorm:"column:effective_from;type:date;not null" json:"effective_from"`
	EffectiveTo   *time.Time             `gorm:"column:effective_to;type:date" json:"effective_to,omitempty"`
	Grain         datatypes.JSON         `gorm:"column:grain;type:jsonb" json:"grain"`
	FormulaSQL    string                 `gorm:"column:formula_sql;type:text" json:"formula_sql"`
	FormulaDSL    datatypes.JSON         `gorm:"column:formula_dsl;type:jsonb" json:"formula_dsl"`
	DataSources   datatypes.JSON         `gorm:"column:data_sources;type:jsonb" json:"data_sources"`
	Notes         string                 `gorm:"column:notes;type:text" json:"notes"`
	CreatedAt     time.Time              `gorm:"not null" json:"created_at"`
	Bindings      []MetricVersionCaliber `gorm:"constraint:OnDelete:CASCADE;foreignKey:MetricVersionID;references:ID" json:"bindings,omitempty"`
}

func (MetricVersion) TableName() string { return "metric_version" }
