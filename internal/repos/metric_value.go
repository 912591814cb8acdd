package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/corefin/metrichub/internal/logger"
	"github.com/corefin/metrichub/internal/types"
)

type MetricValueFilter struct {
	BindingID     uuid.UUID
	PeriodFrom    *time.Time
	PeriodTo      *time.Time
	CompanyCode   string
	DimensionsKey string
}

type MetricValueRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, rows []*types.MetricValue) error
	Get(ctx context.Context, tx *gorm.DB, bindingID uuid.UUID, period time.Time, companyCode, dimensionsKey string) (*types.MetricValue, error)
	List(ctx context.Context, tx *gorm.DB, filter MetricValueFilter) ([]*types.MetricValue, error)
	DeleteByBinding(ctx context.Context, tx *gorm.DB, bindingID uuid.UUID) error
}

type metricValueRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMetricValueRepo(db *gorm.DB, baseLog *logger.Logger) MetricValueRepo {
	return &metricValueRepo{db: db, log: baseLog.With("repo", "MetricValueRepo")}
}

// Upsert writes value rows idempotently on the composite key
// (binding, period, company, dimensions). Recomputation overwrites the
// payload columns and always bumps updated_at.
func (r *metricValueRepo) Upsert(ctx context.Context, tx *gorm.DB, rows []*types.MetricValue) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	now := time.Now()
	for _, row := range rows {
		row.UpdatedAt = now
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "metric_version_caliber_id"},
				{Name: "period_date"},
				{Name: "company_code"},
				{Name: "dimensions_key"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"value", "value_status", "quality_score", "combo_id", "updated_at",
			}),
		}).
		Create(&rows).Error
}

func (r *metricValueRepo) Get(ctx context.Context, tx *gorm.DB, bindingID uuid.UUID, period time.Time, companyCode, dimensionsKey string) (*types.MetricValue, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if bindingID == uuid.Nil {
		return nil, nil
	}
	var row types.MetricValue
	err := transaction.WithContext(ctx).
		Where("metric_version_caliber_id = ? AND period_date = ? AND company_code = ? AND dimensions_key = ?",
			bindingID, period, companyCode, dimensionsKey).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.MetricVersionCaliberID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *metricValueRepo) List(ctx context.Context, tx *gorm.DB, filter MetricValueFilter) ([]*types.MetricValue, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.MetricValue
	if filter.BindingID == uuid.Nil {
		return out, nil
	}
	q := transaction.WithContext(ctx).
		Where("metric_version_caliber_id = ?", filter.BindingID)
	if filter.PeriodFrom != nil {
		q = q.Where("period_date >= ?", *filter.PeriodFrom)
	}
	if filter.PeriodTo != nil {
		q = q.Where("period_date <= ?", *filter.PeriodTo)
	}
	if filter.CompanyCode != "" {
		q = q.Where("company_code = ?", filter.CompanyCode)
	}
	if filter.DimensionsKey != "" {
		q = q.Where("dimensions_key = ?", filter.DimensionsKey)
	}
	if err := q.Order("period_date ASC, company_code ASC, dimensions_key ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *metricValueRepo) DeleteByBinding(ctx context.Context, tx *gorm.DB, bindingID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if bindingID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("metric_version_caliber_id = ?", bindingID).
		Delete(&types.MetricValue{}).Error
}
