package repos

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/corefin/metrichub/internal/logger"
	"github.com/corefin/metrichub/internal/types"
)

type SourceValueRepo interface {
	Read(ctx context.Context, source string, period time.Time, companyCode, dimensionsKey string) (*float64, error)
	Upsert(ctx context.Context, tx *gorm.DB, rows []*types.SourceValue) error
}

type sourceValueRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSourceValueRepo(db *gorm.DB, baseLog *logger.Logger) SourceValueRepo {
	return &sourceValueRepo{db: db, log: baseLog.With("repo", "SourceValueRepo")}
}

// Read returns nil without error when no row exists; the evaluator turns
// that into a per-cell error status rather than a failed run.
func (r *sourceValueRepo) Read(ctx context.Context, source string, period time.Time, companyCode, dimensionsKey string) (*float64, error) {
	var row types.SourceValue
	err := r.db.WithContext(ctx).
		Where("source_name = ? AND period_date = ? AND company_code = ? AND dimensions_key = ?",
			source, period, companyCode, dimensionsKey).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.SourceName == "" {
		return nil, nil
	}
	v := row.Value
	return &v, nil
}

func (r *sourceValueRepo) Upsert(ctx context.Context, tx *gorm.DB, rows []*types.SourceValue) error {
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
				{Name: "source_name"},
				{Name: "period_date"},
				{Name: "company_code"},
				{Name: "dimensions_key"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&rows).Error
}
