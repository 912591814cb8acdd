package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/corefin/metrichub/internal/logger"
	"github.com/corefin/metrichub/internal/types"
)

type MetricVersionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, version *types.MetricVersion) (*types.MetricVersion, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.MetricVersion, error)
	ListByMetric(ctx context.Context, tx *gorm.DB, metricID uuid.UUID) ([]*types.MetricVersion, error)
	LatestByMetric(ctx context.Context, tx *gorm.DB, metricID uuid.UUID) (*types.MetricVersion, error)
	ActiveAsOf(ctx context.Context, tx *gorm.DB, metricID uuid.UUID, asOf time.Time) (*types.MetricVersion, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	UpdateStatusByMetric(ctx context.Context, tx *gorm.DB, metricID uuid.UUID, fromStatus, toStatus string) (int64, error)
}

type metricVersionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMetricVersionRepo(db *gorm.DB, baseLog *logger.Logger) MetricVersionRepo {
	return &metricVersionRepo{db: db, log: baseLog.With("repo", "MetricVersionRepo")}
}

func (r *metricVersionRepo) Create(ctx context.Context, tx *gorm.DB, version *types.MetricVersion) (*types.MetricVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if version.ID == uuid.Nil {
		version.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(version).Error; err != nil {
		return nil, err
	}
	return version, nil
}

func (r *metricVersionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.MetricVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var version types.MetricVersion
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&version).Error
	if err != nil {
		return nil, err
	}
	if version.ID == uuid.Nil {
		return nil, nil
	}
	return &version, nil
}

func (r *metricVersionRepo) ListByMetric(ctx context.Context, tx *gorm.DB, metricID uuid.UUID) ([]*types.MetricVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.MetricVersion
	if metricID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("metric_id = ?", metricID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *metricVersionRepo) LatestByMetric(ctx context.Context, tx *gorm.DB, metricID uuid.UUID) (*types.MetricVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if metricID == uuid.Nil {
		return nil, nil
	}
	var version types.MetricVersion
	err := transaction.WithContext(ctx).
		Where("metric_id = ?", metricID).
		Order("created_at DESC").
		Limit(1).
		Find(&version).Error
	if err != nil {
		return nil, err
	}
	if version.ID == uuid.Nil {
		return nil, nil
	}
	return &version, nil
}

// ActiveAsOf returns the single active version whose effective window
// covers the date, newest first when windows overlap.
func (r *metricVersionRepo) ActiveAsOf(ctx context.Context, tx *gorm.DB, metricID uuid.UUID, asOf time.Time) (*types.MetricVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if metricID == uuid.Nil {
		return nil, nil
	}
	var version types.MetricVersion
	err := transaction.WithContext(ctx).
		Where("metric_id = ? AND status = ?", metricID, types.VersionStatusActive).
		Where("effective_from <= ?", asOf).
		Where("effective_to IS NULL OR effective_to >= ?", asOf).
		Order("effective_from DESC").
		Limit(1).
		Find(&version).Error
	if err != nil {
		return nil, err
	}
	if version.ID == uuid.Nil {
		return nil, nil
	}
	return &version, nil
}

func (r *metricVersionRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.MetricVersion{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *metricVersionRepo) UpdateStatusByMetric(ctx context.Context, tx *gorm.DB, metricID uuid.UUID, fromStatus, toStatus string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if metricID == uuid.Nil {
		return 0, nil
	}
	res := transaction.WithContext(ctx).
		Model(&types.MetricVersion{}).
		Where("metric_id = ? AND status = ?", metricID, fromStatus).
		Update("status", toStatus)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
