package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/corefin/metrichub/internal/logger"
	"github.com/corefin/metrichub/internal/types"
)

type MetricFilter struct {
	Keyword     string
	SubjectArea string
	Type        string
	Sensitivity string
	Limit       int
	Offset      int
}

type MetricSummary struct {
	TotalMetrics   int64               `json:"total_metrics"`
	TotalVersions  int64               `json:"total_versions"`
	ActiveVersions int64               `json:"active_versions"`
	BySubjectArea  []SubjectAreaCount  `json:"by_subject_area"`
}

type SubjectAreaCount struct {
	SubjectArea string `json:"subject_area"`
	Count       int64  `json:"count"`
}

type MetricRepo interface {
	Create(ctx context.Context, tx *gorm.DB, metric *types.Metric) (*types.Metric, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Metric, error)
	GetByCode(ctx context.Context, tx *gorm.DB, code string) (*types.Metric, error)
	List(ctx context.Context, tx *gorm.DB, filter MetricFilter) ([]*types.Metric, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	Summary(ctx context.Context, tx *gorm.DB) (*MetricSummary, error)
}

type metricRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMetricRepo(db *gorm.DB, baseLog *logger.Logger) MetricRepo {
	return &metricRepo{db: db, log: baseLog.With("repo", "MetricRepo")}
}

func (r *metricRepo) Create(ctx context.Context, tx *gorm.DB, metric *types.Metric) (*types.Metric, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if metric.ID == uuid.Nil {
		metric.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(metric).Error; err != nil {
		return nil, err
	}
	return metric, nil
}

func (r *metricRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Metric, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var metric types.Metric
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&metric).Error
	if err != nil {
		return nil, err
	}
	if metric.ID == uuid.Nil {
		return nil, nil
	}
	return &metric, nil
}

func (r *metricRepo) GetByCode(ctx context.Context, tx *gorm.DB, code string) (*types.Metric, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if code == "" {
		return nil, nil
	}
	var metric types.Metric
	err := transaction.WithContext(ctx).
		Where("code = ?", code).
		Limit(1).
		Find(&metric).Error
	if err != nil {
		return nil, err
	}
	if metric.ID == uuid.Nil {
		return nil, nil
	}
	return &metric, nil
}

func (r *metricRepo) List(ctx context.Context, tx *gorm.DB, filter MetricFilter) ([]*types.Metric, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).Model(&types.Metric{})
	if filter.Keyword != "" {
		kw := "%" + filter.Keyword + "%"
		q = q.Where("code LIKE ? OR name LIKE ?", kw, kw)
	}
	if filter.SubjectArea != "" {
		q = q.Where("subject_area = ?", filter.SubjectArea)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.Sensitivity != "" {
		q = q.Where("sensitivity = ?", filter.Sensitivity)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	var out []*types.Metric
	if err := q.Order("code ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *metricRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Metric{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// Delete removes the metric with its versions and their bindings in one
// transaction. Cascade is done explicitly so sqlite without foreign_keys
// pragma behaves the same as postgres.
func (r *metricRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var versionIDs []uuid.UUID
		if err := txx.Model(&types.MetricVersion{}).
			Where("metric_id = ?", id).
			Pluck("id", &versionIDs).Error; err != nil {
			return err
		}
		if len(versionIDs) > 0 {
			if err := txx.Where("metric_version_id IN ?", versionIDs).
				Delete(&types.MetricVersionCaliber{}).Error; err != nil {
				return err
			}
			if err := txx.Where("metric_id = ?", id).
				Delete(&types.MetricVersion{}).Error; err != nil {
				return err
			}
		}
		return txx.Where("id = ?", id).Delete(&types.Metric{}).Error
	})
}

func (r *metricRepo) Summary(ctx context.Context, tx *gorm.DB) (*MetricSummary, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	out := &MetricSummary{}
	db := transaction.WithContext(ctx)
	if err := db.Model(&types.Metric{}).Count(&out.TotalMetrics).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&types.MetricVersion{}).Count(&out.TotalVersions).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&types.MetricVersion{}).
		Where("status = ?", types.VersionStatusActive).
		Count(&out.ActiveVersions).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&types.Metric{}).
		Select("subject_area, COUNT(*) AS count").
		Group("subject_area").
		Order("subject_area ASC").
		Scan(&out.BySubjectArea).Error; err != nil {
		return nil, err
	}
	return out, nil
}
