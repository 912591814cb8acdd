package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/corefin/metrichub/internal/logger"
	"github.com/corefin/metrichub/internal/types"
)

type BindingRepo interface {
	Create(ctx context.Context, tx *gorm.DB, binding *types.MetricVersionCaliber) (*types.MetricVersionCaliber, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.MetricVersionCaliber, error)
	ListByVersion(ctx context.Context, tx *gorm.DB, versionID uuid.UUID) ([]*types.MetricVersionCaliber, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type bindingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBindingRepo(db *gorm.DB, baseLog *logger.Logger) BindingRepo {
	return &bindingRepo{db: db, log: baseLog.With("repo", "BindingRepo")}
}

// Create assigns the next seq for the version inside one transaction.
// Seq is the insertion-order tie-break for bindings sharing an
// order_index, so it must be monotone per version.
func (r *bindingRepo) Create(ctx context.Context, tx *gorm.DB, binding *types.MetricVersionCaliber) (*types.MetricVersionCaliber, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if binding.ID == uuid.Nil {
		binding.ID = uuid.New()
	}
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var maxSeq int64
		if err := txx.Model(&types.MetricVersionCaliber{}).
			Where("metric_version_id = ?", binding.MetricVersionID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}
		binding.Seq = maxSeq + 1
		return txx.Create(binding).Error
	})
	if err != nil {
		return nil, err
	}
	return binding, nil
}

func (r *bindingRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.MetricVersionCaliber, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var binding types.MetricVersionCaliber
	err := transaction.WithContext(ctx).
		Preload("Caliber").
		Where("id = ?", id).
		Limit(1).
		Find(&binding).Error
	if err != nil {
		return nil, err
	}
	if binding.ID == uuid.Nil {
		return nil, nil
	}
	return &binding, nil
}

func (r *bindingRepo) ListByVersion(ctx context.Context, tx *gorm.DB, versionID uuid.UUID) ([]*types.MetricVersionCaliber, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.MetricVersionCaliber
	if versionID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Preload("Caliber").
		Where("metric_version_id = ?", versionID).
		Order("order_index ASC, seq ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *bindingRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.MetricVersionCaliber{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *bindingRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.MetricVersionCaliber{}).Error
}
