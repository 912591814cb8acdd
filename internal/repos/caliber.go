package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/corefin/metrichub/internal/logger"
	"github.com/corefin/metrichub/internal/types"
)

type CaliberFilter struct {
	Keyword  string
	Category string
	Limit    int
	Offset   int
}

type CaliberRepo interface {
	Create(ctx context.Context, tx *gorm.DB, caliber *types.MetricCaliber) (*types.MetricCaliber, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.MetricCaliber, error)
	GetByCode(ctx context.Context, tx *gorm.DB, code string) (*types.MetricCaliber, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.MetricCaliber, error)
	List(ctx context.Context, tx *gorm.DB, filter CaliberFilter) ([]*types.MetricCaliber, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	CountBindings(ctx context.Context, tx *gorm.DB, id uuid.UUID) (int64, error)
}

type caliberRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCaliberRepo(db *gorm.DB, baseLog *logger.Logger) CaliberRepo {
	return &caliberRepo{db: db, log: baseLog.With("repo", "CaliberRepo")}
}

func (r *caliberRepo) Create(ctx context.Context, tx *gorm.DB, caliber *types.MetricCaliber) (*types.MetricCaliber, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if caliber.ID == uuid.Nil {
		caliber.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(caliber).Error; err != nil {
		return nil, err
	}
	return caliber, nil
}

func (r *caliberRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.MetricCaliber, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var caliber types.MetricCaliber
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&caliber).Error
	if err != nil {
		return nil, err
	}
	if caliber.ID == uuid.Nil {
		return nil, nil
	}
	return &caliber, nil
}

func (r *caliberRepo) GetByCode(ctx context.Context, tx *gorm.DB, code string) (*types.MetricCaliber, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if code == "" {
		return nil, nil
	}
	var caliber types.MetricCaliber
	err := transaction.WithContext(ctx).
		Where("code = ?", code).
		Limit(1).
		Find(&caliber).Error
	if err != nil {
		return nil, err
	}
	if caliber.ID == uuid.Nil {
		return nil, nil
	}
	return &caliber, nil
}

func (r *caliberRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.MetricCaliber, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.MetricCaliber
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *caliberRepo) List(ctx context.Context, tx *gorm.DB, filter CaliberFilter) ([]*types.MetricCaliber, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).Model(&types.MetricCaliber{})
	if filter.Keyword != "" {
		kw := "%" + filter.Keyword + "%"
		q = q.Where("code LIKE ? OR name LIKE ?", kw, kw)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	var out []*types.MetricCaliber
	if err := q.Order("code ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *caliberRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.MetricCaliber{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *caliberRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.MetricCaliber{}).Error
}

// CountBindings reports how many version bindings still reference the
// caliber. Deletion is refused upstream while this is nonzero.
func (r *caliberRepo) CountBindings(ctx context.Context, tx *gorm.DB, id uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return 0, nil
	}
	var n int64
	err := transaction.WithContext(ctx).
		Model(&types.MetricVersionCaliber{}).
		Where("caliber_id = ?", id).
		Count(&n).Error
	if err != nil {
		return 0, err
	}
	return n, nil
}
