package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/corefin/metrichub/internal/logger"
	"github.com/corefin/metrichub/internal/types"
)

type DimRepo interface {
	ListCompanies(ctx context.Context, tx *gorm.DB, keyword string) ([]*types.DimCompany, error)
	ListProducts(ctx context.Context, tx *gorm.DB, keyword string) ([]*types.DimProduct, error)
	ListChannels(ctx context.Context, tx *gorm.DB, keyword string) ([]*types.DimChannel, error)
	GetCombo(ctx context.Context, tx *gorm.DB, comboID int64) (*types.DimCombo, error)
	EnsureCombo(ctx context.Context, tx *gorm.DB, companyID, coreCompanyID, productID, channelID *int64) (*types.DimCombo, error)
}

type dimRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDimRepo(db *gorm.DB, baseLog *logger.Logger) DimRepo {
	return &dimRepo{db: db, log: baseLog.With("repo", "DimRepo")}
}

func (r *dimRepo) ListCompanies(ctx context.Context, tx *gorm.DB, keyword string) ([]*types.DimCompany, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).Model(&types.DimCompany{})
	if keyword != "" {
		kw := "%" + keyword + "%"
		q = q.Where("company_code LIKE ? OR company_name LIKE ?", kw, kw)
	}
	var out []*types.DimCompany
	if err := q.Order("company_id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *dimRepo) ListProducts(ctx context.Context, tx *gorm.DB, keyword string) ([]*types.DimProduct, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).Model(&types.DimProduct{})
	if keyword != "" {
		kw := "%" + keyword + "%"
		q = q.Where("product_code LIKE ? OR product_name LIKE ?", kw, kw)
	}
	var out []*types.DimProduct
	if err := q.Order("product_id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *dimRepo) ListChannels(ctx context.Context, tx *gorm.DB, keyword string) ([]*types.DimChannel, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).Model(&types.DimChannel{})
	if keyword != "" {
		kw := "%" + keyword + "%"
		q = q.Where("channel_code LIKE ? OR channel_name LIKE ?", kw, kw)
	}
	var out []*types.DimChannel
	if err := q.Order("channel_id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *dimRepo) GetCombo(ctx context.Context, tx *gorm.DB, comboID int64) (*types.DimCombo, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if comboID == 0 {
		return nil, nil
	}
	var combo types.DimCombo
	err := transaction.WithContext(ctx).
		Where("combo_id = ?", comboID).
		Limit(1).
		Find(&combo).Error
	if err != nil {
		return nil, err
	}
	if combo.ComboID == 0 {
		return nil, nil
	}
	return &combo, nil
}

// EnsureCombo is a read-through lookup: an existing tuple is returned,
// otherwise a new combo row is inserted. Combos are immutable once
// created so the lookup never needs to update.
func (r *dimRepo) EnsureCombo(ctx context.Context, tx *gorm.DB, companyID, coreCompanyID, productID, channelID *int64) (*types.DimCombo, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var combo types.DimCombo
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		q := txx.Model(&types.DimCombo{})
		q = whereNullable(q, "company_id", companyID)
		q = whereNullable(q, "core_company_id", coreCompanyID)
		q = whereNullable(q, "product_id", productID)
		q = whereNullable(q, "channel_id", channelID)
		if err := q.Limit(1).Find(&combo).Error; err != nil {
			return err
		}
		if combo.ComboID != 0 {
			return nil
		}
		combo = types.DimCombo{
			CompanyID:     companyID,
			CoreCompanyID: coreCompanyID,
			ProductID:     productID,
			ChannelID:     channelID,
		}
		return txx.Create(&combo).Error
	})
	if err != nil {
		return nil, err
	}
	return &combo, nil
}

func whereNullable(q *gorm.DB, column string, v *int64) *gorm.DB {
	if v == nil {
		return q.Where(column + " IS NULL")
	}
	return q.Where(column+" = ?", *v)
}
