package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/corefin/metrichub/internal/logger"
	errs "github.com/corefin/metrichub/internal/pkg/errors"
	"github.com/corefin/metrichub/internal/repos"
	"github.com/corefin/metrichub/internal/types"
)

// ResolvedCombo is a combo with each referenced dimension row fetched
// explicitly. Missing rows stay nil rather than failing the lookup.
type ResolvedCombo struct {
	Combo       *types.DimCombo   `json:"combo"`
	Company     *types.DimCompany `json:"company,omitempty"`
	CoreCompany *types.DimCompany `json:"core_company,omitempty"`
	Product     *types.DimProduct `json:"product,omitempty"`
	Channel     *types.DimChannel `json:"channel,omitempty"`
}

type DimensionService interface {
	ListCompanies(ctx context.Context, keyword string) ([]*types.DimCompany, error)
	ListProducts(ctx context.Context, keyword string) ([]*types.DimProduct, error)
	ListChannels(ctx context.Context, keyword string) ([]*types.DimChannel, error)
	ResolveCombo(ctx context.Context, comboID int64) (*ResolvedCombo, error)
	EnsureCombo(ctx context.Context, companyID, coreCompanyID, productID, channelID *int64) (*types.DimCombo, error)
}

type dimensionService struct {
	db   *gorm.DB
	log  *logger.Logger
	dims repos.DimRepo
}

func NewDimensionService(db *gorm.DB, baseLog *logger.Logger, dims repos.DimRepo) DimensionService {
	return &dimensionService{
		db:   db,
		log:  baseLog.With("service", "DimensionService"),
		dims: dims,
	}
}

func (s *dimensionService) ListCompanies(ctx context.Context, keyword string) ([]*types.DimCompany, error) {
	return s.dims.ListCompanies(ctx, nil, keyword)
}

func (s *dimensionService) ListProducts(ctx context.Context, keyword string) ([]*types.DimProduct, error) {
	return s.dims.ListProducts(ctx, nil, keyword)
}

func (s *dimensionService) ListChannels(ctx context.Context, keyword string) ([]*types.DimChannel, error) {
	return s.dims.ListChannels(ctx, nil, keyword)
}

// ResolveCombo does one read per referenced dimension instead of a join;
// combos are tiny and the reads hit primary keys.
func (s *dimensionService) ResolveCombo(ctx context.Context, comboID int64) (*ResolvedCombo, error) {
	combo, err := s.dims.GetCombo(ctx, nil, comboID)
	if err != nil {
		return nil, err
	}
	if combo == nil {
		return nil, fmt.Errorf("combo %d: %w", comboID, errs.ErrNotFound)
	}
	out := &ResolvedCombo{Combo: combo}
	if combo.CompanyID != nil {
		out.Company, err = s.getCompany(ctx, *combo.CompanyID)
		if err != nil {
			return nil, err
		}
	}
	if combo.CoreCompanyID != nil {
		out.CoreCompany, err = s.getCompany(ctx, *combo.CoreCompanyID)
		if err != nil {
			return nil, err
		}
	}
	if combo.ProductID != nil {
		var product types.DimProduct
		err := s.db.WithContext(ctx).
			Where("product_id = ?", *combo.ProductID).
			Limit(1).
			Find(&product).Error
		if err != nil {
			return nil, err
		}
		if product.ProductID != 0 {
			out.Product = &product
		}
	}
	if combo.ChannelID != nil {
		var channel types.DimChannel
		err := s.db.WithContext(ctx).
			Where("channel_id = ?", *combo.ChannelID).
			Limit(1).
			Find(&channel).Error
		if err != nil {
			return nil, err
		}
		if channel.ChannelID != 0 {
			out.Channel = &channel
		}
	}
	return out, nil
}

func (s *dimensionService) getCompany(ctx context.Context, companyID int64) (*types.DimCompany, error) {
	var company types.DimCompany
	err := s.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Limit(1).
		Find(&company).Error
	if err != nil {
		return nil, err
	}
	if company.CompanyID == 0 {
		return nil, nil
	}
	return &company, nil
}

func (s *dimensionService) EnsureCombo(ctx context.Context, companyID, coreCompanyID, productID, channelID *int64) (*types.DimCombo, error) {
	return s.dims.EnsureCombo(ctx, nil, companyID, coreCompanyID, productID, channelID)
}
