package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/corefin/metrichub/internal/logger"
	errs "github.com/corefin/metrichub/internal/pkg/errors"
	"github.com/corefin/metrichub/internal/repos"
	"github.com/corefin/metrichub/internal/types"
)

type SourceValueInput struct {
	SourceName    string  `json:"source_name"`
	PeriodDate    string  `json:"period_date"`
	CompanyCode   string  `json:"company_code,omitempty"`
	DimensionsKey string  `json:"dimensions_key,omitempty"`
	Value         float64 `json:"value"`
}

type ValueService interface {
	ListByBinding(ctx context.Context, bindingID uuid.UUID, filter repos.MetricValueFilter) ([]*types.MetricValue, error)
	IngestSources(ctx context.Context, inputs []SourceValueInput) (int, error)
}

type valueService struct {
	db       *gorm.DB
	log      *logger.Logger
	bindings repos.BindingRepo
	values   repos.MetricValueRepo
	sources  repos.SourceValueRepo
}

func NewValueService(db *gorm.DB, baseLog *logger.Logger, bindings repos.BindingRepo, values repos.MetricValueRepo, sources repos.SourceValueRepo) ValueService {
	return &valueService{
		db:       db,
		log:      baseLog.With("service", "ValueService"),
		bindings: bindings,
		values:   values,
		sources:  sources,
	}
}

func (s *valueService) ListByBinding(ctx context.Context, bindingID uuid.UUID, filter repos.MetricValueFilter) ([]*types.MetricValue, error) {
	binding, err := s.bindings.GetByID(ctx, nil, bindingID)
	if err != nil {
		return nil, err
	}
	if binding == nil {
		return nil, fmt.Errorf("binding %s: %w", bindingID, errs.ErrNotFound)
	}
	filter.BindingID = bindingID
	return s.values.List(ctx, nil, filter)
}

// IngestSources upserts raw source cells. Missing company or dimension
// fields get the "-" placeholder the evaluator expects.
func (s *valueService) IngestSources(ctx context.Context, inputs []SourceValueInput) (int, error) {
	if len(inputs) == 0 {
		return 0, fmt.Errorf("no rows: %w", errs.ErrInvalidArgument)
	}
	rows := make([]*types.SourceValue, 0, len(inputs))
	for i, in := range inputs {
		if in.SourceName == "" {
			return 0, fmt.Errorf("row %d missing source_name: %w", i, errs.ErrInvalidArgument)
		}
		period, err := time.ParseInLocation("2006-01-02", in.PeriodDate, time.UTC)
		if err != nil {
			return 0, fmt.Errorf("row %d period_date %q: %w", i, in.PeriodDate, errs.ErrInvalidArgument)
		}
		company := in.CompanyCode
		if company == "" {
			company = "-"
		}
		dims := in.DimensionsKey
		if dims == "" {
			dims = "-"
		}
		rows = append(rows, &types.SourceValue{
			SourceName:    in.SourceName,
			PeriodDate:    period,
			CompanyCode:   company,
			DimensionsKey: dims,
			Value:         in.Value,
		})
	}
	if err := s.sources.Upsert(ctx, nil, rows); err != nil {
		return 0, err
	}
	s.log.Info("source values ingested", "rows", len(rows))
	return len(rows), nil
}
