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

type BindingCreateInput struct {
	CaliberID           uuid.UUID  `json:"caliber_id"`
	Status              string     `json:"status,omitempty"`
	EffectiveFrom       *time.Time `json:"effective_from,omitempty"`
	EffectiveTo         *time.Time `json:"effective_to,omitempty"`
	OrderIndex          int        `json:"order_index"`
	OverrideExprDSL     string     `json:"override_expr_dsl,omitempty"`
	OverrideExprSQL     string     `json:"override_expr_sql,omitempty"`
	OverrideDataSources []string   `json:"override_data_sources,omitempty"`
	Notes               string     `json:"notes,omitempty"`
}

type BindingUpdateInput struct {
	Status              *string    `json:"status,omitempty"`
	EffectiveFrom       *time.Time `json:"effective_from,omitempty"`
	EffectiveTo         *time.Time `json:"effective_to,omitempty"`
	OrderIndex          *int       `json:"order_index,omitempty"`
	OverrideExprDSL     *string    `json:"override_expr_dsl,omitempty"`
	OverrideExprSQL     *string    `json:"override_expr_sql,omitempty"`
	OverrideDataSources []string   `json:"override_data_sources,omitempty"`
	Notes               *string    `json:"notes,omitempty"`
}

type BindingService interface {
	ListByVersion(ctx context.Context, versionID uuid.UUID) ([]*types.MetricVersionCaliber, error)
	Create(ctx context.Context, versionID uuid.UUID, input BindingCreateInput) (*types.MetricVersionCaliber, error)
	Update(ctx context.Context, bindingID uuid.UUID, input BindingUpdateInput) (*types.MetricVersionCaliber, error)
	Delete(ctx context.Context, bindingID uuid.UUID) error
}

type bindingService struct {
	db       *gorm.DB
	log      *logger.Logger
	versions repos.MetricVersionRepo
	calibers repos.CaliberRepo
	bindings repos.BindingRepo
}

func NewBindingService(db *gorm.DB, baseLog *logger.Logger, versions repos.MetricVersionRepo, calibers repos.CaliberRepo, bindings repos.BindingRepo) BindingService {
	return &bindingService{
		db:       db,
		log:      baseLog.With("service", "BindingService"),
		versions: versions,
		calibers: calibers,
		bindings: bindings,
	}
}

func (s *bindingService) ListByVersion(ctx context.Context, versionID uuid.UUID) ([]*types.MetricVersionCaliber, error) {
	version, err := s.versions.GetByID(ctx, nil, versionID)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, fmt.Errorf("metric version %s: %w", versionID, errs.ErrNotFound)
	}
	return s.bindings.ListByVersion(ctx, nil, versionID)
}

func (s *bindingService) Create(ctx context.Context, versionID uuid.UUID, input BindingCreateInput) (*types.MetricVersionCaliber, error) {
	version, err := s.versions.GetByID(ctx, nil, versionID)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, fmt.Errorf("metric version %s: %w", versionID, errs.ErrNotFound)
	}
	caliber, err := s.calibers.GetByID(ctx, nil, input.CaliberID)
	if err != nil {
		return nil, err
	}
	if caliber == nil {
		return nil, fmt.Errorf("caliber %s: %w", input.CaliberID, errs.ErrNotFound)
	}

	status := input.Status
	if status == "" {
		status = types.BindingStatusActive
	}
	if status != types.BindingStatusActive && status != types.BindingStatusInactive {
		return nil, fmt.Errorf("invalid binding status %q: %w", status, errs.ErrInvalidArgument)
	}

	caliberID := caliber.ID
	binding := &types.MetricVersionCaliber{
		ID:              uuid.New(),
		MetricVersionID: versionID,
		CaliberID:       &caliberID,
		Status:          status,
		EffectiveFrom:   input.EffectiveFrom,
		EffectiveTo:     input.EffectiveTo,
		OrderIndex:      input.OrderIndex,
		OverrideExprSQL: input.OverrideExprSQL,
		Notes:           input.Notes,
	}
	if input.OverrideExprDSL != "" {
		if err := validateExprDSL(input.OverrideExprDSL); err != nil {
			return nil, err
		}
		raw, err := encodeJSON(input.OverrideExprDSL)
		if err != nil {
			return nil, err
		}
		binding.OverrideExprDSL = raw
	}
	if len(input.OverrideDataSources) > 0 {
		raw, err := encodeJSON(input.OverrideDataSources)
		if err != nil {
			return nil, err
		}
		binding.OverrideDataSources = raw
	}
	return s.bindings.Create(ctx, nil, binding)
}

func (s *bindingService) Update(ctx context.Context, bindingID uuid.UUID, input BindingUpdateInput) (*types.MetricVersionCaliber, error) {
	binding, err := s.bindings.GetByID(ctx, nil, bindingID)
	if err != nil {
		return nil, err
	}
	if binding == nil {
		return nil, fmt.Errorf("binding %s: %w", bindingID, errs.ErrNotFound)
	}
	updates := map[string]interface{}{}
	if input.Status != nil {
		if *input.Status != types.BindingStatusActive && *input.Status != types.BindingStatusInactive {
			return nil, fmt.Errorf("invalid binding status %q: %w", *input.Status, errs.ErrInvalidArgument)
		}
		updates["status"] = *input.Status
	}
	if input.EffectiveFrom != nil {
		updates["effective_from"] = *input.EffectiveFrom
	}
	if input.EffectiveTo != nil {
		updates["effective_to"] = *input.EffectiveTo
	}
	if input.OrderIndex != nil {
		updates["order_index"] = *input.OrderIndex
	}
	if input.OverrideExprDSL != nil {
		if *input.OverrideExprDSL != "" {
			if err := validateExprDSL(*input.OverrideExprDSL); err != nil {
				return nil, err
			}
		}
		raw, err := encodeJSON(*input.OverrideExprDSL)
		if err != nil {
			return nil, err
		}
		updates["override_expr_dsl"] = raw
	}
	if input.OverrideExprSQL != nil {
		updates["override_expr_sql"] = *input.OverrideExprSQL
	}
	if len(input.OverrideDataSources) > 0 {
		raw, err := encodeJSON(input.OverrideDataSources)
		if err != nil {
			return nil, err
		}
		updates["override_data_sources"] = raw
	}
	if input.Notes != nil {
		updates["notes"] = *input.Notes
	}
	if len(updates) > 0 {
		if err := s.bindings.UpdateFields(ctx, nil, bindingID, updates); err != nil {
			return nil, err
		}
	}
	return s.bindings.GetByID(ctx, nil, bindingID)
}

func (s *bindingService) Delete(ctx context.Context, bindingID uuid.UUID) error {
	binding, err := s.bindings.GetByID(ctx, nil, bindingID)
	if err != nil {
		return err
	}
	if binding == nil {
		return fmt.Errorf("binding %s: %w", bindingID, errs.ErrNotFound)
	}
	return s.bindings.Delete(ctx, nil, bindingID)
}
