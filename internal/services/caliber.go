package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/corefin/metrichub/internal/dsl"
	"github.com/corefin/metrichub/internal/logger"
	errs "github.com/corefin/metrichub/internal/pkg/errors"
	"github.com/corefin/metrichub/internal/repos"
	"github.com/corefin/metrichub/internal/types"
)

type CaliberCreateInput struct {
	Code         string   `json:"code"`
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	ExprDSL      string   `json:"expr_dsl,omitempty"`
	ExprSQL      string   `json:"expr_sql,omitempty"`
	DataSources  []string `json:"data_sources,omitempty"`
	ValueFormat  string   `json:"value_format,omitempty"`
	UnitOverride string   `json:"unit_override,omitempty"`
	Notes        string   `json:"notes,omitempty"`
}

type CaliberUpdateInput struct {
	Name         *string  `json:"name,omitempty"`
	Category     *string  `json:"category,omitempty"`
	ExprDSL      *string  `json:"expr_dsl,omitempty"`
	ExprSQL      *string  `json:"expr_sql,omitempty"`
	DataSources  []string `json:"data_sources,omitempty"`
	ValueFormat  *string  `json:"value_format,omitempty"`
	UnitOverride *string  `json:"unit_override,omitempty"`
	Notes        *string  `json:"notes,omitempty"`
}

type CaliberService interface {
	List(ctx context.Context, filter repos.CaliberFilter) ([]*types.MetricCaliber, error)
	Create(ctx context.Context, input CaliberCreateInput) (*types.MetricCaliber, error)
	Get(ctx context.Context, id uuid.UUID) (*types.MetricCaliber, error)
	Update(ctx context.Context, id uuid.UUID, input CaliberUpdateInput) (*types.MetricCaliber, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type caliberService struct {
	db       *gorm.DB
	log      *logger.Logger
	calibers repos.CaliberRepo
}

func NewCaliberService(db *gorm.DB, baseLog *logger.Logger, calibers repos.CaliberRepo) CaliberService {
	return &caliberService{
		db:       db,
		log:      baseLog.With("service", "CaliberService"),
		calibers: calibers,
	}
}

func (s *caliberService) List(ctx context.Context, filter repos.CaliberFilter) ([]*types.MetricCaliber, error) {
	return s.calibers.List(ctx, nil, filter)
}

func (s *caliberService) Create(ctx context.Context, input CaliberCreateInput) (*types.MetricCaliber, error) {
	code := strings.TrimSpace(input.Code)
	name := strings.TrimSpace(input.Name)
	if code == "" || name == "" {
		return nil, fmt.Errorf("code and name required: %w", errs.ErrInvalidArgument)
	}
	existing, err := s.calibers.GetByCode(ctx, nil, code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("caliber code %q already exists: %w", code, errs.ErrConflict)
	}

	caliber := &types.MetricCaliber{
		ID:           uuid.New(),
		Code:         code,
		Name:         name,
		Category:     input.Category,
		ExprSQL:      input.ExprSQL,
		ValueFormat:  input.ValueFormat,
		UnitOverride: input.UnitOverride,
		Notes:        input.Notes,
	}
	if input.ExprDSL != "" {
		if err := validateExprDSL(input.ExprDSL); err != nil {
			return nil, err
		}
		raw, err := encodeJSON(input.ExprDSL)
		if err != nil {
			return nil, err
		}
		caliber.ExprDSL = raw
	}
	if len(input.DataSources) > 0 {
		raw, err := encodeJSON(input.DataSources)
		if err != nil {
			return nil, err
		}
		caliber.DataSources = raw
	}
	return s.calibers.Create(ctx, nil, caliber)
}

func (s *caliberService) Get(ctx context.Context, id uuid.UUID) (*types.MetricCaliber, error) {
	caliber, err := s.calibers.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if caliber == nil {
		return nil, fmt.Errorf("caliber %s: %w", id, errs.ErrNotFound)
	}
	return caliber, nil
}

func (s *caliberService) Update(ctx context.Context, id uuid.UUID, input CaliberUpdateInput) (*types.MetricCaliber, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Category != nil {
		updates["category"] = *input.Category
	}
	if input.ExprDSL != nil {
		if *input.ExprDSL != "" {
			if err := validateExprDSL(*input.ExprDSL); err != nil {
				return nil, err
			}
		}
		raw, err := encodeJSON(*input.ExprDSL)
		if err != nil {
			return nil, err
		}
		updates["expr_dsl"] = raw
	}
	if input.ExprSQL != nil {
		updates["expr_sql"] = *input.ExprSQL
	}
	if len(input.DataSources) > 0 {
		raw, err := encodeJSON(input.DataSources)
		if err != nil {
			return nil, err
		}
		updates["data_sources"] = raw
	}
	if input.ValueFormat != nil {
		updates["value_format"] = *input.ValueFormat
	}
	if input.UnitOverride != nil {
		updates["unit_override"] = *input.UnitOverride
	}
	if input.Notes != nil {
		updates["notes"] = *input.Notes
	}
	if len(updates) > 0 {
		if err := s.calibers.UpdateFields(ctx, nil, id, updates); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, id)
}

// Delete refuses while any version binding still references the caliber.
func (s *caliberService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	n, err := s.calibers.CountBindings(ctx, nil, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("caliber %s referenced by %d bindings: %w", id, n, errs.ErrConflict)
	}
	return s.calibers.Delete(ctx, nil, id)
}

// validateExprDSL rejects unparseable DSL at write time so compilation
// failures surface in the editor, not in a task run.
func validateExprDSL(text string) error {
	var err error
	if strings.Contains(text, ":") {
		_, err = dsl.ParseMetric(text)
	} else {
		_, err = dsl.Parse(text)
	}
	if err != nil {
		return fmt.Errorf("expr_dsl: %w", err)
	}
	return nil
}
