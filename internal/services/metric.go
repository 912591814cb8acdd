package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/corefin/metrichub/internal/logger"
	errs "github.com/corefin/metrichub/internal/pkg/errors"
	"github.com/corefin/metrichub/internal/repos"
	"github.com/corefin/metrichub/internal/types"
)

var versionLabelRe = regexp.MustCompile(`^v(\d+)$`)

type MetricCreateInput struct {
	Code          string     `json:"code"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Type          string     `json:"type"`
	Unit          string     `json:"unit"`
	SubjectArea   string     `json:"subject_area"`
	Owner         string     `json:"owner"`
	Sensitivity   string     `json:"sensitivity"`
	CreatedBy     string     `json:"created_by"`
	EffectiveFrom *time.Time `json:"effective_from,omitempty"`
	Grain         []string   `json:"grain,omitempty"`
	FormulaSQL    string     `json:"formula_sql,omitempty"`
	FormulaDSL    string     `json:"formula_dsl,omitempty"`
	Notes         string     `json:"notes,omitempty"`
}

type MetricUpdateInput struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Unit        *string `json:"unit,omitempty"`
	SubjectArea *string `json:"subject_area,omitempty"`
	Owner       *string `json:"owner,omitempty"`
	Sensitivity *string `json:"sensitivity,omitempty"`
	UpdatedBy   string  `json:"updated_by,omitempty"`
}

type VersionCreateInput struct {
	Version       string     `json:"version,omitempty"`
	EffectiveFrom *time.Time `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
	Grain         []string   `json:"grain,omitempty"`
	FormulaSQL    string     `json:"formula_sql,omitempty"`
	FormulaDSL    string     `json:"formula_dsl,omitempty"`
	Notes         string     `json:"notes,omitempty"`
}

type VersionUpdateInput struct {
	Status        *string    `json:"status,omitempty"`
	EffectiveFrom *time.Time `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
	FormulaSQL    *string    `json:"formula_sql,omitempty"`
	FormulaDSL    *string    `json:"formula_dsl,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
}

type MetricService interface {
	List(ctx context.Context, filter repos.MetricFilter) ([]*types.Metric, error)
	Create(ctx context.Context, input MetricCreateInput) (*types.Metric, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Metric, error)
	Update(ctx context.Context, id uuid.UUID, input MetricUpdateInput) (*types.Metric, error)
	Delete(ctx context.Context, id uuid.UUID) error
	RequestPublish(ctx context.Context, id uuid.UUID) (int64, error)
	ListVersions(ctx context.Context, metricID uuid.UUID) ([]*types.MetricVersion, error)
	CreateVersion(ctx context.Context, metricID uuid.UUID, input VersionCreateInput) (*types.MetricVersion, error)
	UpdateVersion(ctx context.Context, versionID uuid.UUID, input VersionUpdateInput) (*types.MetricVersion, error)
	Summary(ctx context.Context) (*repos.MetricSummary, error)
}

type metricService struct {
	db       *gorm.DB
	log      *logger.Logger
	metrics  repos.MetricRepo
	versions repos.MetricVersionRepo
}

func NewMetricService(db *gorm.DB, baseLog *logger.Logger, metrics repos.MetricRepo, versions repos.MetricVersionRepo) MetricService {
	return &metricService{
		db:       db,
		log:      baseLog.With("service", "MetricService"),
		metrics:  metrics,
		versions: versions,
	}
}

func (s *metricService) List(ctx context.Context, filter repos.MetricFilter) ([]*types.Metric, error) {
	return s.metrics.List(ctx, nil, filter)
}

// Create inserts the metric together with its initial draft version in
// one transaction.
func (s *metricService) Create(ctx context.Context, input MetricCreateInput) (*types.Metric, error) {
	code := strings.TrimSpace(input.Code)
	name := strings.TrimSpace(input.Name)
	if code == "" || name == "" {
		return nil, fmt.Errorf("code and name required: %w", errs.ErrInvalidArgument)
	}
	existing, err := s.metrics.GetByCode(ctx, nil, code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("metric code %q already exists: %w", code, errs.ErrConflict)
	}

	sensitivity := input.Sensitivity
	if sensitivity == "" {
		sensitivity = types.SensitivityNormal
	}
	effectiveFrom := time.Now().UTC()
	if input.EffectiveFrom != nil {
		effectiveFrom = *input.EffectiveFrom
	}

	metric := &types.Metric{
		ID:          uuid.New(),
		Code:        code,
		Name:        name,
		Description: input.Description,
		Type:        input.Type,
		Unit:        input.Unit,
		SubjectArea: input.SubjectArea,
		Owner:       input.Owner,
		Sensitivity: sensitivity,
		CreatedBy:   input.CreatedBy,
		UpdatedBy:   input.CreatedBy,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.metrics.Create(ctx, tx, metric); err != nil {
			return err
		}
		version := &types.MetricVersion{
			ID:            uuid.New(),
			MetricID:      metric.ID,
			Version:       "v1",
			Status:        types.VersionStatusDraft,
			EffectiveFrom: effectiveFrom,
			FormulaSQL:    input.FormulaSQL,
			Notes:         input.Notes,
		}
		if len(input.Grain) > 0 {
			raw, err := encodeJSON(input.Grain)
			if err != nil {
				return err
			}
			version.Grain = raw
		}
		if input.FormulaDSL != "" {
			raw, err := encodeJSON(input.FormulaDSL)
			if err != nil {
				return err
			}
			version.FormulaDSL = raw
		}
		_, err := s.versions.Create(ctx, tx, version)
		return err
	})
	if err != nil {
		return nil, err
	}
	return metric, nil
}

func (s *metricService) Get(ctx context.Context, id uuid.UUID) (*types.Metric, error) {
	metric, err := s.metrics.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if metric == nil {
		return nil, fmt.Errorf("metric %s: %w", id, errs.ErrNotFound)
	}
	return metric, nil
}

func (s *metricService) Update(ctx context.Context, id uuid.UUID, input MetricUpdateInput) (*types.Metric, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.Unit != nil {
		updates["unit"] = *input.Unit
	}
	if input.SubjectArea != nil {
		updates["subject_area"] = *input.SubjectArea
	}
	if input.Owner != nil {
		updates["owner"] = *input.Owner
	}
	if input.Sensitivity != nil {
		updates["sensitivity"] = *input.Sensitivity
	}
	if input.UpdatedBy != "" {
		updates["updated_by"] = input.UpdatedBy
	}
	if len(updates) > 0 {
		if err := s.metrics.UpdateFields(ctx, nil, id, updates); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, id)
}

func (s *metricService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.metrics.Delete(ctx, nil, id)
}

// RequestPublish moves every draft version of the metric to
// pending_review and returns how many moved.
func (s *metricService) RequestPublish(ctx context.Context, id uuid.UUID) (int64, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return 0, err
	}
	n, err := s.versions.UpdateStatusByMetric(ctx, nil, id, types.VersionStatusDraft, types.VersionStatusPendingReview)
	if err != nil {
		return 0, err
	}
	s.log.Info("publish requested", "metric_id", id, "versions_moved", n)
	return n, nil
}

func (s *metricService) ListVersions(ctx context.Context, metricID uuid.UUID) ([]*types.MetricVersion, error) {
	if _, err := s.Get(ctx, metricID); err != nil {
		return nil, err
	}
	return s.versions.ListByMetric(ctx, nil, metricID)
}

func (s *metricService) CreateVersion(ctx context.Context, metricID uuid.UUID, input VersionCreateInput) (*types.MetricVersion, error) {
	if _, err := s.Get(ctx, metricID); err != nil {
		return nil, err
	}
	label := strings.TrimSpace(input.Version)
	if label == "" {
		latest, err := s.versions.LatestByMetric(ctx, nil, metricID)
		if err != nil {
			return nil, err
		}
		if latest == nil {
			label = "v1"
		} else {
			label = NextVersionLabel(latest.Version)
		}
	}
	effectiveFrom := time.Now().UTC()
	if input.EffectiveFrom != nil {
		effectiveFrom = *input.EffectiveFrom
	}
	version := &types.MetricVersion{
		ID:            uuid.New(),
		MetricID:      metricID,
		Version:       label,
		Status:        types.VersionStatusDraft,
		EffectiveFrom: effectiveFrom,
		EffectiveTo:   input.EffectiveTo,
		FormulaSQL:    input.FormulaSQL,
		Notes:         input.Notes,
	}
	if len(input.Grain) > 0 {
		raw, err := encodeJSON(input.Grain)
		if err != nil {
			return nil, err
		}
		version.Grain = raw
	}
	if input.FormulaDSL != "" {
		raw, err := encodeJSON(input.FormulaDSL)
		if err != nil {
			return nil, err
		}
		version.FormulaDSL = raw
	}
	return s.versions.Create(ctx, nil, version)
}

func (s *metricService) UpdateVersion(ctx context.Context, versionID uuid.UUID, input VersionUpdateInput) (*types.MetricVersion, error) {
	version, err := s.versions.GetByID(ctx, nil, versionID)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, fmt.Errorf("metric version %s: %w", versionID, errs.ErrNotFound)
	}
	updates := map[string]interface{}{}
	if input.Status != nil {
		switch *input.Status {
		case types.VersionStatusDraft, types.VersionStatusPendingReview,
			types.VersionStatusActive, types.VersionStatusRetired:
		default:
			return nil, fmt.Errorf("invalid version status %q: %w", *input.Status, errs.ErrInvalidArgument)
		}
		updates["status"] = *input.Status
	}
	if input.EffectiveFrom != nil {
		updates["effective_from"] = *input.EffectiveFrom
	}
	if input.EffectiveTo != nil {
		updates["effective_to"] = *input.EffectiveTo
	}
	if input.FormulaSQL != nil {
		updates["formula_sql"] = *input.FormulaSQL
	}
	if input.FormulaDSL != nil {
		raw, err := encodeJSON(*input.FormulaDSL)
		if err != nil {
			return nil, err
		}
		updates["formula_dsl"] = raw
	}
	if input.Notes != nil {
		updates["notes"] = *input.Notes
	}
	if len(updates) > 0 {
		if err := s.versions.UpdateFields(ctx, nil, versionID, updates); err != nil {
			return nil, err
		}
	}
	return s.versions.GetByID(ctx, nil, versionID)
}

func (s *metricService) Summary(ctx context.Context) (*repos.MetricSummary, error) {
	return s.metrics.Summary(ctx, nil)
}

// NextVersionLabel increments "v<n>" labels; anything else gets a
// "_new" suffix so the label stays unique without guessing its scheme.
func NextVersionLabel(label string) string {
	m := versionLabelRe.FindStringSubmatch(strings.TrimSpace(label))
	if m == nil {
		return label + "_new"
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return label + "_new"
	}
	return "v" + strconv.Itoa(n+1)
}

func encodeJSON(v interface{}) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
