package obsanalytics

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// AnalyticsService computes grouped observation counts enriched with
// measurement definitions.
type AnalyticsService struct {
	repository ReadRepository
	enricher   *Enricher

	logger  *zap.Logger
	metrics *Metrics
}

type ServiceOption func(*AnalyticsService)

func LoggerServiceOption(logger *zap.Logger) ServiceOption {
	return func(s *AnalyticsService) {
		s.logger = logger
	}
}

func MetricsServiceOption(metrics *Metrics) ServiceOption {
	return func(s *AnalyticsService) {
		s.metrics = metrics
	}
}

func NewAnalyticsService(
	repository ReadRepository, client MeasurementDefinitionClient, opts ...ServiceOption,
) *AnalyticsService {
	s := &AnalyticsService{
		repository: repository,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.enricher = NewEnricher(client, s.logger, s.metrics)

	return s
}

// GetObservationCountByGroup counts the observations of the given surveys
// grouped by columns and measurement values, and names the measurements of
// every group.
func (s *AnalyticsService) GetObservationCountByGroup(
	ctx context.Context, req *ObservationCountRequest,
) ([]*ObservationAnalytics, error) {
	normalized, err := s.normalize(req)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("observation count by group",
		zap.Int64s("survey_ids", normalized.SurveyIDs),
		zap.Strings("group_by_columns", normalized.GroupByColumns),
		zap.Strings("quantitative_measurement_ids", normalized.GroupByQuantitativeMeasurementIDs),
		zap.Strings("qualitative_measurement_ids", normalized.GroupByQualitativeMeasurementIDs),
	)

	rows, err := s.repository.Aggregate(ctx, normalized)
	if err != nil {
		s.logger.Error("failed to aggregate observations", zap.Error(err))
		return nil, err
	}

	result, err := s.enricher.Enrich(ctx, Reshape(rows))
	if err != nil {
		return nil, err
	}

	s.metrics.observeResultRows(len(result))
	s.logger.Debug("observation count by group done", zap.Int("groups", len(result)))

	return result, nil
}

// normalize validates req and returns a copy with blank and repeated values
// removed. Nothing is sent to the data store when it fails.
func (s *AnalyticsService) normalize(req *ObservationCountRequest) (*ObservationCountRequest, error) {
	if req == nil || len(req.SurveyIDs) == 0 {
		return nil, invalidInput("surveyIds", "at least one survey id is required")
	}

	surveyIDs := make([]int64, 0, len(req.SurveyIDs))
	seen := make(map[int64]struct{}, len(req.SurveyIDs))
	for _, id := range req.SurveyIDs {
		if id <= 0 {
			return nil, invalidInput("surveyIds", "survey id %d is not positive", id)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		surveyIDs = append(surveyIDs, id)
	}

	allowed := make(map[string]struct{})
	for _, column := range s.repository.Columns() {
		allowed[column.Name] = struct{}{}
	}

	columns := cleanStrings(req.GroupByColumns)
	for _, name := range columns {
		if _, ok := allowed[name]; !ok {
			return nil, invalidInput("groupByColumns", "unknown column %q", name)
		}
	}

	return &ObservationCountRequest{
		SurveyIDs:                         surveyIDs,
		GroupByColumns:                    columns,
		GroupByQuantitativeMeasurementIDs: cleanStrings(req.GroupByQuantitativeMeasurementIDs),
		GroupByQualitativeMeasurementIDs:  cleanStrings(req.GroupByQualitativeMeasurementIDs),
	}, nil
}

// cleanStrings trims values and drops blanks and repeats, keeping first-seen order.
func cleanStrings(values []string) []string {
	result := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
