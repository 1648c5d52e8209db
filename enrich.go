package obsanalytics

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	definitionService = "critterbase"

	categoryQuantitative = "quantitative"
	categoryQualitative  = "qualitative"
)

// MeasurementDefinitionClient fetches measurement type definitions by id.
// Both calls are idempotent reads.
type MeasurementDefinitionClient interface {
	GetQualitativeMeasurementTypeDefinition(
		ctx context.Context, ids []string,
	) ([]*QualitativeMeasurementDefinition, error)
	GetQuantitativeMeasurementTypeDefinition(
		ctx context.Context, ids []string,
	) ([]*QuantitativeMeasurementDefinition, error)
}

// Enricher resolves measurement ids on reshaped rows into named measurements.
type Enricher struct {
	client  MeasurementDefinitionClient
	logger  *zap.Logger
	metrics *Metrics
}

func NewEnricher(client MeasurementDefinitionClient, logger *zap.Logger, metrics *Metrics) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		client:  client,
		logger:  logger,
		metrics: metrics,
	}
}

// Enrich fetches the definitions of every measurement present in rows, one
// batched call per category, and joins them onto the rows. A category with
// no ids is never requested. Any fetch failure fails the whole call.
func (e *Enricher) Enrich(ctx context.Context, rows []*ReshapedRow) ([]*ObservationAnalytics, error) {
	quantIDs := ExtractQuantitativeMeasurementIDs(rows)
	qualIDs := ExtractQualitativeMeasurementIDs(rows)

	var (
		quantDefinitions []*QuantitativeMeasurementDefinition
		qualDefinitions  []*QualitativeMeasurementDefinition
	)

	g, gctx := errgroup.WithContext(ctx)

	if len(quantIDs) > 0 {
		g.Go(func() error {
			definitions, err := e.client.GetQuantitativeMeasurementTypeDefinition(gctx, quantIDs)
			e.metrics.observeDefinitionRequest(categoryQuantitative, err)
			if err != nil {
				return upstreamError("get quantitative measurement definitions", err)
			}
			quantDefinitions = definitions
			return nil
		})
	}

	if len(qualIDs) > 0 {
		g.Go(func() error {
			definitions, err := e.client.GetQualitativeMeasurementTypeDefinition(gctx, qualIDs)
			e.metrics.observeDefinitionRequest(categoryQualitative, err)
			if err != nil {
				return upstreamError("get qualitative measurement definitions", err)
			}
			qualDefinitions = definitions
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		e.logger.Error("failed to fetch measurement definitions",
			zap.Strings("quantitative_ids", quantIDs),
			zap.Strings("qualitative_ids", qualIDs),
			zap.Error(err),
		)
		return nil, err
	}

	return JoinMeasurementDefinitions(rows, quantDefinitions, qualDefinitions), nil
}

// JoinMeasurementDefinitions names the measurements of each row. Quantitative
// entries without a definition or a value and qualitative entries whose
// definition or option cannot be found are dropped; survivors keep their order.
func JoinMeasurementDefinitions(
	rows []*ReshapedRow,
	quantDefinitions []*QuantitativeMeasurementDefinition,
	qualDefinitions []*QualitativeMeasurementDefinition,
) []*ObservationAnalytics {
	quantIndex := make(map[string]*QuantitativeMeasurementDefinition, len(quantDefinitions))
	for _, d := range quantDefinitions {
		if d != nil {
			quantIndex[d.TaxonMeasurementID] = d
		}
	}

	qualIndex := make(map[string]*QualitativeMeasurementDefinition, len(qualDefinitions))
	for _, d := range qualDefinitions {
		if d != nil {
			qualIndex[d.TaxonMeasurementID] = d
		}
	}

	result := make([]*ObservationAnalytics, 0, len(rows))
	for i := range rows {
		row := rows[i]
		if row == nil {
			continue
		}

		item := &ObservationAnalytics{
			RowCount:                 row.RowCount,
			IndividualCount:          row.IndividualCount,
			IndividualPercentage:     row.IndividualPercentage,
			Group:                    row.Group,
			QuantitativeMeasurements: make([]*QuantitativeMeasurementAnalytics, 0, len(row.QuantMeasurements)),
			QualitativeMeasurements:  make([]*QualitativeMeasurementAnalytics, 0, len(row.QualMeasurements)),
		}

		for _, m := range row.QuantMeasurements {
			definition, ok := quantIndex[m.TaxonMeasurementID]
			if !ok || m.Value == nil {
				continue
			}
			item.QuantitativeMeasurements = append(item.QuantitativeMeasurements, &QuantitativeMeasurementAnalytics{
				TaxonMeasurementID: m.TaxonMeasurementID,
				MeasurementName:    definition.MeasurementName,
				Value:              *m.Value,
			})
		}

		for _, m := range row.QualMeasurements {
			definition, ok := qualIndex[m.TaxonMeasurementID]
			if !ok || m.OptionID == nil {
				continue
			}
			option := findOption(definition, *m.OptionID)
			if option == nil {
				continue
			}
			item.QualitativeMeasurements = append(item.QualitativeMeasurements, &QualitativeMeasurementAnalytics{
				TaxonMeasurementID: m.TaxonMeasurementID,
				MeasurementName:    definition.MeasurementName,
				Option: QualitativeMeasurementOption{
					OptionID:    option.QualitativeOptionID,
					OptionLabel: option.OptionLabel,
				},
			})
		}

		result = append(result, item)
	}

	return result
}

func findOption(definition *QualitativeMeasurementDefinition, optionID string) *QualitativeOption {
	for _, option := range definition.Options {
		if option != nil && option.QualitativeOptionID == optionID {
			return option
		}
	}
	return nil
}

func upstreamError(operation string, err error) error {
	var upstream *UpstreamServiceError
	if errors.As(err, &upstream) {
		return err
	}
	return &UpstreamServiceError{Service: definitionService, Operation: operation, Err: err}
}
