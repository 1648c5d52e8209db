package demostore

import (
	"context"

	"github.com/vench/obsanalytics"
)

// DefinitionClient answers measurement definition lookups from memory.
type DefinitionClient struct {
	quantitative []*obsanalytics.QuantitativeMeasurementDefinition
	qualitative  []*obsanalytics.QualitativeMeasurementDefinition
}

// NewDefinitionClient returns the definitions of the measurements in f.
func NewDefinitionClient(f *Fixture) *DefinitionClient {
	kg := "kilogram"
	maxWeight := 1000.0
	minWeight := 0.0

	return &DefinitionClient{
		quantitative: []*obsanalytics.QuantitativeMeasurementDefinition{
			{
				TaxonMeasurementID: f.WeightMeasurementID,
				MeasurementName:    "Weight",
				MinValue:           &minWeight,
				MaxValue:           &maxWeight,
				Unit:               &kg,
			},
		},
		qualitative: []*obsanalytics.QualitativeMeasurementDefinition{
			{
				TaxonMeasurementID: f.SexMeasurementID,
				MeasurementName:    "Sex",
				Options: []*obsanalytics.QualitativeOption{
					{QualitativeOptionID: f.MaleOptionID, OptionLabel: "Male", OptionValue: 0},
					{QualitativeOptionID: f.FemaleOptionID, OptionLabel: "Female", OptionValue: 1},
				},
			},
		},
	}
}

func (c *DefinitionClient) GetQualitativeMeasurementTypeDefinition(
	_ context.Context, ids []string,
) ([]*obsanalytics.QualitativeMeasurementDefinition, error) {
	wanted := toSet(ids)
	result := make([]*obsanalytics.QualitativeMeasurementDefinition, 0, len(ids))
	for _, d := range c.qualitative {
		if _, ok := wanted[d.TaxonMeasurementID]; ok {
			result = append(result, d)
		}
	}
	return result, nil
}

func (c *DefinitionClient) GetQuantitativeMeasurementTypeDefinition(
	_ context.Context, ids []string,
) ([]*obsanalytics.QuantitativeMeasurementDefinition, error) {
	wanted := toSet(ids)
	result := make([]*obsanalytics.QuantitativeMeasurementDefinition, 0, len(ids))
	for _, d := range c.quantitative {
		if _, ok := wanted[d.TaxonMeasurementID]; ok {
			result = append(result, d)
		}
	}
	return result, nil
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
