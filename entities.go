package obsanalytics

import "github.com/goccy/go-json"

// ObservationCountRequest describes one grouped observation count.
type ObservationCountRequest struct {
	SurveyIDs                         []int64
	GroupByColumns                    []string
	GroupByQuantitativeMeasurementIDs []string
	GroupByQualitativeMeasurementIDs  []string
}

// ObservationCountRow is one row of the aggregation query, one per distinct
// combination of grouping values.
type ObservationCountRow struct {
	RowCount             int64
	IndividualCount      int64
	IndividualPercentage float64
	Group                map[string]interface{}

	// measurement id -> value, nil when the group has no value for it.
	QuantMeasurements map[string]*float64
	// measurement id -> selected option id, nil when the group has no option for it.
	QualMeasurements map[string]*string

	// Requested measurement ids in request order. Reshape follows them and
	// falls back to sorted keys for ids they do not list.
	QuantMeasurementIDs []string
	QualMeasurementIDs  []string
}

type QuantitativeMeasurementValue struct {
	TaxonMeasurementID string   `json:"critterbase_taxon_measurement_id"`
	Value              *float64 `json:"value"`
}

type QualitativeMeasurementValue struct {
	TaxonMeasurementID string  `json:"critterbase_taxon_measurement_id"`
	OptionID           *string `json:"option_id"`
}

// ReshapedRow is an ObservationCountRow with its measurement mappings turned
// into ordered sequences.
type ReshapedRow struct {
	RowCount             int64                           `json:"row_count"`
	IndividualCount      int64                           `json:"individual_count"`
	IndividualPercentage float64                         `json:"individual_percentage"`
	Group                map[string]interface{}          `json:"-"`
	QuantMeasurements    []*QuantitativeMeasurementValue `json:"quant_measurements"`
	QualMeasurements     []*QualitativeMeasurementValue  `json:"qual_measurements"`
}

type QualitativeOption struct {
	QualitativeOptionID string  `json:"qualitative_option_id"`
	OptionLabel         string  `json:"option_label"`
	OptionValue         int     `json:"option_value"`
	OptionDesc          *string `json:"option_desc"`
}

// QualitativeMeasurementDefinition is owned by Critterbase.
type QualitativeMeasurementDefinition struct {
	TaxonMeasurementID string               `json:"taxon_measurement_id"`
	ItisTSN            *int64               `json:"itis_tsn"`
	MeasurementName    string               `json:"measurement_name"`
	MeasurementDesc    *string              `json:"measurement_desc"`
	Options            []*QualitativeOption `json:"options"`
}

// QuantitativeMeasurementDefinition is owned by Critterbase.
type QuantitativeMeasurementDefinition struct {
	TaxonMeasurementID string   `json:"taxon_measurement_id"`
	ItisTSN            *int64   `json:"itis_tsn"`
	MeasurementName    string   `json:"measurement_name"`
	MeasurementDesc    *string  `json:"measurement_desc"`
	MinValue           *float64 `json:"min_value"`
	MaxValue           *float64 `json:"max_value"`
	Unit               *string  `json:"unit"`
}

type QuantitativeMeasurementAnalytics struct {
	TaxonMeasurementID string  `json:"taxon_measurement_id"`
	MeasurementName    string  `json:"measurement_name"`
	Value              float64 `json:"value"`
}

type QualitativeMeasurementOption struct {
	OptionID    string `json:"option_id"`
	OptionLabel string `json:"option_label"`
}

type QualitativeMeasurementAnalytics struct {
	TaxonMeasurementID string                       `json:"taxon_measurement_id"`
	MeasurementName    string                       `json:"measurement_name"`
	Option             QualitativeMeasurementOption `json:"option"`
}

// ObservationAnalytics is a group count enriched with measurement names.
type ObservationAnalytics struct {
	RowCount                 int64
	IndividualCount          int64
	IndividualPercentage     float64
	Group                    map[string]interface{}
	QuantitativeMeasurements []*QuantitativeMeasurementAnalytics
	QualitativeMeasurements  []*QualitativeMeasurementAnalytics
}

// MarshalJSON flattens the grouping values next to the counts.
func (a *ObservationAnalytics) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(a.Group)+5)
	for k, v := range a.Group {
		out[k] = v
	}

	quantitative := a.QuantitativeMeasurements
	if quantitative == nil {
		quantitative = make([]*QuantitativeMeasurementAnalytics, 0)
	}
	qualitative := a.QualitativeMeasurements
	if qualitative == nil {
		qualitative = make([]*QualitativeMeasurementAnalytics, 0)
	}

	out["row_count"] = a.RowCount
	out["individual_count"] = a.IndividualCount
	out["individual_percentage"] = a.IndividualPercentage
	out["quantitative_measurements"] = quantitative
	out["qualitative_measurements"] = qualitative

	return json.Marshal(out)
}
