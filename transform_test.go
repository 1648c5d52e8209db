package obsanalytics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Reshape(t *testing.T) {
	t.Parallel()

	tt := []struct {
		name     string
		input    []*ObservationCountRow
		expected []*ReshapedRow
	}{
		{
			name:     "empty",
			expected: []*ReshapedRow{},
		},
		{
			name: "missing mappings",
			input: []*ObservationCountRow{
				{RowCount: 1, IndividualCount: 2, IndividualPercentage: 100},
			},
			expected: []*ReshapedRow{
				{
					RowCount:             1,
					IndividualCount:      2,
					IndividualPercentage: 100,
					QuantMeasurements:    []*QuantitativeMeasurementValue{},
					QualMeasurements:     []*QualitativeMeasurementValue{},
				},
			},
		},
		{
			name: "keys in stable order",
			input: []*ObservationCountRow{
				{
					RowCount:        3,
					IndividualCount: 7,
					Group:           map[string]interface{}{"itis_tsn": int64(180703)},
					QuantMeasurements: map[string]*float64{
						"m-weight": ptrFloat(350),
						"m-length": nil,
					},
					QualMeasurements: map[string]*string{
						"m-sex": ptrString("opt-male"),
						"m-age": nil,
					},
				},
			},
			expected: []*ReshapedRow{
				{
					RowCount:        3,
					IndividualCount: 7,
					Group:           map[string]interface{}{"itis_tsn": int64(180703)},
					QuantMeasurements: []*QuantitativeMeasurementValue{
						{TaxonMeasurementID: "m-length"},
						{TaxonMeasurementID: "m-weight", Value: ptrFloat(350)},
					},
					QualMeasurements: []*QualitativeMeasurementValue{
						{TaxonMeasurementID: "m-age"},
						{TaxonMeasurementID: "m-sex", OptionID: ptrString("opt-male")},
					},
				},
			},
		},
		{
			name: "request order kept",
			input: []*ObservationCountRow{
				{
					QuantMeasurements:   map[string]*float64{"m-weight": ptrFloat(350), "m-length": nil, "m-extra": nil},
					QualMeasurements:    map[string]*string{"m-sex": ptrString("opt-male"), "m-age": nil},
					QuantMeasurementIDs: []string{"m-weight", "m-missing", "m-length"},
					QualMeasurementIDs:  []string{"m-sex", "m-age"},
				},
			},
			expected: []*ReshapedRow{
				{
					QuantMeasurements: []*QuantitativeMeasurementValue{
						{TaxonMeasurementID: "m-weight", Value: ptrFloat(350)},
						{TaxonMeasurementID: "m-length"},
						{TaxonMeasurementID: "m-extra"},
					},
					QualMeasurements: []*QualitativeMeasurementValue{
						{TaxonMeasurementID: "m-sex", OptionID: ptrString("opt-male")},
						{TaxonMeasurementID: "m-age"},
					},
				},
			},
		},
	}

	for i := range tt {
		tc := tt[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.expected, Reshape(tc.input))
		})
	}
}

func Test_ReshapeIsRepeatable(t *testing.T) {
	t.Parallel()

	rows := []*ObservationCountRow{
		{
			QuantMeasurements: map[string]*float64{"c": nil, "a": nil, "b": ptrFloat(1), "d": nil},
		},
	}

	first := Reshape(rows)
	for i := 0; i < 20; i++ {
		require.Equal(t, first, Reshape(rows))
	}
}

func Test_ExtractMeasurementIDs(t *testing.T) {
	t.Parallel()

	rows := []*ReshapedRow{
		{
			QuantMeasurements: []*QuantitativeMeasurementValue{
				{TaxonMeasurementID: "q2"}, {TaxonMeasurementID: "q1"},
			},
			QualMeasurements: []*QualitativeMeasurementValue{
				{TaxonMeasurementID: "a"}, {TaxonMeasurementID: "b"},
			},
		},
		nil,
		{
			QuantMeasurements: []*QuantitativeMeasurementValue{
				{TaxonMeasurementID: "q1"}, {TaxonMeasurementID: "q3"},
			},
			QualMeasurements: []*QualitativeMeasurementValue{
				{TaxonMeasurementID: "a"},
			},
		},
	}

	require.Equal(t, []string{"q2", "q1", "q3"}, ExtractQuantitativeMeasurementIDs(rows))
	require.Equal(t, []string{"a", "b"}, ExtractQualitativeMeasurementIDs(rows))

	require.Equal(t, []string{}, ExtractQuantitativeMeasurementIDs(nil))
	require.Equal(t, []string{}, ExtractQualitativeMeasurementIDs([]*ReshapedRow{{}}))
}
