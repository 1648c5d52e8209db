package obsanalytics

import "sort"

// Reshape turns the keyed measurement mappings of each row into sequences in
// request order. Keys missing from the row's id lists follow, sorted.
func Reshape(rows []*ObservationCountRow) []*ReshapedRow {
	result := make([]*ReshapedRow, 0, len(rows))

	for i := range rows {
		row := rows[i]
		if row == nil {
			continue
		}

		reshaped := &ReshapedRow{
			RowCount:             row.RowCount,
			IndividualCount:      row.IndividualCount,
			IndividualPercentage: row.IndividualPercentage,
			Group:                row.Group,
			QuantMeasurements:    make([]*QuantitativeMeasurementValue, 0, len(row.QuantMeasurements)),
			QualMeasurements:     make([]*QualitativeMeasurementValue, 0, len(row.QualMeasurements)),
		}

		for _, id := range orderedKeys(row.QuantMeasurementIDs, row.QuantMeasurements) {
			reshaped.QuantMeasurements = append(reshaped.QuantMeasurements, &QuantitativeMeasurementValue{
				TaxonMeasurementID: id,
				Value:              row.QuantMeasurements[id],
			})
		}

		for _, id := range orderedKeys(row.QualMeasurementIDs, row.QualMeasurements) {
			reshaped.QualMeasurements = append(reshaped.QualMeasurements, &QualitativeMeasurementValue{
				TaxonMeasurementID: id,
				OptionID:           row.QualMeasurements[id],
			})
		}

		result = append(result, reshaped)
	}

	return result
}

// ExtractQuantitativeMeasurementIDs returns the distinct quantitative
// measurement ids across rows in first-seen order.
func ExtractQuantitativeMeasurementIDs(rows []*ReshapedRow) []string {
	ids := make([]string, 0)
	seen := make(map[string]struct{})

	for i := range rows {
		if rows[i] == nil {
			continue
		}
		for _, m := range rows[i].QuantMeasurements {
			if _, ok := seen[m.TaxonMeasurementID]; ok {
				continue
			}
			seen[m.TaxonMeasurementID] = struct{}{}
			ids = append(ids, m.TaxonMeasurementID)
		}
	}

	return ids
}

// ExtractQualitativeMeasurementIDs returns the distinct qualitative
// measurement ids across rows in first-seen order.
func ExtractQualitativeMeasurementIDs(rows []*ReshapedRow) []string {
	ids := make([]string, 0)
	seen := make(map[string]struct{})

	for i := range rows {
		if rows[i] == nil {
			continue
		}
		for _, m := range rows[i].QualMeasurements {
			if _, ok := seen[m.TaxonMeasurementID]; ok {
				continue
			}
			seen[m.TaxonMeasurementID] = struct{}{}
			ids = append(ids, m.TaxonMeasurementID)
		}
	}

	return ids
}

// orderedKeys returns the keys of m listed in order first, then the rest sorted.
func orderedKeys[V any](order []string, m map[string]V) []string {
	keys := make([]string, 0, len(m))
	seen := make(map[string]struct{}, len(m))
	for _, k := range order {
		if _, ok := m[k]; !ok {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}

	rest := make([]string, 0, len(m)-len(keys))
	for k := range m {
		if _, ok := seen[k]; !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)

	return append(keys, rest...)
}
