package obsanalytics

// GroupColumn is an allow-listed grouping column. Name is what callers send
// and the alias of the result column; Expression is interpolated into the
// query and must never come from a request.
type GroupColumn struct {
	Name       string
	Expression string
}

// DefaultGroupColumns returns the observation and sampling columns callers may
// group by.
func DefaultGroupColumns() []*GroupColumn {
	return []*GroupColumn{
		{Name: "survey_id", Expression: "so.survey_id"},
		{Name: "itis_tsn", Expression: "so.itis_tsn"},
		{Name: "itis_scientific_name", Expression: "so.itis_scientific_name"},
		{Name: "survey_sample_site_id", Expression: "so.survey_sample_site_id"},
		{Name: "survey_sample_method_id", Expression: "so.survey_sample_method_id"},
		{Name: "survey_sample_period_id", Expression: "so.survey_sample_period_id"},
		{Name: "latitude", Expression: "so.latitude"},
		{Name: "longitude", Expression: "so.longitude"},
		{Name: "observation_date", Expression: "so.observation_date"},
		{Name: "observation_time", Expression: "so.observation_time"},
	}
}
