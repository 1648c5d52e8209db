package obsanalytics

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const (
	quantColumnPrefix = "quant_"
	qualColumnPrefix  = "qual_"

	rowCountColumn        = "row_count"
	individualCountColumn = "individual_count"
)

// Querier is the database capability the repository runs on. *sqlx.DB and
// *sqlx.Tx satisfy it.
type Querier interface {
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	Rebind(query string) string
}

// ReadRepository common read interface.
type ReadRepository interface {
	// Aggregate returns observation counts grouped by the requested columns and measurements.
	Aggregate(ctx context.Context, req *ObservationCountRequest) ([]*ObservationCountRow, error)
	// Columns returns list of allowed grouping columns.
	Columns() []*GroupColumn
}

// AggregationRepository sql implementation of ReadRepository.
type AggregationRepository struct {
	conn Querier

	mapColumns map[string]*GroupColumn
	columns    []*GroupColumn

	logger  *zap.Logger
	metrics *Metrics
}

type RepositoryOption func(*AggregationRepository)

func LoggerRepositoryOption(logger *zap.Logger) RepositoryOption {
	return func(r *AggregationRepository) {
		r.logger = logger
	}
}

func MetricsRepositoryOption(metrics *Metrics) RepositoryOption {
	return func(r *AggregationRepository) {
		r.metrics = metrics
	}
}

// ColumnsRepositoryOption replaces the default grouping column allow-list.
func ColumnsRepositoryOption(columns []*GroupColumn) RepositoryOption {
	return func(r *AggregationRepository) {
		r.columns = columns
	}
}

// NewAggregationRepository returns new instance of AggregationRepository.
func NewAggregationRepository(conn Querier, opts ...RepositoryOption) *AggregationRepository {
	r := &AggregationRepository{
		conn:    conn,
		columns: DefaultGroupColumns(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.mapColumns = make(map[string]*GroupColumn, len(r.columns))
	for i := range r.columns {
		r.mapColumns[r.columns[i].Name] = r.columns[i]
	}

	return r
}

func (r *AggregationRepository) Columns() []*GroupColumn {
	return r.columns
}

func (r *AggregationRepository) Ping(ctx context.Context) error {
	_, err := r.conn.ExecContext(ctx, `SELECT 1`)
	return err
}

func (r *AggregationRepository) Aggregate(
	ctx context.Context, req *ObservationCountRequest,
) ([]*ObservationCountRow, error) {
	if len(req.SurveyIDs) == 0 {
		return nil, invalidInput("surveyIds", "at least one survey id is required")
	}

	columns := r.groupColumns(req.GroupByColumns)

	query, params, err := r.buildQuery(columns, req)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	query = r.conn.Rebind(query)

	r.logger.Debug("aggregate observations",
		zap.String("query", query),
		zap.Any("params", params),
	)

	start := time.Now()
	fail := func(err error) error {
		r.metrics.observeQuery(start, err)
		return &QueryExecutionError{Query: query, Params: params, Err: err}
	}

	rows, err := r.conn.QueryxContext(ctx, query, params...)
	if err != nil {
		return nil, fail(err)
	}
	defer rows.Close()

	response := make([]*ObservationCountRow, 0)
	for rows.Next() {
		values := make(map[string]interface{})
		if err := rows.MapScan(values); err != nil {
			return nil, fail(err)
		}

		row, err := scanRow(columns, req, values)
		if err != nil {
			return nil, fail(err)
		}

		// an ungrouped aggregate over no observations still yields one row
		if row.RowCount == 0 {
			continue
		}
		response = append(response, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(err)
	}

	r.metrics.observeQuery(start, nil)
	applyPercentages(response)

	return response, nil
}

func (r *AggregationRepository) getColumn(name string) (*GroupColumn, bool) {
	if column, ok := r.mapColumns[name]; ok {
		return column, true
	}
	return nil, false
}

// groupColumns resolves requested names against the allow-list, dropping
// unknown names and repeats.
func (r *AggregationRepository) groupColumns(names []string) []*GroupColumn {
	columns := make([]*GroupColumn, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		column, exists := r.getColumn(name)
		if !exists {
			r.logger.Warn("skip unknown group column", zap.String("column", name))
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		columns = append(columns, column)
	}
	return columns
}

func (r *AggregationRepository) buildQuery(
	columns []*GroupColumn, req *ObservationCountRequest,
) (string, []interface{}, error) {
	query := ""
	params := make([]interface{}, 0)

	query += `WITH subcounts AS (`
	applySubcountSelect(columns, req, &query, &params)
	query += ` FROM observation_subcount os` +
		` INNER JOIN survey_observation so ON so.survey_observation_id = os.survey_observation_id`
	applyWhere(req, &query, &params)
	query += `) `

	keys := groupKeys(columns, req)
	applySelect(keys, &query)
	query += ` FROM subcounts`
	applyGroup(keys, &query)
	applyOrder(keys, &query)

	return sqlx.In(query, params...)
}

func applySubcountSelect(
	columns []*GroupColumn, req *ObservationCountRequest, query *string, params *[]interface{},
) {
	*query += `SELECT so.survey_observation_id, os.subcount`

	for _, column := range columns {
		*query += fmt.Sprintf(`, %s AS %s`, column.Expression, column.Name)
	}

	for i, id := range req.GroupByQuantitativeMeasurementIDs {
		*query += fmt.Sprintf(`, (SELECT qn.value FROM observation_subcount_quantitative_measurement qn`+
			` WHERE qn.observation_subcount_id = os.observation_subcount_id`+
			` AND qn.critterbase_taxon_measurement_id = ?) AS %s`, quantColumnAlias(i))
		*params = append(*params, id)
	}

	for i, id := range req.GroupByQualitativeMeasurementIDs {
		*query += fmt.Sprintf(`, (SELECT ql.critterbase_measurement_qualitative_option_id`+
			` FROM observation_subcount_qualitative_measurement ql`+
			` WHERE ql.observation_subcount_id = os.observation_subcount_id`+
			` AND ql.critterbase_taxon_measurement_id = ?) AS %s`, qualColumnAlias(i))
		*params = append(*params, id)
	}
}

func applyWhere(req *ObservationCountRequest, query *string, params *[]interface{}) {
	*query += ` WHERE so.survey_id IN (?)`
	*params = append(*params, req.SurveyIDs)
}

func applySelect(keys []string, query *string) {
	*query += `SELECT `
	if len(keys) > 0 {
		*query += strings.Join(keys, `, `) + `, `
	}
	*query += fmt.Sprintf(`COUNT(DISTINCT survey_observation_id) AS %s, SUM(subcount) AS %s`,
		rowCountColumn, individualCountColumn)
}

func applyGroup(keys []string, query *string) {
	if len(keys) > 0 {
		*query += ` GROUP BY ` + strings.Join(keys, `, `)
	}
}

func applyOrder(keys []string, query *string) {
	if len(keys) > 0 {
		*query += ` ORDER BY ` + strings.Join(keys, `, `)
	}
}

func groupKeys(columns []*GroupColumn, req *ObservationCountRequest) []string {
	keys := make([]string, 0,
		len(columns)+len(req.GroupByQuantitativeMeasurementIDs)+len(req.GroupByQualitativeMeasurementIDs))
	for _, column := range columns {
		keys = append(keys, column.Name)
	}
	for i := range req.GroupByQuantitativeMeasurementIDs {
		keys = append(keys, quantColumnAlias(i))
	}
	for i := range req.GroupByQualitativeMeasurementIDs {
		keys = append(keys, qualColumnAlias(i))
	}
	return keys
}

func quantColumnAlias(i int) string {
	return fmt.Sprintf("%s%d", quantColumnPrefix, i)
}

func qualColumnAlias(i int) string {
	return fmt.Sprintf("%s%d", qualColumnPrefix, i)
}

func scanRow(
	columns []*GroupColumn, req *ObservationCountRequest, values map[string]interface{},
) (*ObservationCountRow, error) {
	var err error
	row := &ObservationCountRow{
		Group:             make(map[string]interface{}, len(columns)),
		QuantMeasurements: make(map[string]*float64, len(req.GroupByQuantitativeMeasurementIDs)),
		QualMeasurements:  make(map[string]*string, len(req.GroupByQualitativeMeasurementIDs)),

		QuantMeasurementIDs: req.GroupByQuantitativeMeasurementIDs,
		QualMeasurementIDs:  req.GroupByQualitativeMeasurementIDs,
	}

	if row.RowCount, err = asInt64(values[rowCountColumn]); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rowCountColumn, err)
	}
	if row.IndividualCount, err = asInt64(values[individualCountColumn]); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", individualCountColumn, err)
	}

	for _, column := range columns {
		row.Group[column.Name] = normalizeValue(values[column.Name])
	}

	for i, id := range req.GroupByQuantitativeMeasurementIDs {
		alias := quantColumnAlias(i)
		value, err := asNullFloat64(values[alias])
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", alias, err)
		}
		row.QuantMeasurements[id] = value
	}

	for i, id := range req.GroupByQualitativeMeasurementIDs {
		row.QualMeasurements[id] = asNullString(values[qualColumnAlias(i)])
	}

	return row, nil
}

// applyPercentages sets each row's share of the individuals across all rows.
func applyPercentages(rows []*ObservationCountRow) {
	var total int64
	for _, row := range rows {
		total += row.IndividualCount
	}

	for _, row := range rows {
		if total == 0 {
			row.IndividualPercentage = 0
			continue
		}
		row.IndividualPercentage = SafeNaN(100 * float64(row.IndividualCount) / float64(total))
	}
}
