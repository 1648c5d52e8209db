package obsanalytics_test

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vench/obsanalytics"
	"github.com/vench/obsanalytics/demostore"
)

func openSQLite(t *testing.T) (*sqlx.DB, *demostore.Fixture) {
	t.Helper()

	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// every pooled connection would otherwise get its own empty database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	ctx := context.Background()
	require.NoError(t, demostore.CreateSchema(ctx, db))
	fixture, err := demostore.Seed(ctx, db)
	require.NoError(t, err)

	return db, fixture
}

func TestSQLite_Aggregate(t *testing.T) {
	t.Parallel()

	db, fixture := openSQLite(t)
	repo := obsanalytics.NewAggregationRepository(db, obsanalytics.LoggerRepositoryOption(zap.NewNop()))
	ctx := context.Background()

	require.NoError(t, repo.Ping(ctx))

	t.Run("by taxon", func(t *testing.T) {
		rows, err := repo.Aggregate(ctx, &obsanalytics.ObservationCountRequest{
			SurveyIDs:      []int64{1},
			GroupByColumns: []string{"itis_tsn"},
		})
		require.NoError(t, err)
		require.Len(t, rows, 2)

		require.Equal(t, int64(180692), rows[0].Group["itis_tsn"])
		require.Equal(t, int64(1), rows[0].RowCount)
		require.Equal(t, int64(4), rows[0].IndividualCount)
		require.InDelta(t, 40, rows[0].IndividualPercentage, 1e-9)

		require.Equal(t, int64(180703), rows[1].Group["itis_tsn"])
		require.Equal(t, int64(2), rows[1].RowCount)
		require.Equal(t, int64(6), rows[1].IndividualCount)
		require.InDelta(t, 60, rows[1].IndividualPercentage, 1e-9)
	})

	t.Run("by taxon and weight", func(t *testing.T) {
		rows, err := repo.Aggregate(ctx, &obsanalytics.ObservationCountRequest{
			SurveyIDs:                         []int64{1},
			GroupByColumns:                    []string{"itis_tsn"},
			GroupByQuantitativeMeasurementIDs: []string{fixture.WeightMeasurementID},
		})
		require.NoError(t, err)
		require.Len(t, rows, 3)

		total := 0.0
		for _, row := range rows {
			total += row.IndividualPercentage
			require.Contains(t, row.QuantMeasurements, fixture.WeightMeasurementID)
		}
		require.InDelta(t, 100, total, 1e-9)

		// sqlite sorts NULL first
		require.Nil(t, rows[1].QuantMeasurements[fixture.WeightMeasurementID])
		require.Equal(t, int64(1), rows[1].IndividualCount)
		require.NotNil(t, rows[2].QuantMeasurements[fixture.WeightMeasurementID])
		require.Equal(t, 350.0, *rows[2].QuantMeasurements[fixture.WeightMeasurementID])
		require.Equal(t, int64(2), rows[2].RowCount)
		require.Equal(t, int64(5), rows[2].IndividualCount)
	})

	t.Run("ungrouped across surveys", func(t *testing.T) {
		rows, err := repo.Aggregate(ctx, &obsanalytics.ObservationCountRequest{
			SurveyIDs: []int64{1, 2},
		})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, int64(4), rows[0].RowCount)
		require.Equal(t, int64(20), rows[0].IndividualCount)
		require.InDelta(t, 100, rows[0].IndividualPercentage, 1e-9)
	})

	t.Run("survey without observations", func(t *testing.T) {
		rows, err := repo.Aggregate(ctx, &obsanalytics.ObservationCountRequest{
			SurveyIDs:      []int64{3},
			GroupByColumns: []string{"itis_tsn"},
		})
		require.NoError(t, err)
		require.Empty(t, rows)

		rows, err = repo.Aggregate(ctx, &obsanalytics.ObservationCountRequest{SurveyIDs: []int64{3}})
		require.NoError(t, err)
		require.Empty(t, rows)
	})
}

func TestSQLite_GetObservationCountByGroup(t *testing.T) {
	t.Parallel()

	db, fixture := openSQLite(t)
	service := obsanalytics.NewAnalyticsService(
		obsanalytics.NewAggregationRepository(db),
		demostore.NewDefinitionClient(fixture),
	)

	req := &obsanalytics.ObservationCountRequest{
		SurveyIDs:                         []int64{1},
		GroupByColumns:                    []string{"itis_tsn"},
		GroupByQuantitativeMeasurementIDs: []string{fixture.WeightMeasurementID},
		GroupByQualitativeMeasurementIDs:  []string{fixture.SexMeasurementID},
	}

	result, err := service.GetObservationCountByGroup(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result, 3)

	// deer: no measurements at all
	require.Equal(t, int64(180692), result[0].Group["itis_tsn"])
	require.Empty(t, result[0].QuantitativeMeasurements)
	require.Empty(t, result[0].QualitativeMeasurements)

	// moose subcount without a weight value but with a sex
	require.Empty(t, result[1].QuantitativeMeasurements)
	require.Equal(t, []*obsanalytics.QualitativeMeasurementAnalytics{
		{
			TaxonMeasurementID: fixture.SexMeasurementID,
			MeasurementName:    "Sex",
			Option: obsanalytics.QualitativeMeasurementOption{
				OptionID:    fixture.FemaleOptionID,
				OptionLabel: "Female",
			},
		},
	}, result[1].QualitativeMeasurements)

	require.Equal(t, []*obsanalytics.QuantitativeMeasurementAnalytics{
		{TaxonMeasurementID: fixture.WeightMeasurementID, MeasurementName: "Weight", Value: 350},
	}, result[2].QuantitativeMeasurements)
	require.Equal(t, "Male", result[2].QualitativeMeasurements[0].Option.OptionLabel)

	again, err := service.GetObservationCountByGroup(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, result, again)
}
