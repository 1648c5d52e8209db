//go:build integration
// +build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/vench/obsanalytics"
	"github.com/vench/obsanalytics/demostore"
)

var (
	setupPostgresNameDB     = "biohub"
	setupPostgresUserDB     = "biohub"
	setupPostgresPasswordDB = "biohub"

	setupDB      *sqlx.DB
	setupFixture *demostore.Fixture
)

func setupPostgres(ctx context.Context) (testcontainers.Container, error) {
	req := testcontainers.ContainerRequest{
		Image: "postgres:16-alpine",
		Env: map[string]string{
			"POSTGRES_DB":       setupPostgresNameDB,
			"POSTGRES_USER":     setupPostgresUserDB,
			"POSTGRES_PASSWORD": setupPostgresPasswordDB,
		},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	}

	postgresContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generic container: %w", err)
	}

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get host: %w", err)
	}

	port, err := postgresContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return nil, fmt.Errorf("failed to get port: %w", err)
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		setupPostgresUserDB, setupPostgresPasswordDB, host, port.Port(), setupPostgresNameDB)

	setupDB, err = sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	return postgresContainer, nil
}

func TestMain(m *testing.M) {
	ctx := context.Background()
	cont, err := setupPostgres(ctx)
	if err != nil {
		log.Fatalf("failed to setup postgres: %v", err)

		return
	}

	if err = initPostgresDB(ctx); err != nil {
		log.Fatalf("failed to init DB postgres: %v", err)

		return
	}

	exitVal := m.Run()

	setupDB.Close()
	cont.Terminate(ctx)

	os.Exit(exitVal)
}

func initPostgresDB(ctx context.Context) error {
	if err := demostore.CreateSchema(ctx, setupDB); err != nil {
		return err
	}

	var err error
	setupFixture, err = demostore.Seed(ctx, setupDB)

	return err
}

func TestPostgres_AggregationRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := obsanalytics.NewAggregationRepository(setupDB, obsanalytics.LoggerRepositoryOption(zap.NewExample()))

	require.NoError(t, repo.Ping(ctx))

	rows, err := repo.Aggregate(ctx, &obsanalytics.ObservationCountRequest{
		SurveyIDs:                         []int64{1},
		GroupByColumns:                    []string{"itis_tsn"},
		GroupByQuantitativeMeasurementIDs: []string{setupFixture.WeightMeasurementID},
		GroupByQualitativeMeasurementIDs:  []string{setupFixture.SexMeasurementID},
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	total := 0.0
	for _, row := range rows {
		total += row.IndividualPercentage
		require.Contains(t, row.QuantMeasurements, setupFixture.WeightMeasurementID)
		require.Contains(t, row.QualMeasurements, setupFixture.SexMeasurementID)
	}
	require.InDelta(t, 100, total, 1e-9)

	// deer sorts first by taxon and carries no measurements
	require.Equal(t, int64(180692), rows[0].Group["itis_tsn"])
	require.Equal(t, int64(4), rows[0].IndividualCount)
	require.Nil(t, rows[0].QuantMeasurements[setupFixture.WeightMeasurementID])
	require.Nil(t, rows[0].QualMeasurements[setupFixture.SexMeasurementID])
}

func TestPostgres_GetObservationCountByGroup(t *testing.T) {
	t.Parallel()

	service := obsanalytics.NewAnalyticsService(
		obsanalytics.NewAggregationRepository(setupDB),
		demostore.NewDefinitionClient(setupFixture),
	)

	result, err := service.GetObservationCountByGroup(context.Background(), &obsanalytics.ObservationCountRequest{
		SurveyIDs:      []int64{1, 2},
		GroupByColumns: []string{"survey_id"},
	})
	require.NoError(t, err)
	require.Len(t, result, 2)

	require.Equal(t, int64(3), result[0].RowCount)
	require.Equal(t, int64(10), result[0].IndividualCount)
	require.InDelta(t, 50, result[0].IndividualPercentage, 1e-9)
	require.Equal(t, int64(1), result[1].RowCount)
	require.Equal(t, int64(10), result[1].IndividualCount)
}
