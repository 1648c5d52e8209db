// Package demostore creates and seeds a small observation store, and serves
// matching measurement definitions without a Critterbase instance.
package demostore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS survey_observation (
		survey_observation_id INTEGER PRIMARY KEY,
		survey_id INTEGER NOT NULL,
		itis_tsn INTEGER NULL,
		itis_scientific_name VARCHAR(300) NULL,
		survey_sample_site_id INTEGER NULL,
		survey_sample_method_id INTEGER NULL,
		survey_sample_period_id INTEGER NULL,
		latitude NUMERIC NULL,
		longitude NUMERIC NULL,
		count INTEGER NOT NULL,
		observation_date DATE NULL,
		observation_time TIME NULL
	)`,
	`CREATE TABLE IF NOT EXISTS observation_subcount (
		observation_subcount_id INTEGER PRIMARY KEY,
		survey_observation_id INTEGER NOT NULL REFERENCES survey_observation (survey_observation_id),
		subcount INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS observation_subcount_quantitative_measurement (
		observation_subcount_id INTEGER NOT NULL REFERENCES observation_subcount (observation_subcount_id),
		critterbase_taxon_measurement_id VARCHAR(36) NOT NULL,
		value NUMERIC NULL,
		PRIMARY KEY (observation_subcount_id, critterbase_taxon_measurement_id)
	)`,
	`CREATE TABLE IF NOT EXISTS observation_subcount_qualitative_measurement (
		observation_subcount_id INTEGER NOT NULL REFERENCES observation_subcount (observation_subcount_id),
		critterbase_taxon_measurement_id VARCHAR(36) NOT NULL,
		critterbase_measurement_qualitative_option_id VARCHAR(36) NOT NULL,
		PRIMARY KEY (observation_subcount_id, critterbase_taxon_measurement_id)
	)`,
}

var demoNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/vench/obsanalytics/demostore"))

// Fixture holds the measurement identifiers used by Seed. They are derived
// from fixed names, so every Seed call returns the same values.
type Fixture struct {
	WeightMeasurementID string
	SexMeasurementID    string
	MaleOptionID        string
	FemaleOptionID      string
}

// CreateSchema creates the observation tables when they do not exist.
func CreateSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// NewFixture returns the demo measurement identifiers.
func NewFixture() *Fixture {
	return &Fixture{
		WeightMeasurementID: demoID("measurement/weight"),
		SexMeasurementID:    demoID("measurement/sex"),
		MaleOptionID:        demoID("option/sex/male"),
		FemaleOptionID:      demoID("option/sex/female"),
	}
}

func demoID(name string) string {
	return uuid.NewSHA1(demoNamespace, []byte(name)).String()
}

// Seed inserts observations for surveys 1 and 2. Survey 1 holds a moose
// (itis_tsn 180703) and a deer (180692) population with weight and sex
// measurements on some subcounts; survey 2 holds one deer observation.
// Nothing is inserted when survey_observation already holds rows.
func Seed(ctx context.Context, db *sqlx.DB) (*Fixture, error) {
	f := NewFixture()

	var existing int64
	if err := db.GetContext(ctx, &existing, `SELECT COUNT(*) FROM survey_observation`); err != nil {
		return nil, fmt.Errorf("failed to count observations: %w", err)
	}
	if existing > 0 {
		return f, nil
	}

	observations := []struct {
		id, surveyID, tsn, site int64
		name                    string
		count                   int64
		date                    string
	}{
		{1, 1, 180703, 10, "Alces alces", 3, "2024-05-01"},
		{2, 1, 180703, 11, "Alces alces", 3, "2024-05-02"},
		{3, 1, 180692, 10, "Odocoileus virginianus", 4, "2024-05-02"},
		{4, 2, 180692, 20, "Odocoileus virginianus", 10, "2024-06-01"},
	}

	subcounts := []struct {
		id, observationID, subcount int64
	}{
		{1, 1, 2},
		{2, 1, 1},
		{3, 2, 3},
		{4, 3, 4},
		{5, 4, 10},
	}

	quantitative := []struct {
		subcountID int64
		value      interface{}
	}{
		{1, 350},
		{2, nil},
		{3, 350},
	}

	qualitative := []struct {
		subcountID int64
		optionID   string
	}{
		{1, f.MaleOptionID},
		{2, f.FemaleOptionID},
		{3, f.MaleOptionID},
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin seed: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, o := range observations {
		if _, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO survey_observation (survey_observation_id,
			survey_id, itis_tsn, itis_scientific_name, survey_sample_site_id, count, observation_date)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
			o.id, o.surveyID, o.tsn, o.name, o.site, o.count, o.date); err != nil {
			return nil, fmt.Errorf("failed to insert observation %d: %w", o.id, err)
		}
	}

	for _, s := range subcounts {
		if _, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO observation_subcount
			(observation_subcount_id, survey_observation_id, subcount) VALUES (?, ?, ?)`),
			s.id, s.observationID, s.subcount); err != nil {
			return nil, fmt.Errorf("failed to insert subcount %d: %w", s.id, err)
		}
	}

	for _, m := range quantitative {
		if _, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO observation_subcount_quantitative_measurement
			(observation_subcount_id, critterbase_taxon_measurement_id, value) VALUES (?, ?, ?)`),
			m.subcountID, f.WeightMeasurementID, m.value); err != nil {
			return nil, fmt.Errorf("failed to insert quantitative measurement: %w", err)
		}
	}

	for _, m := range qualitative {
		if _, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO observation_subcount_qualitative_measurement
			(observation_subcount_id, critterbase_taxon_measurement_id,
			critterbase_measurement_qualitative_option_id) VALUES (?, ?, ?)`),
			m.subcountID, f.SexMeasurementID, m.optionID); err != nil {
			return nil, fmt.Errorf("failed to insert qualitative measurement: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit seed: %w", err)
	}

	return f, nil
}
