package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/smukkama/tsa/internal/interval"
)

// Stations returns all stations
func (db *DB) Stations(ctx context.Context) ([]Station, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, geom, properties::text FROM stations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	defer rows.Close()

	var stations []Station
	for rows.Next() {
		var s Station
		if err := rows.Scan(&s.ID, &s.Geom, &s.Properties); err != nil {
			return nil, fmt.Errorf("failed to scan station: %w", err)
		}
		stations = append(stations, s)
	}
	return stations, rows.Err()
}

// Sensors returns all sensors
func (db *DB) Sensors(ctx context.Context) ([]Sensor, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, short_name, unit, accuracy FROM sensors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensors: %w", err)
	}
	defer rows.Close()

	var sensors []Sensor
	for rows.Next() {
		var s Sensor
		if err := rows.Scan(&s.ID, &s.Name, &s.ShortName, &s.Unit, &s.Accuracy); err != nil {
			return nil, fmt.Errorf("failed to scan sensor: %w", err)
		}
		sensors = append(sensors, s)
	}
	return sensors, rows.Err()
}

// StationIDs returns the set of known station ids
func (db *DB) StationIDs(ctx context.Context) (map[int]bool, error) {
	stations, err := db.Stations(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[int]bool, len(stations))
	for _, s := range stations {
		ids[s.ID] = true
	}
	return ids, nil
}

// SensorIDs maps sensor names to ids
func (db *DB) SensorIDs(ctx context.Context) (map[string]int, error) {
	sensors, err := db.Sensors(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]int, len(sensors))
	for _, s := range sensors {
		ids[s.Name] = s.ID
	}
	return ids, nil
}

// Fetch returns the readings of one station sensor with observation time in
// [from, until), ordered by time. NULL readings become absent samples.
func (db *DB) Fetch(ctx context.Context, stationID, sensorID int, from, until time.Time) ([]interval.Sample, error) {
	query := `
		SELECT o.tfrom, r.value
		FROM observations o
		JOIN sensor_readings r ON r.obs_id = o.id
		WHERE o.station_id = $1
		  AND r.sensor_id = $2
		  AND o.tfrom >= $3
		  AND o.tfrom < $4
		ORDER BY o.tfrom
	`

	rows, err := db.QueryContext(ctx, query, stationID, sensorID, from, until)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings of station %d sensor %d: %w", stationID, sensorID, err)
	}
	defer rows.Close()

	var samples []interval.Sample
	for rows.Next() {
		var (
			t     time.Time
			value sql.NullFloat64
		)
		if err := rows.Scan(&t, &value); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		samples = append(samples, toSample(t, value))
	}
	return samples, rows.Err()
}

func toSample(t time.Time, value sql.NullFloat64) interval.Sample {
	s := interval.Sample{Time: t.UTC()}
	if value.Valid {
		v := value.Float64
		s.Value = &v
	}
	return s
}

// UpsertStation inserts or updates a station
func (db *DB) UpsertStation(ctx context.Context, s *Station) error {
	query := `
		INSERT INTO stations (id, geom, properties)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (id) DO UPDATE
		SET geom = EXCLUDED.geom,
		    properties = EXCLUDED.properties
	`
	_, err := db.ExecContext(ctx, query, s.ID, s.Geom, s.Properties)
	return err
}

// UpsertSensor inserts or updates a sensor
func (db *DB) UpsertSensor(ctx context.Context, s *Sensor) error {
	query := `
		INSERT INTO sensors (id, name, short_name, unit, accuracy)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    short_name = EXCLUDED.short_name,
		    unit = EXCLUDED.unit,
		    accuracy = EXCLUDED.accuracy
	`
	_, err := db.ExecContext(ctx, query, s.ID, s.Name, s.ShortName, s.Unit, s.Accuracy)
	return err
}

// InsertObservation stores an observation and its readings in one
// transaction and sets obs.ID
func (db *DB) InsertObservation(ctx context.Context, obs *Observation, readings []SensorReading) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO observations (tfrom, station_id) VALUES ($1, $2) RETURNING id`,
		obs.TFrom, obs.StationID,
	).Scan(&obs.ID)
	if err != nil {
		return fmt.Errorf("failed to insert observation: %w", err)
	}

	for _, r := range readings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sensor_readings (obs_id, sensor_id, value) VALUES ($1, $2, $3)`,
			obs.ID, r.SensorID, r.Value,
		); err != nil {
			return fmt.Errorf("failed to insert reading of sensor %d: %w", r.SensorID, err)
		}
	}

	return tx.Commit()
}
