// Package ingest loads station observations from CSV files into the
// observation store.
//
// The expected layout is one observation per row:
//
//	time,station_id,kitka3,temp
//	2019-01-15 08:00:00,1122,0.45,-3.2
//	2019-01-15 08:10:00,1122,,-3.4
//
// An empty cell is a missing reading.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/tsa/internal/block"
	"github.com/smukkama/tsa/internal/database"
	"github.com/smukkama/tsa/internal/logger"
)

var timeLayouts = []string{time.RFC3339, time.DateTime, "02.01.2006 15:04:05", "02.01.2006 15:04"}

// Row is one parsed observation
type Row struct {
	Line      int
	Time      time.Time
	StationID int
	Values    []*float64
}

// File is a parsed CSV file. Values of each row follow the order of Sensors.
type File struct {
	Sensors []string
	Rows    []Row
}

// Parse reads a CSV document. Times without a zone are read in loc.
func Parse(r io.Reader, loc *time.Location) (*File, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < 3 || strings.TrimSpace(header[0]) != "time" || strings.TrimSpace(header[1]) != "station_id" {
		return nil, errors.New("header must start with time,station_id and name at least one sensor")
	}

	f := &File{}
	seen := make(map[string]bool)
	for _, col := range header[2:] {
		name, err := block.NormalizeIdentifier(col)
		if err != nil {
			return nil, fmt.Errorf("sensor column %q: %w", col, err)
		}
		if seen[name] {
			return nil, fmt.Errorf("sensor column %q appears twice", name)
		}
		seen[name] = true
		f.Sensors = append(f.Sensors, name)
	}

	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row, err := parseRow(rec, loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row.Line = line
		f.Rows = append(f.Rows, row)
	}
	return f, nil
}

func parseRow(rec []string, loc *time.Location) (Row, error) {
	var row Row

	ts, err := parseTime(strings.TrimSpace(rec[0]), loc)
	if err != nil {
		return row, err
	}
	row.Time = ts.UTC()

	row.StationID, err = strconv.Atoi(strings.TrimSpace(rec[1]))
	if err != nil || row.StationID <= 0 {
		return row, fmt.Errorf("invalid station id %q", rec[1])
	}

	row.Values = make([]*float64, len(rec)-2)
	for i, cell := range rec[2:] {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.Replace(cell, ",", ".", 1), 64)
		if err != nil {
			return row, fmt.Errorf("invalid value %q", cell)
		}
		row.Values[i] = &v
	}
	return row, nil
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

// Store is the part of the observation database used by Loader
type Store interface {
	SensorIDs(ctx context.Context) (map[string]int, error)
	UpsertSensor(ctx context.Context, s *database.Sensor) error
	UpsertStation(ctx context.Context, s *database.Station) error
	InsertObservation(ctx context.Context, obs *database.Observation, readings []database.SensorReading) error
}

// Loader writes parsed files into a Store
type Loader struct {
	store  Store
	logger *zap.SugaredLogger
}

// NewLoader creates a new loader
func NewLoader(store Store) *Loader {
	return &Loader{store: store, logger: logger.For(logger.ComponentIngest)}
}

// Load registers unknown sensors and stations and inserts every row. It
// stops at the first failing row and returns the number of rows inserted
// before it.
func (l *Loader) Load(ctx context.Context, f *File) (int, error) {
	sensorIDs, err := l.sensors(ctx, f.Sensors)
	if err != nil {
		return 0, err
	}

	stations := make(map[int]bool)
	inserted := 0
	for _, row := range f.Rows {
		if !stations[row.StationID] {
			if err := l.store.UpsertStation(ctx, &database.Station{ID: row.StationID}); err != nil {
				return inserted, fmt.Errorf("line %d: failed to register station %d: %w", row.Line, row.StationID, err)
			}
			stations[row.StationID] = true
		}

		readings := make([]database.SensorReading, len(sensorIDs))
		for i, id := range sensorIDs {
			readings[i] = database.SensorReading{SensorID: id, Value: row.Values[i]}
		}

		obs := &database.Observation{TFrom: row.Time, StationID: row.StationID}
		if err := l.store.InsertObservation(ctx, obs, readings); err != nil {
			return inserted, fmt.Errorf("line %d: %w", row.Line, err)
		}
		inserted++
	}

	l.logger.Infof("Imported %d observations of %d stations", inserted, len(stations))
	return inserted, nil
}

// sensors returns the ids of names in order, registering unknown sensors
// with the next free ids
func (l *Loader) sensors(ctx context.Context, names []string) ([]int, error) {
	known, err := l.store.SensorIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read sensors: %w", err)
	}
	if known == nil {
		known = make(map[string]int)
	}

	next := 1
	for _, id := range known {
		if id >= next {
			next = id + 1
		}
	}

	ids := make([]int, len(names))
	for i, name := range names {
		if id, ok := known[name]; ok {
			ids[i] = id
			continue
		}
		sensor := &database.Sensor{ID: next, Name: name}
		if err := l.store.UpsertSensor(ctx, sensor); err != nil {
			return nil, fmt.Errorf("failed to register sensor %s: %w", name, err)
		}
		l.logger.Infof("Registered sensor %s with id %d", name, next)
		known[name] = next
		ids[i] = next
		next++
	}
	return ids, nil
}
