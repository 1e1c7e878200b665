package database

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSample(t *testing.T) {
	local := time.Date(2019, 1, 15, 2, 0, 0, 0, time.FixedZone("EET", 2*3600))

	s := toSample(local, sql.NullFloat64{Float64: 0.3, Valid: true})
	require.NotNil(t, s.Value)
	assert.Equal(t, 0.3, *s.Value)
	assert.Equal(t, time.UTC, s.Time.Location())
	assert.True(t, s.Time.Equal(local))

	s = toSample(local, sql.NullFloat64{})
	assert.Nil(t, s.Value)
}

// TestStore_Postgres runs against the database named by TSA_TEST_DATABASE_URL
func TestStore_Postgres(t *testing.T) {
	dsn := os.Getenv("TSA_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TSA_TEST_DATABASE_URL not set")
	}

	db, err := Connect(dsn)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.RunMigrations("../../migrations"))

	ctx := context.Background()
	_, err = db.ExecContext(ctx, `TRUNCATE sensor_readings, observations, sensors, stations CASCADE`)
	require.NoError(t, err)

	require.NoError(t, db.UpsertStation(ctx, &Station{ID: 1122}))
	require.NoError(t, db.UpsertSensor(ctx, &Sensor{ID: 7, Name: "kitka3_luku"}))

	base := time.Date(2019, 1, 15, 0, 0, 0, 0, time.UTC)
	one := 1.0
	for i, v := range []*float64{&one, nil, &one} {
		obs := &Observation{TFrom: base.Add(time.Duration(i*10) * time.Minute), StationID: 1122}
		require.NoError(t, db.InsertObservation(ctx, obs, []SensorReading{{SensorID: 7, Value: v}}))
		assert.NotZero(t, obs.ID)
	}

	stations, err := db.StationIDs(ctx)
	require.NoError(t, err)
	assert.True(t, stations[1122])

	sensors, err := db.SensorIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, sensors["kitka3_luku"])

	samples, err := db.Fetch(ctx, 1122, 7, base, base.Add(20*time.Minute))
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, 1.0, *samples[0].Value)
	assert.Nil(t, samples[1].Value)
}
