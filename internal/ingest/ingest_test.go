package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/tsa/internal/database"
)

const sample = `time,station_id,Kitka3,temp
2019-01-15 08:00:00,1122,0.45,-3.2
2019-01-15 08:10:00,1122,,"-3,4"
2019-01-15T08:00:00Z,1200,0.2,
`

type fakeStore struct {
	sensors      map[string]int
	upserted     []database.Sensor
	stations     []int
	observations []database.Observation
	readings     [][]database.SensorReading
	failAt       int
}

func (f *fakeStore) SensorIDs(ctx context.Context) (map[string]int, error) {
	return f.sensors, nil
}

func (f *fakeStore) UpsertSensor(ctx context.Context, s *database.Sensor) error {
	f.upserted = append(f.upserted, *s)
	return nil
}

func (f *fakeStore) UpsertStation(ctx context.Context, s *database.Station) error {
	f.stations = append(f.stations, s.ID)
	return nil
}

func (f *fakeStore) InsertObservation(ctx context.Context, obs *database.Observation, readings []database.SensorReading) error {
	if f.failAt > 0 && len(f.observations)+1 == f.failAt {
		return errors.New("duplicate key value violates unique constraint")
	}
	f.observations = append(f.observations, *obs)
	f.readings = append(f.readings, readings)
	return nil
}

func TestParse(t *testing.T) {
	helsinki, err := time.LoadLocation("Europe/Helsinki")
	require.NoError(t, err)

	f, err := Parse(strings.NewReader(sample), helsinki)
	require.NoError(t, err)

	assert.Equal(t, []string{"kitka3", "temp"}, f.Sensors)
	require.Len(t, f.Rows, 3)

	first := f.Rows[0]
	assert.Equal(t, 2, first.Line)
	assert.Equal(t, time.Date(2019, 1, 15, 6, 0, 0, 0, time.UTC), first.Time)
	assert.Equal(t, 1122, first.StationID)
	require.NotNil(t, first.Values[0])
	assert.Equal(t, 0.45, *first.Values[0])

	second := f.Rows[1]
	assert.Nil(t, second.Values[0])
	require.NotNil(t, second.Values[1])
	assert.Equal(t, -3.4, *second.Values[1])

	// explicit zones win over loc
	assert.Equal(t, time.Date(2019, 1, 15, 8, 0, 0, 0, time.UTC), f.Rows[2].Time)
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"empty":           "",
		"bad header":      "when,station,kitka3\n",
		"no sensors":      "time,station_id\n",
		"bad sensor name": "time,station_id,3d\n",
		"duplicate":       "time,station_id,temp,Temp\n",
		"bad time":        "time,station_id,temp\nyesterday,1,2\n",
		"bad station":     "time,station_id,temp\n2019-01-15 08:00:00,x,2\n",
		"bad value":       "time,station_id,temp\n2019-01-15 08:00:00,1,warm\n",
		"short row":       "time,station_id,temp\n2019-01-15 08:00:00,1\n",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc), time.UTC)
			assert.Error(t, err)
		})
	}
}

func TestLoader_Load(t *testing.T) {
	f, err := Parse(strings.NewReader(sample), time.UTC)
	require.NoError(t, err)

	store := &fakeStore{sensors: map[string]int{"temp": 4}}
	n, err := NewLoader(store).Load(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// kitka3 is new and gets the next free id
	require.Len(t, store.upserted, 1)
	assert.Equal(t, database.Sensor{ID: 5, Name: "kitka3"}, store.upserted[0])

	assert.Equal(t, []int{1122, 1200}, store.stations)
	require.Len(t, store.observations, 3)
	assert.Equal(t, 1200, store.observations[2].StationID)

	readings := store.readings[1]
	require.Len(t, readings, 2)
	assert.Equal(t, 5, readings[0].SensorID)
	assert.Nil(t, readings[0].Value)
	assert.Equal(t, 4, readings[1].SensorID)
}

func TestLoader_StopsAtFailingRow(t *testing.T) {
	f, err := Parse(strings.NewReader(sample), time.UTC)
	require.NoError(t, err)

	store := &fakeStore{failAt: 2}
	n, err := NewLoader(store).Load(context.Background(), f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
	assert.Equal(t, 1, n)
}
