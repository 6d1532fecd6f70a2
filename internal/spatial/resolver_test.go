package spatial

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"weather-data-backend/internal/db"
	"weather-data-backend/internal/model"
	"weather-data-backend/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	return store.NewGormStore(gdb)
}

// degFor converts a north-south distance in km to degrees of latitude.
const kmPerDegreeLat = 111.195

func seedStation(t *testing.T, st store.Store, id string, lat, lon float64) {
	t.Helper()
	err := st.UpsertStation(context.Background(), model.Station{
		StationID: id,
		Lat:       &lat,
		Lon:       &lon,
		UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

func seedCoverage(t *testing.T, st store.Store, stationID string, day time.Time) {
	t.Helper()
	v := 10.0
	err := st.UpsertDailySummaries(context.Background(), []model.DailySummary{{
		StationID:  stationID,
		Date:       day,
		TmaxC:      &v,
		IngestedAt: time.Now().UTC(),
	}})
	require.NoError(t, err)
}

func TestHaversine(t *testing.T) {
	// Seattle to Portland is roughly 233 km.
	d := Haversine(47.6062, -122.3321, 45.5152, -122.6784)
	assert.InDelta(t, 233000, d, 3000)

	assert.Zero(t, Haversine(40, -100, 40, -100))
}

func TestResolvePrimaryTieBreaksLexicographically(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	asOf := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	gp := model.Gridpoint{GridID: "SEW:10,20", Office: "SEW", Lat: 40, Lon: -100}
	require.NoError(t, st.UpsertGridpoint(ctx, gp))

	// "A" and "C" tie at 5 km north/south of the gridpoint; "B" sits at
	// 10 km.
	d5 := 5.0 / kmPerDegreeLat
	seedStation(t, st, "GHCND:STB", 40+2*d5, -100)
	seedStation(t, st, "GHCND:STA", 40+d5, -100)
	seedStation(t, st, "GHCND:STC", 40-d5, -100)
	for _, id := range []string{"GHCND:STA", "GHCND:STB", "GHCND:STC"} {
		seedCoverage(t, st, id, asOf.AddDate(0, 0, -3))
	}

	r := NewResolver(st, 50, 5)
	primary, err := r.ResolvePrimary(ctx, gp, asOf)
	require.NoError(t, err)
	assert.Equal(t, "GHCND:STA", primary.StationID)
	assert.True(t, primary.IsPrimary)
	assert.InDelta(t, 5000, primary.DistanceM, 20)

	mappings, err := st.MappingsForGridpoint(ctx, gp.GridID)
	require.NoError(t, err)
	require.Len(t, mappings, 3)

	var primaries int
	for _, m := range mappings {
		if m.IsPrimary {
			primaries++
		}
	}
	assert.Equal(t, 1, primaries, "exactly one primary after resolution")
}

func TestResolvePrimaryChainedNearTies(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	asOf := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	gp := model.Gridpoint{GridID: "SEW:10,20", Office: "SEW", Lat: 40, Lon: -100}
	require.NoError(t, st.UpsertGridpoint(ctx, gp))

	// Distances chain across the tolerance: C at 0 m, A at 0.6 m, B at
	// 1.2 m. Only C and A are within 1 m of the nearest, so A's smaller
	// ID wins even though C is strictly closest; B is outside the window
	// despite being within 1 m of A.
	mPerDegreeLat := kmPerDegreeLat * 1000
	seedStation(t, st, "GHCND:STC", 40, -100)
	seedStation(t, st, "GHCND:STA", 40+0.6/mPerDegreeLat, -100)
	seedStation(t, st, "GHCND:STB", 40+1.2/mPerDegreeLat, -100)
	for _, id := range []string{"GHCND:STA", "GHCND:STB", "GHCND:STC"} {
		seedCoverage(t, st, id, asOf.AddDate(0, 0, -3))
	}

	r := NewResolver(st, 50, 5)
	primary, err := r.ResolvePrimary(ctx, gp, asOf)
	require.NoError(t, err)
	assert.Equal(t, "GHCND:STA", primary.StationID)

	mappings, err := st.MappingsForGridpoint(ctx, gp.GridID)
	require.NoError(t, err)
	require.Len(t, mappings, 3)
	var primaries int
	for _, m := range mappings {
		if m.IsPrimary {
			primaries++
		}
	}
	assert.Equal(t, 1, primaries)
}

func TestResolvePrimarySkipsStationsWithoutCoverage(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	asOf := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	gp := model.Gridpoint{GridID: "SEW:1,1", Office: "SEW", Lat: 40, Lon: -100}
	require.NoError(t, st.UpsertGridpoint(ctx, gp))

	seedStation(t, st, "GHCND:NEAR", 40+2.0/kmPerDegreeLat, -100)
	seedStation(t, st, "GHCND:FAR", 40+20.0/kmPerDegreeLat, -100)

	// Only the farther station has data inside the coverage window; the
	// nearer one's last observation is months old.
	seedCoverage(t, st, "GHCND:NEAR", asOf.AddDate(0, 0, -120))
	seedCoverage(t, st, "GHCND:FAR", asOf.AddDate(0, 0, -5))

	r := NewResolver(st, 50, 5)
	primary, err := r.ResolvePrimary(ctx, gp, asOf)
	require.NoError(t, err)
	assert.Equal(t, "GHCND:FAR", primary.StationID)

	// The nearer station is still kept as a non-primary mapping.
	mappings, err := st.MappingsForGridpoint(ctx, gp.GridID)
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	assert.Equal(t, "GHCND:NEAR", mappings[0].StationID)
	assert.False(t, mappings[0].IsPrimary)
}

func TestResolvePrimaryUnresolved(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	gp := model.Gridpoint{GridID: "SEW:2,2", Office: "SEW", Lat: 40, Lon: -100}
	require.NoError(t, st.UpsertGridpoint(ctx, gp))

	r := NewResolver(st, 50, 5)

	// No stations at all.
	_, err := r.ResolvePrimary(ctx, gp, time.Now().UTC())
	var unresolved *MappingUnresolvedError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, gp.GridID, unresolved.GridID)

	// A candidate exists but has no coverage.
	seedStation(t, st, "GHCND:EMPTY", 40+1.0/kmPerDegreeLat, -100)
	_, err = r.ResolvePrimary(ctx, gp, time.Now().UTC())
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, 1, unresolved.Candidates)
}

func TestResolvePrimaryReRunMovesPrimary(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	asOf := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	gp := model.Gridpoint{GridID: "SEW:3,3", Office: "SEW", Lat: 40, Lon: -100}
	require.NoError(t, st.UpsertGridpoint(ctx, gp))

	seedStation(t, st, "GHCND:ONE", 40+3.0/kmPerDegreeLat, -100)
	seedStation(t, st, "GHCND:TWO", 40+6.0/kmPerDegreeLat, -100)
	seedCoverage(t, st, "GHCND:TWO", asOf.AddDate(0, 0, -2))

	r := NewResolver(st, 50, 5)
	primary, err := r.ResolvePrimary(ctx, gp, asOf)
	require.NoError(t, err)
	assert.Equal(t, "GHCND:TWO", primary.StationID)

	// The nearer station gains coverage; a re-run moves the primary and
	// still leaves exactly one flag set.
	seedCoverage(t, st, "GHCND:ONE", asOf.AddDate(0, 0, -1))
	primary, err = r.ResolvePrimary(ctx, gp, asOf)
	require.NoError(t, err)
	assert.Equal(t, "GHCND:ONE", primary.StationID)

	ids, err := st.PrimaryStationIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"GHCND:ONE"}, ids)
}
