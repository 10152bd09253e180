package geo_test

import (
	"math"
	"testing"

	"patrol/dispatch/internal/geo"
)

func TestDistanceKM_ZeroForSamePoint(t *testing.T) {
	t.Parallel()

	p := geo.Point{Lat: 40.7128, Lon: -74.0060}
	if d := geo.DistanceKM(p, p); d != 0 {
		t.Fatalf("distance between identical points = %f, want 0", d)
	}
}

func TestDistanceKM_Symmetric(t *testing.T) {
	t.Parallel()

	a := geo.Point{Lat: 40.7128, Lon: -74.0060}
	b := geo.Point{Lat: 34.0522, Lon: -118.2437}
	ab := geo.DistanceKM(a, b)
	ba := geo.DistanceKM(b, a)
	if math.Abs(ab-ba) > 1e-9 {
		t.Fatalf("distance not symmetric: %f vs %f", ab, ba)
	}
}

func TestDistanceKM_KnownDistances(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		a, b      geo.Point
		wantKM    float64
		tolerance float64
	}{
		{
			name:      "new york to los angeles",
			a:         geo.Point{Lat: 40.7128, Lon: -74.0060},
			b:         geo.Point{Lat: 34.0522, Lon: -118.2437},
			wantKM:    3936,
			tolerance: 20,
		},
		{
			name:      "paris to london",
			a:         geo.Point{Lat: 48.8566, Lon: 2.3522},
			b:         geo.Point{Lat: 51.5074, Lon: -0.1278},
			wantKM:    344,
			tolerance: 5,
		},
		{
			name:      "one degree of latitude at equator",
			a:         geo.Point{Lat: 0, Lon: 0},
			b:         geo.Point{Lat: 1, Lon: 0},
			wantKM:    111.2,
			tolerance: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := geo.DistanceKM(tt.a, tt.b)
			if math.Abs(got-tt.wantKM) > tt.tolerance {
				t.Fatalf("DistanceKM = %f, want %f +/- %f", got, tt.wantKM, tt.tolerance)
			}
		})
	}
}

func TestNearestIndex_PicksClosest(t *testing.T) {
	t.Parallel()

	// Report at the origin; one candidate roughly 0.5km north and one 3km
	// north. The closer one must win regardless of input order.
	origin := geo.Point{Lat: 45.0, Lon: 7.0}
	far := geo.Point{Lat: 45.027, Lon: 7.0}   // ~3km
	near := geo.Point{Lat: 45.0045, Lon: 7.0} // ~0.5km

	idx, ok := geo.NearestIndex(origin, []geo.Point{far, near})
	if !ok {
		t.Fatal("NearestIndex reported no candidates")
	}
	if idx != 1 {
		t.Fatalf("NearestIndex = %d, want 1 (the ~0.5km candidate)", idx)
	}

	idx, ok = geo.NearestIndex(origin, []geo.Point{near, far})
	if !ok || idx != 0 {
		t.Fatalf("NearestIndex = %d ok=%v after reorder, want 0 true", idx, ok)
	}
}

func TestNearestIndex_TieKeepsFirst(t *testing.T) {
	t.Parallel()

	origin := geo.Point{Lat: 45.0, Lon: 7.0}
	same := geo.Point{Lat: 45.01, Lon: 7.0}

	idx, ok := geo.NearestIndex(origin, []geo.Point{same, same, same})
	if !ok || idx != 0 {
		t.Fatalf("NearestIndex = %d ok=%v, want first of equal candidates", idx, ok)
	}
}

func TestNearestIndex_EmptySet(t *testing.T) {
	t.Parallel()

	if _, ok := geo.NearestIndex(geo.Point{}, nil); ok {
		t.Fatal("NearestIndex reported a candidate for the empty set")
	}
}
