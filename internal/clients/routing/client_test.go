package routing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-polyline"

	"github.com/usiu-smartnav/wayfinder/internal/lib/geo"
)

const geoJSONDirections = `{
	"type": "FeatureCollection",
	"features": [{
		"type": "Feature",
		"geometry": {
			"type": "LineString",
			"coordinates": [[36.8784, -1.2197], [36.8786, -1.2199], [36.8790, -1.2203]]
		},
		"properties": {
			"segments": [{
				"distance": 120.5,
				"duration": 95.0,
				"steps": [
					{"distance": 60.2, "duration": 48.0, "instruction": "Head south on Campus Road", "way_points": [0, 1]},
					{"distance": 60.3, "duration": 47.0, "instruction": "Arrive at your destination", "way_points": [2, 2]}
				]
			}]
		}
	}]
}`

func TestDirections_GeoJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ors-proxy/", r.URL.Path)
		require.Equal(t, "foot-walking", r.URL.Query().Get("profile"))
		w.Write([]byte(geoJSONDirections))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	route, err := client.Directions(context.Background(),
		geo.Point{Lat: -1.2197, Lng: 36.8784},
		geo.Point{Lat: -1.2203, Lng: 36.8790},
		ProfileFoot)
	require.NoError(t, err)

	require.Len(t, route.Coordinates, 3)
	assert.Equal(t, geo.Point{Lat: -1.2197, Lng: 36.8784}, route.Coordinates[0])

	require.Len(t, route.Instructions, 2)
	assert.Equal(t, "Head south on Campus Road", route.Instructions[0].Text)
	assert.Equal(t, 0, route.Instructions[0].WayPointIndex)
	assert.Equal(t, 2, route.Instructions[1].WayPointIndex)
	assert.Equal(t, 60.3, route.Instructions[1].Distance)
}

func TestDirections_EncodedPolyline(t *testing.T) {
	encoded := string(polyline.EncodeCoords([][]float64{
		{-1.2197, 36.8784},
		{-1.2203, 36.8790},
	}))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := `{"routes": [{"geometry": "` + encoded + `", "segments": [{"steps": [{"instruction": "Head south", "distance": 70, "duration": 55, "way_points": [0, 1]}]}]}]}`
		w.Write([]byte(resp))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	route, err := client.Directions(context.Background(),
		geo.Point{Lat: -1.2197, Lng: 36.8784},
		geo.Point{Lat: -1.2203, Lng: 36.8790},
		ProfileCar)
	require.NoError(t, err)

	require.Len(t, route.Coordinates, 2)
	assert.InDelta(t, -1.2197, route.Coordinates[0].Lat, 1e-4)
	assert.InDelta(t, 36.8790, route.Coordinates[1].Lng, 1e-4)
	require.Len(t, route.Instructions, 1)
}

func TestDirections_NoRoutes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"type": "FeatureCollection", "features": []}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Directions(context.Background(), geo.Point{}, geo.Point{}, ProfileFoot)
	assert.ErrorContains(t, err, "no routes found")
}

func TestDirections_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`upstream failure`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Directions(context.Background(), geo.Point{}, geo.Point{}, ProfileFoot)
	assert.ErrorContains(t, err, "directions API error 502")
}

func TestProfileForMode(t *testing.T) {
	assert.Equal(t, ProfileCar, ProfileForMode("car"))
	assert.Equal(t, ProfileFoot, ProfileForMode("foot"))
	assert.Equal(t, ProfileFoot, ProfileForMode(""))
}
