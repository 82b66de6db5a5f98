package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usiu-smartnav/wayfinder/internal/campus"
	campusclient "github.com/usiu-smartnav/wayfinder/internal/clients/campus"
)

func TestCache_SetGetRoundTrip(t *testing.T) {
	c := New()

	type payload struct {
		Name string `json:"name"`
	}
	require.NoError(t, c.Set("k", payload{Name: "Library"}, time.Minute, "test"))

	var got payload
	found, err := c.Get("k", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Library", got.Name)
}

func TestCache_StaleEntryMisses(t *testing.T) {
	c := New()
	require.NoError(t, c.Set("k", "v", -time.Second, "test"))

	assert.True(t, c.IsStale("k"))

	var got string
	found, err := c.Get("k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_CleanupStale(t *testing.T) {
	c := New()
	require.NoError(t, c.Set("stale", "v", -time.Second, "test"))
	require.NoError(t, c.Set("fresh", "v", time.Minute, "test"))

	assert.Equal(t, 1, c.CleanupStale())
	assert.True(t, c.IsStale("stale"))
	assert.False(t, c.IsStale("fresh"))
}

func TestCache_FeatureHelpers(t *testing.T) {
	c := New()
	features := []campus.Feature{{ID: 3, Properties: map[string]any{"name": "Library"}}}
	require.NoError(t, c.SetFeatures("buildings", features, time.Minute))

	got, found, err := c.GetFeatures("buildings")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, got, 1)
	assert.Equal(t, "Library", got[0].Name())

	_, found, err = c.GetFeatures("rooms")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_FloorAndGraphHelpers(t *testing.T) {
	c := New()

	floors := []campus.Floor{{ID: 10, Level: 1, Building: 3}}
	require.NoError(t, c.SetFloors(3, floors, time.Minute))

	gotFloors, found, err := c.GetFloors(3)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, floors, gotFloors)

	graph := &campusclient.IndoorGraph{
		Nodes: []campusclient.IndoorNode{{ID: 1, Lat: -1.2197, Lng: 36.8784, Type: "room"}},
		Edges: []campusclient.IndoorEdge{{ID: 1, From: 1, To: 2}},
	}
	require.NoError(t, c.SetIndoorGraph(10, graph, time.Minute))

	gotGraph, found, err := c.GetIndoorGraph(10)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, graph, gotGraph)
}

func TestCache_PeriodicCleanupRemovesStaleEntries(t *testing.T) {
	c := New()
	require.NoError(t, c.Set("stale", "v", -time.Second, "test"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.StartPeriodicCleanup(ctx, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		c.mutex.RLock()
		_, exists := c.entries["stale"]
		c.mutex.RUnlock()
		return !exists
	}, time.Second, 10*time.Millisecond)
}
