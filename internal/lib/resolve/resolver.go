// Package resolve maps free-text destination queries to target
// coordinates across the campus entity types.
package resolve

import (
	"errors"
	"strings"

	"github.com/usiu-smartnav/wayfinder/internal/campus"
	"github.com/usiu-smartnav/wayfinder/internal/lib/geo"
)

// ErrNotFound is returned when no entity matches the query.
var ErrNotFound = errors.New("location not found or missing geometry")

// ErrNoEntryPoint is returned when a building matched by name has no entry
// point defined. A building is never resolved to a computed centroid.
var ErrNoEntryPoint = errors.New("no entry point defined for building")

// TravelMode selects which entity types are searchable. Parking lots are
// only valid destinations when driving.
type TravelMode string

const (
	ModeFoot TravelMode = "foot"
	ModeCar  TravelMode = "car"
)

// Entities is the feature universe a query is resolved against.
type Entities struct {
	Rooms       []campus.Feature
	Buildings   []campus.Feature
	ParkingLots []campus.Feature
	EntryPoints []campus.Feature
}

// Resolve matches query against the entities by case-insensitive exact
// name, in fixed priority order: rooms with point geometry first, then
// buildings (resolved through their entry points), then, in car mode,
// parking lots. The first match wins.
func Resolve(query string, entities Entities, mode TravelMode) (geo.Point, error) {
	searchTerm := strings.ToLower(strings.TrimSpace(query))
	if searchTerm == "" {
		return geo.Point{}, ErrNotFound
	}

	// Priority 1: a room with point geometry
	for _, room := range entities.Rooms {
		if strings.ToLower(room.Name()) != searchTerm {
			continue
		}
		if p, ok := room.PointCoords(); ok {
			return p, nil
		}
	}

	// Priority 2: a building, reached via its entry points
	for _, building := range entities.Buildings {
		if strings.ToLower(building.Name()) != searchTerm {
			continue
		}
		return entryPointFor(building, entities.EntryPoints)
	}

	// Priority 3: a parking lot, only when driving
	if mode == ModeCar {
		for _, lot := range entities.ParkingLots {
			if strings.ToLower(lot.Name()) != searchTerm {
				continue
			}
			if p, ok := featureTarget(lot); ok {
				return p, nil
			}
		}
	}

	return geo.Point{}, ErrNotFound
}

// entryPointFor picks the building's target coordinate from its entry
// point set: the one flagged main, else any belonging to the building.
func entryPointFor(building campus.Feature, entryPoints []campus.Feature) (geo.Point, error) {
	var fallback *geo.Point
	for _, entry := range entryPoints {
		buildingID, ok := entry.BuildingID()
		if !ok || buildingID != building.ID {
			continue
		}
		p, ok := entry.PointCoords()
		if !ok {
			continue
		}
		if entry.IsMain() {
			return p, nil
		}
		if fallback == nil {
			q := p
			fallback = &q
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return geo.Point{}, ErrNoEntryPoint
}

// featureTarget resolves a feature's target coordinate from its geometry:
// the point itself, or the bounding-box centroid of the outer ring for
// Polygon and MultiPolygon geometry.
func featureTarget(f campus.Feature) (geo.Point, bool) {
	if p, ok := f.PointCoords(); ok {
		return p, true
	}
	if ring, ok := f.OuterRing(); ok && len(ring) > 0 {
		return geo.RingCentroid(ring), true
	}
	return geo.Point{}, false
}
