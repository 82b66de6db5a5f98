// Package campus defines the geospatial feature model shared by the
// wayfinding components: buildings, rooms, parking lots, entry points and
// indoor graph records as served by the campus navigation backend.
package campus

import (
	"encoding/json"

	"github.com/usiu-smartnav/wayfinder/internal/lib/geo"
)

// Geometry holds a GeoJSON geometry with its coordinate payload left raw
// until a typed accessor decodes it.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Feature is a named geospatial entity: a building, room, parking lot or
// entry point. Properties carry the backend's free-form attribute bag.
type Feature struct {
	ID         int64          `json:"id"`
	Type       string         `json:"type"`
	Geometry   *Geometry      `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// FeatureCollection mirrors the GeoJSON collection envelope returned by the
// backend list endpoints.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Floor is one level of a building.
type Floor struct {
	ID       int64 `json:"id"`
	Level    int   `json:"level"`
	Building int64 `json:"building"`
}

// Name returns the feature's name property, or "" when absent.
func (f Feature) Name() string {
	return f.stringProp("name")
}

// RoomType returns the room_type property for room features.
func (f Feature) RoomType() string {
	return f.stringProp("room_type")
}

// Capacity returns the capacity property for parking lot features.
func (f Feature) Capacity() int {
	return f.intProp("capacity")
}

// AvailableSlots returns the available_slots property for parking lot features.
func (f Feature) AvailableSlots() int {
	return f.intProp("available_slots")
}

// ReservedSlots returns the reserved_slots property for parking lot features.
func (f Feature) ReservedSlots() int {
	return f.intProp("reserved_slots")
}

// SetAvailableSlots mutates the available_slots property. Parking lot slot
// counts are the only feature attribute mutated after the session-start
// fetch, and only in response to register/deregister confirmations.
func (f *Feature) SetAvailableSlots(n int) {
	if f.Properties == nil {
		f.Properties = make(map[string]any)
	}
	f.Properties["available_slots"] = float64(n)
}

// FloorLevel returns the floor__level property injected into room features.
func (f Feature) FloorLevel() (int, bool) {
	return f.intPropOK("floor__level")
}

// FloorBuildingID returns the floor__building_id property of room features.
func (f Feature) FloorBuildingID() (int64, bool) {
	n, ok := f.intPropOK("floor__building_id")
	return int64(n), ok
}

// BuildingID returns the building property of entry point features.
func (f Feature) BuildingID() (int64, bool) {
	n, ok := f.intPropOK("building")
	return int64(n), ok
}

// IsMain reports whether an entry point is flagged as the main entrance.
func (f Feature) IsMain() bool {
	v, ok := f.Properties["is_main"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// PointCoords decodes Point geometry. GeoJSON coordinate order is
// [longitude, latitude].
func (f Feature) PointCoords() (geo.Point, bool) {
	if f.Geometry == nil || f.Geometry.Type != "Point" {
		return geo.Point{}, false
	}
	var coords [2]float64
	if err := json.Unmarshal(f.Geometry.Coordinates, &coords); err != nil {
		return geo.Point{}, false
	}
	return geo.Point{Lat: coords[1], Lng: coords[0]}, true
}

// OuterRing decodes the outer ring of Polygon geometry, or the first
// polygon's outer ring for MultiPolygon geometry.
func (f Feature) OuterRing() ([]geo.Point, bool) {
	if f.Geometry == nil {
		return nil, false
	}
	switch f.Geometry.Type {
	case "Polygon":
		var rings [][][2]float64
		if err := json.Unmarshal(f.Geometry.Coordinates, &rings); err != nil || len(rings) == 0 {
			return nil, false
		}
		return ringPoints(rings[0]), true
	case "MultiPolygon":
		var polys [][][][2]float64
		if err := json.Unmarshal(f.Geometry.Coordinates, &polys); err != nil || len(polys) == 0 || len(polys[0]) == 0 {
			return nil, false
		}
		return ringPoints(polys[0][0]), true
	}
	return nil, false
}

// OuterRings decodes every polygon's outer ring. Polygon geometry yields a
// single ring; MultiPolygon yields one per part.
func (f Feature) OuterRings() ([][]geo.Point, bool) {
	if f.Geometry == nil {
		return nil, false
	}
	switch f.Geometry.Type {
	case "Polygon":
		ring, ok := f.OuterRing()
		if !ok {
			return nil, false
		}
		return [][]geo.Point{ring}, true
	case "MultiPolygon":
		var polys [][][][2]float64
		if err := json.Unmarshal(f.Geometry.Coordinates, &polys); err != nil {
			return nil, false
		}
		var rings [][]geo.Point
		for _, poly := range polys {
			if len(poly) > 0 {
				rings = append(rings, ringPoints(poly[0]))
			}
		}
		return rings, len(rings) > 0
	}
	return nil, false
}

// LineStringCoords decodes LineString geometry, used by corridor rooms.
func (f Feature) LineStringCoords() ([]geo.Point, bool) {
	if f.Geometry == nil || f.Geometry.Type != "LineString" {
		return nil, false
	}
	var coords [][2]float64
	if err := json.Unmarshal(f.Geometry.Coordinates, &coords); err != nil {
		return nil, false
	}
	return ringPoints(coords), true
}

// CollectionBounds folds the geometry of every feature into a bounding box.
// Point, Polygon outer ring and MultiPolygon outer rings contribute; the
// second return is false when no feature carried usable geometry.
func CollectionBounds(features []Feature) (geo.Bounds, bool) {
	bounds := geo.NewBounds()
	for _, f := range features {
		if f.Geometry == nil {
			continue
		}
		if p, ok := f.PointCoords(); ok {
			bounds = bounds.Extend(p)
			continue
		}
		if rings, ok := f.OuterRings(); ok {
			for _, ring := range rings {
				for _, p := range ring {
					bounds = bounds.Extend(p)
				}
			}
		}
	}
	return bounds, bounds.Valid()
}

func ringPoints(coords [][2]float64) []geo.Point {
	points := make([]geo.Point, len(coords))
	for i, c := range coords {
		points[i] = geo.Point{Lat: c[1], Lng: c[0]}
	}
	return points
}

func (f Feature) stringProp(key string) string {
	v, ok := f.Properties[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func (f Feature) intProp(key string) int {
	n, _ := f.intPropOK(key)
	return n
}

func (f Feature) intPropOK(key string) (int, bool) {
	v, ok := f.Properties[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}
