package geo

// Point represents a geographic coordinate
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is an axis-aligned latitude/longitude box
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// NewBounds returns an empty bounds; it becomes valid once extended by a point
func NewBounds() Bounds {
	return Bounds{
		MinLat: 91, MinLng: 181,
		MaxLat: -91, MaxLng: -181,
	}
}

// Valid reports whether the bounds have been extended by at least one point
func (b Bounds) Valid() bool {
	return b.MinLat <= b.MaxLat && b.MinLng <= b.MaxLng
}

// Extend grows the bounds to include p
func (b Bounds) Extend(p Point) Bounds {
	if p.Lat < b.MinLat {
		b.MinLat = p.Lat
	}
	if p.Lat > b.MaxLat {
		b.MaxLat = p.Lat
	}
	if p.Lng < b.MinLng {
		b.MinLng = p.Lng
	}
	if p.Lng > b.MaxLng {
		b.MaxLng = p.Lng
	}
	return b
}

// Center returns the midpoint of the bounds
func (b Bounds) Center() Point {
	return Point{
		Lat: (b.MinLat + b.MaxLat) / 2,
		Lng: (b.MinLng + b.MaxLng) / 2,
	}
}

// Pad expands the bounds by a fraction of their own extent on every side.
// A fraction of 0.05 adds a 5% margin.
func (b Bounds) Pad(fraction float64) Bounds {
	latSpan := (b.MaxLat - b.MinLat) * fraction
	lngSpan := (b.MaxLng - b.MinLng) * fraction
	return Bounds{
		MinLat: b.MinLat - latSpan,
		MinLng: b.MinLng - lngSpan,
		MaxLat: b.MaxLat + latSpan,
		MaxLng: b.MaxLng + lngSpan,
	}
}
